// Package filter compiles small boolean expressions over a detection's data
// payload, such as
//
//	confidence >= 0.6 AND NOT (label == "remote" OR label matches "^toy")
//
// Operands are field paths (dots walk nested objects), numbers, quoted strings
// and true/false. Operators are == != > >= < <= contains matches, combined
// with AND, OR, NOT and parentheses. Keywords are case-insensitive.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField is returned when a referenced field is absent from the data.
var ErrMissingField = errors.New("field not found")

// Predicate reports whether data satisfies a compiled expression.
type Predicate func(data map[string]any) (bool, error)

// Filter is a compiled expression.
type Filter struct {
	src  string
	eval Predicate
}

// Compile parses src. Regular expressions are compiled here, so a Filter never
// fails on a bad pattern at match time.
func Compile(src string) (*Filter, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", src, err)
	}
	p := &parser{toks: toks}
	eval, err := p.or()
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", src, err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("filter %q: position %d: unexpected %q", src, t.pos, t.text)
	}
	return &Filter{src: src, eval: eval}, nil
}

// Match evaluates the filter against data.
func (f *Filter) Match(data map[string]any) (bool, error) {
	return f.eval(data)
}

func (f *Filter) String() string { return f.src }

// Set holds one filter per detection kind. A kind without a filter always
// matches.
type Set map[string]*Filter

// CompileSet compiles every expression, reporting all failures at once.
func CompileSet(exprs map[string]string) (Set, error) {
	set := make(Set, len(exprs))
	var errs []error
	for kind, src := range exprs {
		f, err := Compile(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		set[kind] = f
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

// Match evaluates kind's filter, if any.
func (s Set) Match(kind string, data map[string]any) (bool, error) {
	f, ok := s[kind]
	if !ok {
		return true, nil
	}
	return f.Match(data)
}

// lookup walks a dotted path through nested objects.
func lookup(data map[string]any, path []string) (any, bool) {
	var cur any = data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func fieldPath(name string) []string {
	return strings.Split(name, ".")
}
