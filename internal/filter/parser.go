package filter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// parser is a recursive-descent parser that builds predicates directly
// instead of an intermediate tree.
//
//	or      = and { "OR" and }
//	and     = unary { "AND" unary }
//	unary   = "NOT" unary | "(" or ")" | compare
//	compare = operand op operand
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) or() (Predicate, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(data map[string]any) (bool, error) {
			ok, err := l(data)
			if err != nil || ok {
				return ok, err
			}
			return right(data)
		}
	}
	return left, nil
}

func (p *parser) and() (Predicate, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(data map[string]any) (bool, error) {
			ok, err := l(data)
			if err != nil || !ok {
				return false, err
			}
			return right(data)
		}
	}
	return left, nil
}

func (p *parser) unary() (Predicate, error) {
	if p.keyword("NOT") {
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return func(data map[string]any) (bool, error) {
			ok, err := inner(data)
			return !ok && err == nil, err
		}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("position %d: expected \")\", got %q", t.pos, t.text)
		}
		return inner, nil
	}
	return p.compare()
}

// value produces an operand's value for one evaluation.
type value func(data map[string]any) (any, error)

func (p *parser) operand() (value, any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		s := t.text
		return func(map[string]any) (any, error) { return s, nil }, s, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("position %d: invalid number %q", t.pos, t.text)
		}
		return func(map[string]any) (any, error) { return f, nil }, f, nil
	case tokBool:
		b := t.text == "true"
		return func(map[string]any) (any, error) { return b, nil }, b, nil
	case tokIdent:
		name, path := t.text, fieldPath(t.text)
		return func(data map[string]any) (any, error) {
			v, ok := lookup(data, path)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
			}
			return v, nil
		}, nil, nil
	default:
		return nil, nil, fmt.Errorf("position %d: expected operand, got %q", t.pos, t.text)
	}
}

func (p *parser) compare() (Predicate, error) {
	left, _, err := p.operand()
	if err != nil {
		return nil, err
	}
	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, fmt.Errorf("position %d: expected comparison operator, got %q", opTok.pos, opTok.text)
	}
	right, literal, err := p.operand()
	if err != nil {
		return nil, err
	}

	cmp, err := comparator(opTok.text, literal)
	if err != nil {
		return nil, fmt.Errorf("position %d: %w", opTok.pos, err)
	}
	return func(data map[string]any) (bool, error) {
		l, err := left(data)
		if err != nil {
			return false, err
		}
		r, err := right(data)
		if err != nil {
			return false, err
		}
		return cmp(l, r)
	}, nil
}

// comparator returns the function for op. literal is the right operand when it
// is a constant; matches requires one so the pattern compiles once.
func comparator(op string, literal any) (func(l, r any) (bool, error), error) {
	switch op {
	case "==":
		return func(l, r any) (bool, error) { return equal(l, r), nil }, nil
	case "!=":
		return func(l, r any) (bool, error) { return !equal(l, r), nil }, nil
	case ">", ">=", "<", "<=":
		return func(l, r any) (bool, error) { return ordered(op, l, r) }, nil
	case "contains":
		return func(l, r any) (bool, error) {
			s, ok := l.(string)
			if !ok {
				return false, fmt.Errorf("contains: left operand is %T, not a string", l)
			}
			return strings.Contains(s, fmt.Sprint(r)), nil
		}, nil
	case "matches":
		pattern, ok := literal.(string)
		if !ok {
			return nil, fmt.Errorf("matches: right operand must be a quoted pattern")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("matches: %w", err)
		}
		return func(l, _ any) (bool, error) {
			s, ok := l.(string)
			if !ok {
				return false, fmt.Errorf("matches: left operand is %T, not a string", l)
			}
			return re.MatchString(s), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

// number accepts the numeric types a decoded payload or a Go caller may hold.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}

func equal(l, r any) bool {
	lf, lok := number(l)
	rf, rok := number(r)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	if lb, ok := l.(bool); ok {
		rb, ok := r.(bool)
		return ok && lb == rb
	}
	return fmt.Sprint(l) == fmt.Sprint(r)
}

func ordered(op string, l, r any) (bool, error) {
	lf, lok := number(l)
	rf, rok := number(r)
	if !lok || !rok {
		return false, fmt.Errorf("%s needs numbers, got %T and %T", op, l, r)
	}
	switch op {
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	case "<":
		return lf < rf, nil
	default:
		return lf <= rf, nil
	}
}
