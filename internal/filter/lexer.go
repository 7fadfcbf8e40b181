package filter

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokBool
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits src into tokens. Identifiers may contain dots for nested fields.
func lex(src string) ([]token, error) {
	var out []token
	for i := 0; i < len(src); {
		ch := rune(src[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case ch == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case strings.ContainsRune("=!<>", ch):
			n := 1
			if i+1 < len(src) && src[i+1] == '=' {
				n = 2
			}
			op := src[i : i+n]
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("position %d: unknown operator %q", i, op)
			}
			out = append(out, token{tokOp, op, i})
			i += n
		case ch == '"' || ch == '\'':
			s, n, err := lexString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("position %d: %w", i, err)
			}
			out = append(out, token{tokString, s, i})
			i += n
		case unicode.IsDigit(ch) || (ch == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			out = append(out, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(ch) || ch == '_':
			j := i + 1
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_' || src[j] == '.') {
				j++
			}
			word := src[i:j]
			switch lower := strings.ToLower(word); lower {
			case "true", "false":
				out = append(out, token{tokBool, lower, i})
			case "contains", "matches":
				out = append(out, token{tokOp, lower, i})
			default:
				out = append(out, token{tokIdent, word, i})
			}
			i = j
		default:
			return nil, fmt.Errorf("position %d: unexpected character %q", i, ch)
		}
	}
	return append(out, token{tokEOF, "", len(src)}), nil
}

// lexString reads a quoted literal at the start of s and returns its value and
// the number of bytes consumed.
func lexString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}
