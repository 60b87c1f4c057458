package formula

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokRef
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// SyntaxError reports a malformed expression and the byte offset where parsing stopped.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("formula: %s at position %d", e.Msg, e.Pos)
}

func tokenize(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: start})
		case r == '"':
			start := i
			i++
			var b strings.Builder
			closed := false
			for i < len(runes) {
				if runes[i] == '"' {
					// "" inside a string is an escaped quote
					if i+1 < len(runes) && runes[i+1] == '"' {
						b.WriteRune('"')
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated string"}
			}
			tokens = append(tokens, token{kind: tokString, text: b.String(), pos: start})
		case r == '[':
			start := i
			i++
			for i < len(runes) && runes[i] != ']' {
				i++
			}
			if i >= len(runes) {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated column reference"}
			}
			name := strings.TrimSpace(string(runes[start+1 : i]))
			i++
			if name == "" {
				return nil, &SyntaxError{Pos: start, Msg: "empty column reference"}
			}
			tokens = append(tokens, token{kind: tokRef, text: name, pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: start})
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',' || r == ';':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case r == '<':
			if i+1 < len(runes) && (runes[i+1] == '=' || runes[i+1] == '>') {
				tokens = append(tokens, token{kind: tokOp, text: string(runes[i : i+2]), pos: i})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokOp, text: "<", pos: i})
			i++
		case r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: ">=", pos: i})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokOp, text: ">", pos: i})
			i++
		case strings.ContainsRune("+-*/%&=", r):
			tokens = append(tokens, token{kind: tokOp, text: string(r), pos: i})
			i++
		default:
			return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}
