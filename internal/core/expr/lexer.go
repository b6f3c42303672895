package expr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokQuestion
	tokColon
	tokNot
	tokAnd
	tokOr
	tokEq
	tokNeq
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of expression",
	tokIdent:    "identifier",
	tokInt:      "integer",
	tokFloat:    "number",
	tokString:   "string",
	tokDot:      "'.'",
	tokComma:    "','",
	tokLParen:   "'('",
	tokRParen:   "')'",
	tokLBracket: "'['",
	tokRBracket: "']'",
	tokQuestion: "'?'",
	tokColon:    "':'",
	tokNot:      "'!'",
	tokAnd:      "'&&'",
	tokOr:       "'||'",
	tokEq:       "'=='",
	tokNeq:      "'!='",
}

func (k tokenKind) String() string {
	return tokenNames[k]
}

var punctuation = map[byte]tokenKind{
	'.': tokDot, ',': tokComma, '(': tokLParen, ')': tokRParen,
	'[': tokLBracket, ']': tokRBracket, '?': tokQuestion, ':': tokColon, '!': tokNot,
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.src[l.pos]
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}

	switch two {
	case "&&":
		l.pos += 2
		return token{kind: tokAnd, text: two, pos: start}, nil
	case "||":
		l.pos += 2
		return token{kind: tokOr, text: two, pos: start}, nil
	case "==":
		l.pos += 2
		return token{kind: tokEq, text: two, pos: start}, nil
	case "!=":
		l.pos += 2
		return token{kind: tokNeq, text: two, pos: start}, nil
	}

	if kind, ok := punctuation[c]; ok {
		l.pos++
		return token{kind: kind, text: string(c), pos: start}, nil
	}

	switch {
	case c == '"' || c == '\'':
		return l.lexString(c)
	case c >= '0' && c <= '9':
		return l.lexNumber(), nil
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if r == '_' || unicode.IsLetter(r) {
		for l.pos < len(l.src) {
			r, size = utf8.DecodeRuneInString(l.src[l.pos:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.pos += size
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	}

	return token{}, syntaxError(start, "unexpected character %q", string(l.src[start:start+size]))
}

func (l *lexer) lexNumber() token {
	start := l.pos
	kind := tokInt
	for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
		l.pos++
	}
	// Точка считается дробной частью, только если за ней следует цифра.
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
		kind = tokFloat
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
	}
	return token{kind: kind, text: l.src[start:l.pos], pos: start}
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case c == '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, syntaxError(l.pos, "unterminated escape")
			}
			esc := l.src[l.pos+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(esc)
			default:
				return token{}, syntaxError(l.pos, "unknown escape \\%c", esc)
			}
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, syntaxError(start, "unterminated string")
}

func syntaxError(pos int, format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrSyntax, fmt.Sprintf(format, args...), pos)
}
