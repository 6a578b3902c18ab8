package parser

import (
	"strconv"
	"strings"
)

// LiteralSource is a nested-array string such as "[[51.5,-0.1],[48.85,2.35]]".
type LiteralSource struct {
	Text string
}

func (LiteralSource) Kind() string { return KindLiteral }

func (s LiteralSource) pairs(label string) ([]RawPair, error) {
	out, err := ParseLiteral(s.Text)
	if err != nil {
		return nil, &ConfigurationError{Set: label, Field: FieldLiteral, Reason: "invalid literal array", Err: err}
	}
	return out, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLBrack
	tokRBrack
	tokComma
	tokNumber
	tokIllegal
)

type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNumber:
		return "number " + t.text
	default:
		return strconv.Quote(t.text)
	}
}

type lexer struct {
	src string
	pos int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isDelim(c byte) bool {
	return c == '[' || c == ']' || c == ',' || isSpace(c)
}

func (l *lexer) next() token {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start, end: start}
	}
	switch c := l.src[l.pos]; c {
	case '[':
		l.pos++
		return token{kind: tokLBrack, text: "[", pos: start, end: l.pos}
	case ']':
		l.pos++
		return token{kind: tokRBrack, text: "]", pos: start, end: l.pos}
	case ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start, end: l.pos}
	}
	if end, ok := scanNumber(l.src, start); ok {
		l.pos = end
		return token{kind: tokNumber, text: l.src[start:end], pos: start, end: end}
	}
	for l.pos < len(l.src) && !isDelim(l.src[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		l.pos++
	}
	return token{kind: tokIllegal, text: l.src[start:l.pos], pos: start, end: l.pos}
}

// scanNumber matches [+-] (d+ [. d*] | . d+) [(e|E) [+-] d+] followed by a
// delimiter or end of input.
func scanNumber(s string, i int) (int, bool) {
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && isDigit(s[i]) {
			i++
			exp++
		}
		if exp == 0 {
			return 0, false
		}
	}
	if i < len(s) && !isDelim(s[i]) {
		return 0, false
	}
	return i, true
}

type literalParser struct {
	lex lexer
	tok token
}

func (p *literalParser) advance() { p.tok = p.lex.next() }

func (p *literalParser) fail(expected string) error {
	return &SyntaxError{Offset: p.tok.pos, Expected: expected, Found: p.tok.describe()}
}

func (p *literalParser) expect(kind tokenKind, expected string) (token, error) {
	t := p.tok
	if t.kind != kind {
		return t, p.fail(expected)
	}
	p.advance()
	return t, nil
}

// ParseLiteral checks the nested-array grammar and returns one RawPair per
// inner array. An inner array may hold fewer than two numbers; that is left
// to validation. More than two numbers is a syntax error.
func ParseLiteral(text string) ([]RawPair, error) {
	p := &literalParser{lex: lexer{src: text}}
	p.advance()

	if _, err := p.expect(tokLBrack, "'['"); err != nil {
		return nil, err
	}
	out := []RawPair{}
	if p.tok.kind == tokRBrack {
		p.advance()
	} else {
		for {
			pair, err := p.pair(len(out))
			if err != nil {
				return nil, err
			}
			out = append(out, pair)
			if p.tok.kind == tokComma {
				p.advance()
				continue
			}
			if _, err := p.expect(tokRBrack, "',' or ']'"); err != nil {
				return nil, err
			}
			break
		}
	}
	if p.tok.kind != tokEOF {
		return nil, p.fail("end of input")
	}
	return out, nil
}

func (p *literalParser) pair(row int) (RawPair, error) {
	open, err := p.expect(tokLBrack, "'['")
	if err != nil {
		return RawPair{}, err
	}
	var values []string
	if p.tok.kind == tokNumber {
		values = append(values, p.tok.text)
		p.advance()
		if p.tok.kind == tokComma {
			p.advance()
			num, err := p.expect(tokNumber, "number")
			if err != nil {
				return RawPair{}, err
			}
			values = append(values, num.text)
		}
	}
	closing, err := p.expect(tokRBrack, "']'")
	if err != nil {
		if p.tok.kind == tokComma && len(values) == 2 {
			return RawPair{}, &SyntaxError{Offset: p.tok.pos, Expected: "']' after two components", Found: p.tok.describe()}
		}
		return RawPair{}, err
	}
	return RawPair{
		Row:    row,
		Values: values,
		Raw:    strings.Join(strings.Fields(p.lex.src[open.pos:closing.end]), ""),
	}, nil
}
