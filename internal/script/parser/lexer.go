package parser

import (
	"fmt"
	"strconv"
	"strings"
)

type TokenType int

const (
	EOF TokenType = iota
	NEWLINE
	INDENT
	DEDENT

	NAME
	KEYWORD
	INT
	FLOAT
	STRING
	OP
)

func (t TokenType) String() string {
	switch t {
	case EOF:
		return "end of input"
	case NEWLINE:
		return "newline"
	case INDENT:
		return "indent"
	case DEDENT:
		return "dedent"
	case NAME:
		return "name"
	case KEYWORD:
		return "keyword"
	case INT, FLOAT:
		return "number"
	case STRING:
		return "string"
	case OP:
		return "operator"
	default:
		return fmt.Sprintf("token(%d)", int(t))
	}
}

type Token struct {
	Type    TokenType
	Lexeme  string
	Literal interface{} // int64, float64 or string for literals
	Line    int
	Col     int
}

func (t Token) is(tt TokenType, lexeme string) bool {
	return t.Type == tt && t.Lexeme == lexeme
}

func (t Token) describe() string {
	switch t.Type {
	case EOF, NEWLINE, INDENT, DEDENT:
		return t.Type.String()
	default:
		return strconv.Quote(t.Lexeme)
	}
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true,
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"break": true, "class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true,
	"pass": true, "raise": true, "return": true, "try": true, "while": true,
	"with": true, "yield": true,
}

var twoCharOps = []string{
	"==", "!=", ">=", "<=", "**", "//", "->",
	"+=", "-=", "*=", "/=", "%=", ":=",
}

const oneCharOps = "()[]{},:.;=+-*/%<>!~@&|^"

// lexer turns source into a token slice with Python-style NEWLINE, INDENT
// and DEDENT tokens. Newlines inside brackets are ignored.
type lexer struct {
	src    string
	cur    int
	line   int
	col    int
	depth  int
	indent []int
	brack  []Token
	tokens []Token
}

func scan(src string) ([]Token, error) {
	l := &lexer{
		src:    strings.ReplaceAll(src, "\r\n", "\n"),
		line:   1,
		col:    1,
		indent: []int{0},
	}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) errorf(line, col int, format string, args ...interface{}) error {
	return &Error{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) atEnd() bool { return l.cur >= len(l.src) }

func (l *lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *lexer) peekAt(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func (l *lexer) advance() byte {
	c := l.src[l.cur]
	l.cur++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) emit(tt TokenType, lexeme string, lit interface{}, line, col int) {
	l.tokens = append(l.tokens, Token{Type: tt, Lexeme: lexeme, Literal: lit, Line: line, Col: col})
}

func (l *lexer) lastIsLineEnd() bool {
	if len(l.tokens) == 0 {
		return true
	}
	switch l.tokens[len(l.tokens)-1].Type {
	case NEWLINE, INDENT, DEDENT:
		return true
	}
	return false
}

func (l *lexer) run() error {
	atLineStart := true
	for {
		if atLineStart && l.depth == 0 {
			blank, err := l.lineIndent()
			if err != nil {
				return err
			}
			if blank {
				if l.atEnd() {
					break
				}
				continue
			}
			atLineStart = false
		}
		if l.atEnd() {
			break
		}

		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\f':
			l.advance()
		case c == '#':
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		case c == '\\' && l.peekAt(1) == '\n':
			l.advance()
			l.advance()
		case c == '\n':
			line, col := l.line, l.col
			l.advance()
			if l.depth == 0 {
				if !l.lastIsLineEnd() {
					l.emit(NEWLINE, "\n", nil, line, col)
				}
				atLineStart = true
			}
		case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
			if err := l.number(); err != nil {
				return err
			}
		case isAlpha(c):
			l.ident()
		case c == '"' || c == '\'':
			if err := l.str(); err != nil {
				return err
			}
		default:
			if err := l.op(); err != nil {
				return err
			}
		}
	}

	if l.depth > 0 {
		open := l.brack[len(l.brack)-1]
		return l.errorf(open.Line, open.Col, "%q was never closed", open.Lexeme)
	}
	if !l.lastIsLineEnd() {
		l.emit(NEWLINE, "", nil, l.line, l.col)
	}
	for len(l.indent) > 1 {
		l.indent = l.indent[:len(l.indent)-1]
		l.emit(DEDENT, "", nil, l.line, 1)
	}
	l.emit(EOF, "", nil, l.line, l.col)
	return nil
}

// lineIndent measures leading whitespace of a logical line and emits
// INDENT/DEDENT. It reports blank (whitespace or comment only) lines, which
// are consumed entirely.
func (l *lexer) lineIndent() (blank bool, err error) {
	width := 0
measure:
	for !l.atEnd() {
		switch l.peek() {
		case ' ':
			width++
		case '\t':
			width = (width/8 + 1) * 8
		case '\f':
			width = 0
		default:
			break measure
		}
		l.advance()
	}
	if l.atEnd() {
		return true, nil
	}
	switch l.peek() {
	case '#':
		for !l.atEnd() && l.peek() != '\n' {
			l.advance()
		}
		if !l.atEnd() {
			l.advance()
		}
		return true, nil
	case '\n':
		l.advance()
		return true, nil
	}

	top := l.indent[len(l.indent)-1]
	switch {
	case width > top:
		if len(l.tokens) == 0 {
			return false, l.errorf(l.line, l.col, "unexpected indent")
		}
		l.indent = append(l.indent, width)
		l.emit(INDENT, "", nil, l.line, 1)
	case width < top:
		for width < l.indent[len(l.indent)-1] {
			l.indent = l.indent[:len(l.indent)-1]
			l.emit(DEDENT, "", nil, l.line, 1)
		}
		if width != l.indent[len(l.indent)-1] {
			return false, l.errorf(l.line, l.col, "unindent does not match any outer indentation level")
		}
	}
	return false, nil
}

func (l *lexer) number() error {
	line, col, start := l.line, l.col, l.cur
	isFloat := false
	digits := func() {
		for isDigit(l.peek()) || (l.peek() == '_' && isDigit(l.peekAt(1))) {
			l.advance()
		}
	}
	digits()
	if l.peek() == '.' && !isAlpha(l.peekAt(1)) {
		isFloat = true
		l.advance()
		digits()
	}
	if c := l.peek(); c == 'e' || c == 'E' {
		n := 1
		if s := l.peekAt(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(l.peekAt(n)) {
			isFloat = true
			for i := 0; i < n; i++ {
				l.advance()
			}
			digits()
		}
	}
	if isAlpha(l.peek()) {
		return l.errorf(line, col, "invalid number literal %q", l.src[start:l.cur+1])
	}

	lexeme := l.src[start:l.cur]
	clean := strings.ReplaceAll(lexeme, "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return l.errorf(line, col, "invalid number literal %q", lexeme)
		}
		l.emit(FLOAT, lexeme, f, line, col)
		return nil
	}
	if len(clean) > 1 && clean[0] == '0' && strings.Trim(clean, "0") != "" {
		return l.errorf(line, col, "leading zeros in decimal integer literals are not permitted")
	}
	i, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return l.errorf(line, col, "integer literal %q out of range", lexeme)
	}
	l.emit(INT, lexeme, i, line, col)
	return nil
}

func (l *lexer) ident() {
	line, col, start := l.line, l.col, l.cur
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	word := l.src[start:l.cur]
	if keywords[word] {
		l.emit(KEYWORD, word, nil, line, col)
		return
	}
	l.emit(NAME, word, nil, line, col)
}

func (l *lexer) str() error {
	line, col, start := l.line, l.col, l.cur
	quote := l.advance()
	var b strings.Builder
	for {
		if l.atEnd() || l.peek() == '\n' {
			return l.errorf(line, col, "unterminated string literal")
		}
		c := l.advance()
		if c == quote {
			break
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if l.atEnd() {
			return l.errorf(line, col, "unterminated string literal")
		}
		switch e := l.advance(); e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '\\', '\'', '"':
			b.WriteByte(e)
		case '\n':
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	l.emit(STRING, l.src[start:l.cur], b.String(), line, col)
	return nil
}

func (l *lexer) op() error {
	line, col := l.line, l.col
	if l.cur+1 < len(l.src) {
		two := l.src[l.cur : l.cur+2]
		for _, op := range twoCharOps {
			if two == op {
				l.advance()
				l.advance()
				l.emit(OP, two, nil, line, col)
				return nil
			}
		}
	}
	c := l.peek()
	if strings.IndexByte(oneCharOps, c) < 0 {
		return l.errorf(line, col, "invalid character %q", rune(c))
	}
	l.advance()
	tok := Token{Type: OP, Lexeme: string(c), Line: line, Col: col}
	switch c {
	case '(', '[', '{':
		l.depth++
		l.brack = append(l.brack, tok)
	case ')', ']', '}':
		if l.depth == 0 {
			return l.errorf(line, col, "unmatched %q", string(c))
		}
		open := l.brack[len(l.brack)-1]
		if closing[open.Lexeme] != c {
			return l.errorf(line, col, "closing parenthesis %q does not match opening parenthesis %q", string(c), open.Lexeme)
		}
		l.depth--
		l.brack = l.brack[:len(l.brack)-1]
	}
	l.tokens = append(l.tokens, tok)
	return nil
}

var closing = map[string]byte{"(": ')', "[": ']', "{": '}'}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' }
