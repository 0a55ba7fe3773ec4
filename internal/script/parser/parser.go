// Package parser reads farm scripts, a small indentation-based subset of
// Python, into an ast.Program.
//
// The parser accepts more than the runtime does: recognisable statements and
// expressions outside the farm grammar become ast.BadStmt / ast.BadExpr so
// the interpreter can reject them with a line number when they are reached.
// Only malformed source is a parse error.
package parser

import (
	"fmt"

	"cyberfarm.ai/internal/script/ast"
	"cyberfarm.ai/internal/script/value"
)

// Error is a syntax error at a source position.
type Error struct {
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Line, e.Col, e.Msg)
}

func Parse(src string) (*ast.Program, error) {
	toks, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	prog := &ast.Program{}
	for !p.at(EOF) {
		if p.at(NEWLINE) {
			p.next()
			continue
		}
		stmts, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Body = append(prog.Body, stmts...)
	}
	return prog, nil
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Type != EOF {
		p.pos++
	}
	return t
}

func (p *parser) at(tt TokenType) bool { return p.peek().Type == tt }
func (p *parser) atOp(op string) bool  { return p.peek().is(OP, op) }
func (p *parser) atKw(kw string) bool  { return p.peek().is(KEYWORD, kw) }

func (p *parser) errorAt(t Token, format string, args ...interface{}) error {
	return &Error{Line: t.Line, Col: t.Col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expectOp(op string) (Token, error) {
	t := p.peek()
	if !t.is(OP, op) {
		return t, p.errorAt(t, "expected %q, found %s", op, t.describe())
	}
	return p.next(), nil
}

func (p *parser) expectLineEnd() error {
	t := p.peek()
	switch t.Type {
	case NEWLINE:
		p.next()
		return nil
	case EOF, DEDENT:
		return nil
	}
	return p.errorAt(t, "invalid syntax: unexpected %s", t.describe())
}

func pos(t Token) ast.Pos { return ast.Pos{Line: t.Line, Col: t.Col} }

// Compound statements whose header and block are parsed but not accepted.
var badCompound = map[string]string{
	"while": "while loop",
	"def":   "function definition",
	"class": "class definition",
	"with":  "with statement",
	"try":   "try statement",
	"async": "async statement",
}

// Simple statements that are recognised but not accepted.
var badSimple = map[string]string{
	"return":   "return statement",
	"pass":     "pass statement",
	"break":    "break statement",
	"continue": "continue statement",
	"import":   "import statement",
	"from":     "import statement",
	"del":      "del statement",
	"global":   "global statement",
	"nonlocal": "nonlocal statement",
	"assert":   "assert statement",
	"raise":    "raise statement",
	"yield":    "yield statement",
}

func (p *parser) statement() ([]ast.Stmt, error) {
	t := p.peek()
	if t.Type == INDENT {
		return nil, p.errorAt(t, "unexpected indent")
	}
	if t.Type == KEYWORD {
		switch t.Lexeme {
		case "if":
			s, err := p.ifStmt()
			if err != nil {
				return nil, err
			}
			return []ast.Stmt{s}, nil
		case "for":
			s, err := p.forStmt()
			if err != nil {
				return nil, err
			}
			return []ast.Stmt{s}, nil
		case "elif", "else", "except", "finally":
			return nil, p.errorAt(t, "invalid syntax: %q without a matching block", t.Lexeme)
		}
		if kind, ok := badCompound[t.Lexeme]; ok {
			s, err := p.skipCompound(kind)
			if err != nil {
				return nil, err
			}
			return []ast.Stmt{s}, nil
		}
	}
	return p.simpleLine()
}

// simpleLine parses `;`-separated simple statements up to the end of line.
func (p *parser) simpleLine() ([]ast.Stmt, error) {
	var out []ast.Stmt
	for {
		s, err := p.simpleStmt()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if !p.atOp(";") {
			break
		}
		p.next()
		if p.at(NEWLINE) || p.at(EOF) {
			break
		}
	}
	return out, p.expectLineEnd()
}

func (p *parser) simpleStmt() (ast.Stmt, error) {
	t := p.peek()
	if t.Type == KEYWORD {
		if kind, ok := badSimple[t.Lexeme]; ok {
			p.skipSimple()
			return &ast.BadStmt{Pos: pos(t), Kind: kind}, nil
		}
	}

	x, err := p.exprList()
	if err != nil {
		return nil, err
	}
	switch op := p.peek(); {
	case op.is(OP, "="):
		p.next()
		rhs, err := p.exprList()
		if err != nil {
			return nil, err
		}
		if p.atOp("=") {
			p.skipSimple()
			return &ast.BadStmt{Pos: pos(t), Kind: "chained assignment"}, nil
		}
		name, ok := x.(*ast.Name)
		if !ok {
			return &ast.BadStmt{Pos: pos(t), Kind: "assignment to a non-name target"}, nil
		}
		return &ast.Assign{Pos: pos(t), Target: name.ID, Value: rhs}, nil
	case op.Type == OP && (op.Lexeme == "+=" || op.Lexeme == "-=" || op.Lexeme == "*=" ||
		op.Lexeme == "/=" || op.Lexeme == "%=" || op.Lexeme == ":="):
		p.skipSimple()
		return &ast.BadStmt{Pos: pos(t), Kind: "augmented assignment"}, nil
	case op.is(OP, ":"):
		p.skipSimple()
		return &ast.BadStmt{Pos: pos(t), Kind: "annotated assignment"}, nil
	}
	return &ast.ExprStmt{Pos: pos(t), X: x}, nil
}

// skipSimple drops tokens up to the end of the current simple statement.
func (p *parser) skipSimple() {
	for !p.at(NEWLINE) && !p.at(EOF) && !p.atOp(";") {
		p.next()
	}
}

// skipCompound drops a header, parses (and discards) its block, and any
// trailing else/elif/except/finally clauses.
func (p *parser) skipCompound(kind string) (ast.Stmt, error) {
	head := p.next()
	for !p.atOp(":") {
		if p.at(NEWLINE) || p.at(EOF) {
			return nil, p.errorAt(p.peek(), "expected ':'")
		}
		p.next()
	}
	p.next()
	if _, err := p.block(); err != nil {
		return nil, err
	}
	for p.atKw("else") || p.atKw("elif") || p.atKw("except") || p.atKw("finally") {
		for !p.atOp(":") {
			if p.at(NEWLINE) || p.at(EOF) {
				return nil, p.errorAt(p.peek(), "expected ':'")
			}
			p.next()
		}
		p.next()
		if _, err := p.block(); err != nil {
			return nil, err
		}
	}
	return &ast.BadStmt{Pos: pos(head), Kind: kind}, nil
}

// block parses the suite after a ':': an indented block, or simple
// statements on the same line.
func (p *parser) block() ([]ast.Stmt, error) {
	if !p.at(NEWLINE) {
		return p.simpleLine()
	}
	p.next()
	if !p.at(INDENT) {
		return nil, p.errorAt(p.peek(), "expected an indented block")
	}
	p.next()
	var body []ast.Stmt
	for !p.at(DEDENT) && !p.at(EOF) {
		if p.at(NEWLINE) {
			p.next()
			continue
		}
		stmts, err := p.statement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	if p.at(DEDENT) {
		p.next()
	}
	return body, nil
}

func (p *parser) ifStmt() (*ast.If, error) {
	kw := p.next() // if / elif
	test, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	s := &ast.If{Pos: pos(kw), Test: test, Body: body}
	switch {
	case p.atKw("elif"):
		elif, err := p.ifStmt()
		if err != nil {
			return nil, err
		}
		s.Else = []ast.Stmt{elif}
	case p.atKw("else"):
		p.next()
		if _, err := p.expectOp(":"); err != nil {
			return nil, err
		}
		if s.Else, err = p.block(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) forStmt() (ast.Stmt, error) {
	kw := p.next()
	target := p.peek()
	if target.Type != NAME {
		return nil, p.errorAt(target, "expected loop variable name, found %s", target.describe())
	}
	p.next()
	if p.atOp(",") {
		for !p.atKw("in") && !p.at(NEWLINE) && !p.at(EOF) {
			p.next()
		}
		if _, _, err := p.forTail(); err != nil {
			return nil, err
		}
		return &ast.BadStmt{Pos: pos(kw), Kind: "for loop with multiple targets"}, nil
	}
	iter, body, err := p.forTail()
	if err != nil {
		return nil, err
	}
	s := &ast.For{Pos: pos(kw), Target: target.Lexeme, Iter: iter, Body: body}
	if p.atKw("else") {
		p.next()
		if _, err := p.expectOp(":"); err != nil {
			return nil, err
		}
		if _, err := p.block(); err != nil {
			return nil, err
		}
		return &ast.BadStmt{Pos: pos(kw), Kind: "for-else"}, nil
	}
	return s, nil
}

func (p *parser) forTail() (ast.Expr, []ast.Stmt, error) {
	if !p.atKw("in") {
		t := p.peek()
		return nil, nil, p.errorAt(t, "expected 'in', found %s", t.describe())
	}
	p.next()
	iter, err := p.expr()
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, nil, err
	}
	return iter, body, nil
}

// Expressions, lowest precedence first.

// exprList is an expression optionally followed by `, expr`... (a tuple).
func (p *parser) exprList() (ast.Expr, error) {
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	if !p.atOp(",") {
		return x, nil
	}
	for p.atOp(",") {
		p.next()
		if p.at(NEWLINE) || p.at(EOF) || p.atOp("=") || p.atOp(")") {
			break
		}
		if _, err := p.expr(); err != nil {
			return nil, err
		}
	}
	return &ast.BadExpr{Pos: ast.Pos{Line: x.Line()}, Kind: "tuple"}, nil
}

func (p *parser) expr() (ast.Expr, error) {
	if p.atKw("lambda") {
		t := p.next()
		for !p.atOp(":") {
			if p.at(NEWLINE) || p.at(EOF) {
				return nil, p.errorAt(p.peek(), "expected ':' in lambda")
			}
			p.next()
		}
		p.next()
		if _, err := p.expr(); err != nil {
			return nil, err
		}
		return &ast.BadExpr{Pos: pos(t), Kind: "lambda"}, nil
	}
	x, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if p.atKw("if") {
		p.next()
		if _, err := p.orExpr(); err != nil {
			return nil, err
		}
		if !p.atKw("else") {
			return nil, p.errorAt(p.peek(), "expected 'else' in conditional expression")
		}
		p.next()
		if _, err := p.expr(); err != nil {
			return nil, err
		}
		return &ast.BadExpr{Pos: ast.Pos{Line: x.Line()}, Kind: "conditional expression"}, nil
	}
	return x, nil
}

func (p *parser) orExpr() (ast.Expr, error) {
	return p.boolChain("or", p.andExpr)
}

func (p *parser) andExpr() (ast.Expr, error) {
	return p.boolChain("and", p.notExpr)
}

func (p *parser) boolChain(kw string, operand func() (ast.Expr, error)) (ast.Expr, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	if !p.atKw(kw) {
		return x, nil
	}
	for p.atKw(kw) {
		p.next()
		if _, err := operand(); err != nil {
			return nil, err
		}
	}
	return &ast.BadExpr{Pos: ast.Pos{Line: x.Line()}, Kind: "boolean operator '" + kw + "'"}, nil
}

func (p *parser) notExpr() (ast.Expr, error) {
	if p.atKw("not") {
		t := p.next()
		if _, err := p.notExpr(); err != nil {
			return nil, err
		}
		return &ast.BadExpr{Pos: pos(t), Kind: "boolean operator 'not'"}, nil
	}
	return p.comparison()
}

var cmpOps = map[string]ast.CmpOp{
	">":  ast.Gt,
	"<":  ast.Lt,
	"==": ast.Eq,
	">=": ast.GtE,
	"<=": ast.LtE,
	"!=": ast.NotEq,
}

func (p *parser) comparison() (ast.Expr, error) {
	left, err := p.arith()
	if err != nil {
		return nil, err
	}
	var (
		ops     []ast.CmpOp
		right   ast.Expr
		badKind string
	)
	for {
		t := p.peek()
		if t.Type == OP {
			op, ok := cmpOps[t.Lexeme]
			if !ok {
				break
			}
			p.next()
			ops = append(ops, op)
		} else if t.is(KEYWORD, "in") || t.is(KEYWORD, "is") {
			p.next()
			if p.atKw("not") {
				p.next()
			}
			badKind = "'" + t.Lexeme + "' comparison"
			ops = append(ops, ast.Eq)
		} else if t.is(KEYWORD, "not") && p.toks[p.pos+1].is(KEYWORD, "in") {
			p.next()
			p.next()
			badKind = "'not in' comparison"
			ops = append(ops, ast.Eq)
		} else {
			break
		}
		if right, err = p.arith(); err != nil {
			return nil, err
		}
	}
	switch {
	case len(ops) == 0:
		return left, nil
	case badKind != "":
		return &ast.BadExpr{Pos: ast.Pos{Line: left.Line()}, Kind: badKind}, nil
	case len(ops) > 1:
		return &ast.BadExpr{Pos: ast.Pos{Line: left.Line()}, Kind: "chained comparison"}, nil
	}
	return &ast.Compare{Pos: ast.Pos{Line: left.Line()}, Op: ops[0], Left: left, Right: right}, nil
}

func (p *parser) arith() (ast.Expr, error) {
	return p.binary(p.term, "+", "-", "|", "&", "^")
}

func (p *parser) term() (ast.Expr, error) {
	return p.binary(p.factor, "*", "/", "//", "%", "@")
}

func (p *parser) binary(operand func() (ast.Expr, error), ops ...string) (ast.Expr, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}
	matched := false
	for {
		t := p.peek()
		found := false
		for _, op := range ops {
			if t.is(OP, op) {
				found = true
				break
			}
		}
		if !found {
			break
		}
		p.next()
		matched = true
		if _, err := operand(); err != nil {
			return nil, err
		}
	}
	if matched {
		return &ast.BadExpr{Pos: ast.Pos{Line: x.Line()}, Kind: "arithmetic"}, nil
	}
	return x, nil
}

// factor folds a minus sign into a numeric literal; other unary operators
// are not accepted.
func (p *parser) factor() (ast.Expr, error) {
	t := p.peek()
	if t.is(OP, "-") || t.is(OP, "+") || t.is(OP, "~") {
		p.next()
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		if c, ok := x.(*ast.Constant); ok && t.Lexeme != "~" {
			if neg, ok := signed(c.Value, t.Lexeme == "-"); ok {
				return &ast.Constant{Pos: pos(t), Value: neg}, nil
			}
		}
		return &ast.BadExpr{Pos: pos(t), Kind: "unary operator '" + t.Lexeme + "'"}, nil
	}
	return p.power()
}

func signed(v value.Value, negate bool) (value.Value, bool) {
	switch v.Kind() {
	case value.Int:
		i, _ := v.AsInt()
		if negate {
			i = -i
		}
		return value.NewInt(i), true
	case value.Float:
		f, _ := v.AsNumber()
		if negate {
			f = -f
		}
		return value.NewFloat(f), true
	}
	return value.Value{}, false
}

func (p *parser) power() (ast.Expr, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	if p.atOp("**") {
		p.next()
		if _, err := p.factor(); err != nil {
			return nil, err
		}
		return &ast.BadExpr{Pos: ast.Pos{Line: x.Line()}, Kind: "arithmetic"}, nil
	}
	return x, nil
}

func (p *parser) primary() (ast.Expr, error) {
	x, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.is(OP, "("):
			x, err = p.call(x)
			if err != nil {
				return nil, err
			}
		case t.is(OP, "["):
			p.next()
			if err := p.skipUntilClose("]"); err != nil {
				return nil, err
			}
			x = &ast.BadExpr{Pos: ast.Pos{Line: x.Line()}, Kind: "subscript"}
		case t.is(OP, "."):
			p.next()
			if !p.at(NAME) && !p.at(KEYWORD) {
				return nil, p.errorAt(p.peek(), "expected attribute name")
			}
			p.next()
			x = &ast.BadExpr{Pos: ast.Pos{Line: x.Line()}, Kind: "attribute access"}
		default:
			return x, nil
		}
	}
}

func (p *parser) call(fn ast.Expr) (ast.Expr, error) {
	p.next()
	var (
		args    []ast.Expr
		badKind string
	)
	for !p.atOp(")") {
		switch {
		case p.atOp("*") || p.atOp("**"):
			p.next()
			badKind = "star arguments"
		case p.at(NAME) && p.toks[p.pos+1].is(OP, "="):
			p.next()
			p.next()
			badKind = "keyword arguments"
		}
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.atKw("for") {
			return nil, p.errorAt(p.peek(), "generator expressions are not supported")
		}
		if !p.atOp(",") {
			break
		}
		p.next()
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	name, ok := fn.(*ast.Name)
	if !ok {
		return &ast.BadExpr{Pos: ast.Pos{Line: fn.Line()}, Kind: "call of a non-name"}, nil
	}
	if badKind != "" {
		return &ast.BadExpr{Pos: name.Pos, Kind: badKind}, nil
	}
	return &ast.Call{Pos: name.Pos, Func: name.ID, Args: args}, nil
}

func (p *parser) atom() (ast.Expr, error) {
	t := p.peek()
	switch t.Type {
	case NAME:
		p.next()
		return &ast.Name{Pos: pos(t), ID: t.Lexeme}, nil
	case INT:
		p.next()
		return &ast.Constant{Pos: pos(t), Value: value.NewInt(t.Literal.(int64))}, nil
	case FLOAT:
		p.next()
		return &ast.Constant{Pos: pos(t), Value: value.NewFloat(t.Literal.(float64))}, nil
	case STRING:
		p.next()
		s := t.Literal.(string)
		for p.at(STRING) {
			s += p.next().Literal.(string)
		}
		return &ast.Constant{Pos: pos(t), Value: value.NewStr(s)}, nil
	case KEYWORD:
		switch t.Lexeme {
		case "True":
			p.next()
			return &ast.Constant{Pos: pos(t), Value: value.NewBool(true)}, nil
		case "False":
			p.next()
			return &ast.Constant{Pos: pos(t), Value: value.NewBool(false)}, nil
		case "None":
			p.next()
			return &ast.Constant{Pos: pos(t), Value: value.Value{}}, nil
		case "await", "yield":
			p.next()
			if _, err := p.expr(); err != nil {
				return nil, err
			}
			return &ast.BadExpr{Pos: pos(t), Kind: t.Lexeme + " expression"}, nil
		}
	case OP:
		switch t.Lexeme {
		case "(":
			p.next()
			if p.atOp(")") {
				p.next()
				return &ast.BadExpr{Pos: pos(t), Kind: "tuple"}, nil
			}
			x, err := p.exprList()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			p.next()
			if err := p.skipUntilClose("]"); err != nil {
				return nil, err
			}
			return &ast.BadExpr{Pos: pos(t), Kind: "list literal"}, nil
		case "{":
			p.next()
			if err := p.skipUntilClose("}"); err != nil {
				return nil, err
			}
			return &ast.BadExpr{Pos: pos(t), Kind: "dict or set literal"}, nil
		}
	}
	return nil, p.errorAt(t, "invalid syntax: unexpected %s", t.describe())
}

// skipUntilClose consumes tokens through the bracket matching one already
// consumed. The lexer guarantees brackets balance.
func (p *parser) skipUntilClose(close string) error {
	depth := 1
	for depth > 0 {
		t := p.next()
		switch {
		case t.Type == EOF:
			return p.errorAt(t, "expected %q", close)
		case t.is(OP, "(") || t.is(OP, "[") || t.is(OP, "{"):
			depth++
		case t.is(OP, ")") || t.is(OP, "]") || t.is(OP, "}"):
			depth--
		}
	}
	return nil
}
