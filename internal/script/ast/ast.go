// Package ast is the syntax tree of farm scripts.
//
// Stmt and Expr are closed sums: every node kind lives in this file and
// consumers dispatch with a type switch. Constructs the parser recognises but
// the runtime does not accept are kept as BadStmt/BadExpr so they can be
// reported with their line instead of failing the whole parse.
package ast

import "cyberfarm.ai/internal/script/value"

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

type Node interface {
	Line() int
}

type Stmt interface {
	Node
	stmtNode()
}

type Expr interface {
	Node
	exprNode()
}

type Program struct {
	Body []Stmt
}

// Statements.

// If has an optional Else; `elif` chains are nested Ifs inside Else.
type If struct {
	Pos  Pos
	Test Expr
	Body []Stmt
	Else []Stmt
}

// For is `for Target in Iter:`.
type For struct {
	Pos    Pos
	Target string
	Iter   Expr
	Body   []Stmt
}

type Assign struct {
	Pos    Pos
	Target string
	Value  Expr
}

// ExprStmt is an expression used as a statement, normally a bare call.
type ExprStmt struct {
	Pos Pos
	X   Expr
}

// BadStmt is a recognised statement outside the accepted grammar
// (while, def, return, augmented assignment, ...).
type BadStmt struct {
	Pos  Pos
	Kind string
}

func (s *If) Line() int       { return s.Pos.Line }
func (s *For) Line() int      { return s.Pos.Line }
func (s *Assign) Line() int   { return s.Pos.Line }
func (s *ExprStmt) Line() int { return s.Pos.Line }
func (s *BadStmt) Line() int  { return s.Pos.Line }

func (*If) stmtNode()       {}
func (*For) stmtNode()      {}
func (*Assign) stmtNode()   {}
func (*ExprStmt) stmtNode() {}
func (*BadStmt) stmtNode()  {}

// Expressions.

type Constant struct {
	Pos   Pos
	Value value.Value
}

type Name struct {
	Pos Pos
	ID  string
}

// Call is a call of a bare function name; `range` is a Call too.
type Call struct {
	Pos  Pos
	Func string
	Args []Expr
}

type CmpOp uint8

const (
	Gt CmpOp = iota
	Lt
	Eq
	GtE
	LtE
	NotEq
)

func (op CmpOp) String() string {
	switch op {
	case Gt:
		return ">"
	case Lt:
		return "<"
	case Eq:
		return "=="
	case GtE:
		return ">="
	case LtE:
		return "<="
	case NotEq:
		return "!="
	default:
		return "?"
	}
}

// Compare is a single binary comparison. Chained comparisons are BadExpr.
type Compare struct {
	Pos   Pos
	Op    CmpOp
	Left  Expr
	Right Expr
}

// BadExpr is a recognised expression outside the accepted grammar
// (arithmetic, boolean operators, subscripts, list literals, ...).
type BadExpr struct {
	Pos  Pos
	Kind string
}

func (e *Constant) Line() int { return e.Pos.Line }
func (e *Name) Line() int     { return e.Pos.Line }
func (e *Call) Line() int     { return e.Pos.Line }
func (e *Compare) Line() int  { return e.Pos.Line }
func (e *BadExpr) Line() int  { return e.Pos.Line }

func (*Constant) exprNode() {}
func (*Name) exprNode()     {}
func (*Call) exprNode()     {}
func (*Compare) exprNode()  {}
func (*BadExpr) exprNode()  {}
