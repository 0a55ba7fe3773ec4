package interp

import (
	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/script/ast"
)

// Check reports, without running anything, every construct that would end a
// run with a syntax error or an unknown-function error. Both branches of an
// if and every loop body are visited. Diagnostics are in source order.
func Check(prog *ast.Program) []*Error {
	var c checker
	if prog != nil {
		c.stmts(prog.Body)
	}
	return c.errs
}

type checker struct {
	errs []*Error
}

func (c *checker) stmts(body []ast.Stmt) {
	for _, s := range body {
		c.stmt(s)
	}
}

func (c *checker) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.If:
		c.expr(s.Test)
		c.stmts(s.Body)
		c.stmts(s.Else)
	case *ast.For:
		c.expr(s.Iter)
		c.stmts(s.Body)
	case *ast.Assign:
		c.expr(s.Value)
	case *ast.ExprStmt:
		switch x := s.X.(type) {
		case *ast.Call, *ast.BadExpr:
			c.expr(x)
		default:
			c.errs = append(c.errs, syntaxError(s.Line(), protocol.ErrUnsupportedSyntax,
				"only function calls are allowed as statements"))
		}
	case *ast.BadStmt:
		c.errs = append(c.errs, syntaxError(s.Line(), protocol.ErrUnsupportedSyntax,
			"unsupported syntax: %s", s.Kind))
	}
}

func (c *checker) expr(e ast.Expr) {
	switch x := e.(type) {
	case *ast.Call:
		for _, a := range x.Args {
			c.expr(a)
		}
		if _, ok := builtins[x.Func]; !ok && x.Func != "range" {
			c.errs = append(c.errs, ruleError(x.Line(), protocol.ErrUnknownFunction,
				"unknown function: %s", x.Func))
		}
	case *ast.Compare:
		c.expr(x.Left)
		c.expr(x.Right)
		switch x.Op {
		case ast.Eq, ast.Lt, ast.Gt:
		default:
			c.errs = append(c.errs, syntaxError(x.Line(), protocol.ErrUnsupportedExpression,
				"unsupported comparison: %s", x.Op))
		}
	case *ast.BadExpr:
		c.errs = append(c.errs, syntaxError(x.Line(), protocol.ErrUnsupportedExpression,
			"unsupported expression: %s", x.Kind))
	}
}
