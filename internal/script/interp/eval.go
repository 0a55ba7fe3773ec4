package interp

import (
	"fmt"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/script/ast"
	"cyberfarm.ai/internal/script/value"
	"cyberfarm.ai/internal/sim/farm"
)

func (in *Interpreter) eval(e ast.Expr) (value.Value, *Error) {
	switch x := e.(type) {
	case *ast.Constant:
		return x.Value, nil

	case *ast.Name:
		return in.vars[x.ID], nil

	case *ast.Call:
		if x.Func == "range" {
			args, err := in.evalArgs(x.Args)
			if err != nil {
				return value.Value{}, err
			}
			r, rerr := value.NewRange(args...)
			if rerr != nil {
				return value.Value{}, &Error{
					Line: x.Line(), Code: protocol.ErrBadArgument, Category: CategoryRule,
					Msg: rerr.Error(), Err: rerr,
				}
			}
			return r, nil
		}
		// A domain call inside an expression still mutates the farm; its
		// event is not surfaced.
		if _, err := in.call(x); err != nil {
			return value.Value{}, err
		}
		return value.NewBool(true), nil

	case *ast.Compare:
		left, err := in.eval(x.Left)
		if err != nil {
			return value.Value{}, err
		}
		right, err := in.eval(x.Right)
		if err != nil {
			return value.Value{}, err
		}
		switch x.Op {
		case ast.Eq:
			return value.NewBool(value.Equal(left, right)), nil
		case ast.Lt, ast.Gt:
			a, b := left, right
			if x.Op == ast.Gt {
				a, b = right, left
			}
			less, lerr := value.Less(a, b)
			if lerr != nil {
				return value.Value{}, &Error{
					Line: x.Line(), Code: protocol.ErrBadArgument, Category: CategoryRule,
					Msg: fmt.Sprintf("'%s' not supported between %s and %s", x.Op, left.Kind(), right.Kind()),
					Err: lerr,
				}
			}
			return value.NewBool(less), nil
		default:
			return value.Value{}, syntaxError(x.Line(), protocol.ErrUnsupportedExpression,
				"unsupported comparison: %s", x.Op)
		}

	case *ast.BadExpr:
		return value.Value{}, syntaxError(x.Line(), protocol.ErrUnsupportedExpression,
			"unsupported expression: %s", x.Kind)
	}
	return value.Value{}, syntaxError(e.Line(), protocol.ErrUnsupportedExpression, "unsupported expression")
}

func (in *Interpreter) evalArgs(exprs []ast.Expr) ([]value.Value, *Error) {
	args := make([]value.Value, 0, len(exprs))
	for _, a := range exprs {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// call dispatches a whitelisted domain call. Arguments are evaluated left to
// right before the name is checked.
func (in *Interpreter) call(c *ast.Call) (farm.Event, *Error) {
	args, err := in.evalArgs(c.Args)
	if err != nil {
		return farm.Event{}, err
	}
	line := c.Line()
	sig, ok := builtins[c.Func]
	if !ok {
		return farm.Event{}, ruleError(line, protocol.ErrUnknownFunction, "unknown function: %s", c.Func)
	}
	if err := sig.check(c.Func, line, args); err != nil {
		return farm.Event{}, err
	}

	var (
		ev   farm.Event
		ferr error
	)
	switch c.Func {
	case "plant":
		crop, _ := args[0].AsStr()
		ev, ferr = in.world.Plant(crop, coord(args[1]), coord(args[2]))
	case "water":
		ev, ferr = in.world.Water(coord(args[0]), coord(args[1]))
	case "harvest":
		ev, ferr = in.world.Harvest(coord(args[0]), coord(args[1]))
	case "wait":
		dt := 0.0
		if len(args) == 1 {
			dt, _ = args[0].AsNumber()
		}
		ev = in.world.Wait(dt)
	case "clear":
		ev = in.world.ClearField()
	}
	if ferr != nil {
		return farm.Event{}, farmError(line, ferr)
	}
	ev.Line = line
	return ev, nil
}

type argKind uint8

const (
	argInt argKind = iota
	argStr
	argNumber
)

func (k argKind) String() string {
	switch k {
	case argInt:
		return "int"
	case argStr:
		return "str"
	default:
		return "number"
	}
}

func (k argKind) accepts(v value.Value) bool {
	switch k {
	case argInt:
		return v.Kind() == value.Int
	case argStr:
		return v.Kind() == value.Str
	default:
		_, ok := v.AsNumber()
		return ok
	}
}

type signature struct {
	params   []argKind
	optional int // trailing params that may be omitted
}

var builtins = map[string]signature{
	"plant":   {params: []argKind{argStr, argInt, argInt}},
	"water":   {params: []argKind{argInt, argInt}},
	"harvest": {params: []argKind{argInt, argInt}},
	"wait":    {params: []argKind{argNumber}, optional: 1},
	"clear":   {},
}

func (s signature) check(name string, line int, args []value.Value) *Error {
	lo, hi := len(s.params)-s.optional, len(s.params)
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return ruleError(line, protocol.ErrBadArgument, "%s() takes %d arguments, got %d", name, hi, len(args))
		}
		return ruleError(line, protocol.ErrBadArgument, "%s() takes %d to %d arguments, got %d", name, lo, hi, len(args))
	}
	for i, a := range args {
		if !s.params[i].accepts(a) {
			return ruleError(line, protocol.ErrBadArgument, "%s() argument %d must be %s, not %s",
				name, i+1, s.params[i], a.Kind())
		}
	}
	return nil
}

func coord(v value.Value) int {
	i, _ := v.AsInt()
	return int(i)
}
