// Package interp executes farm scripts one statement at a time.
//
// An Interpreter owns a work stack of pending statements. Each call to Step
// pops work until a domain call produces an event, so a driver can pause
// between events for as long as it likes. Control flow (if, for, assignment)
// never surfaces an event on its own; it rewrites the stack and continues.
// Every popped item costs one step and advances farm time by TimePerStep.
package interp

import (
	"time"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/script/ast"
	"cyberfarm.ai/internal/script/value"
	"cyberfarm.ai/internal/sim/farm"
	"cyberfarm.ai/internal/sim/tuning"
)

// World is the side-effecting surface a script can reach. *farm.Farm
// implements it.
type World interface {
	AdvanceTime(dt float64)
	Plant(crop string, x, y int) (farm.Event, error)
	Water(x, y int) (farm.Event, error)
	Harvest(x, y int) (farm.Event, error)
	Wait(dt float64) farm.Event
	ClearField() farm.Event
}

type Options struct {
	MaxSteps    int
	Timeout     time.Duration
	TimePerStep float64
	// Manual runs are stepped by a person and have no wall-clock limit.
	Manual bool
	Now    func() time.Time
}

func OptionsFromTuning(t tuning.Tuning, manual bool) Options {
	return Options{
		MaxSteps:    t.MaxSteps,
		Timeout:     t.RunTimeout(),
		TimePerStep: t.TimePerStep,
		Manual:      manual,
	}
}

func (o *Options) applyDefaults() {
	if o.MaxSteps <= 0 {
		o.MaxSteps = 200
	}
	if o.Timeout <= 0 {
		o.Timeout = 1800 * time.Second
	}
	if o.TimePerStep == 0 {
		o.TimePerStep = 1.0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Interpreter struct {
	world World
	opts  Options

	stack   []ast.Stmt
	vars    map[string]value.Value
	steps   int
	started time.Time // zero for manual runs

	err error
}

// New prepares a run of prog against w. The interpreter is single-use: once
// Step reports ErrFinished or an error, build a new one for the next run.
func New(prog *ast.Program, w World, opts Options) *Interpreter {
	opts.applyDefaults()
	in := &Interpreter{
		world: w,
		opts:  opts,
		vars:  make(map[string]value.Value),
	}
	if prog != nil {
		in.stack = make([]ast.Stmt, 0, len(prog.Body))
		for i := len(prog.Body) - 1; i >= 0; i-- {
			in.stack = append(in.stack, prog.Body[i])
		}
	}
	if !opts.Manual {
		in.started = opts.Now()
	}
	return in
}

func (in *Interpreter) Steps() int { return in.steps }

// Pending is the number of statements left on the work stack.
func (in *Interpreter) Pending() int { return len(in.stack) }

// Err is the error that ended the run, if any.
func (in *Interpreter) Err() error { return in.err }

// Var returns a variable's current binding; unbound names are None.
func (in *Interpreter) Var(name string) value.Value { return in.vars[name] }

func (in *Interpreter) push(stmts []ast.Stmt) {
	for i := len(stmts) - 1; i >= 0; i-- {
		in.stack = append(in.stack, stmts[i])
	}
}

func (in *Interpreter) fail(err *Error) (farm.Event, error) {
	in.err = err
	in.stack = nil
	return farm.Event{}, err
}

// Step runs until the next visible event. It returns ErrFinished when the
// script is exhausted and an *Error when the run fails; both are terminal.
func (in *Interpreter) Step() (farm.Event, error) {
	if in.err != nil {
		return farm.Event{}, in.err
	}
	for {
		if len(in.stack) == 0 {
			return farm.Event{}, ErrFinished
		}
		node := in.stack[len(in.stack)-1]
		in.stack = in.stack[:len(in.stack)-1]
		in.steps++

		if in.steps > in.opts.MaxSteps {
			return in.fail(limitError(node.Line(), protocol.ErrStepLimit,
				"script exceeded maximum execution steps (%d)", in.opts.MaxSteps))
		}
		if !in.started.IsZero() && in.opts.Now().Sub(in.started) > in.opts.Timeout {
			return in.fail(limitError(node.Line(), protocol.ErrTimeout,
				"script timeout after %s", in.opts.Timeout))
		}

		in.world.AdvanceTime(in.opts.TimePerStep)

		switch s := node.(type) {
		case *ast.If:
			test, err := in.eval(s.Test)
			if err != nil {
				return in.fail(err)
			}
			if test.Truthy() {
				in.push(s.Body)
			} else {
				in.push(s.Else)
			}

		case *ast.For:
			if err := in.unroll(s); err != nil {
				return in.fail(err)
			}

		case *ast.Assign:
			v, err := in.eval(s.Value)
			if err != nil {
				return in.fail(err)
			}
			in.vars[s.Target] = v

		case *ast.ExprStmt:
			switch x := s.X.(type) {
			case *ast.Call:
				ev, err := in.call(x)
				if err != nil {
					return in.fail(err)
				}
				return ev, nil
			case *ast.BadExpr:
				return in.fail(syntaxError(x.Line(), protocol.ErrUnsupportedExpression,
					"unsupported expression: %s", x.Kind))
			default:
				return in.fail(syntaxError(s.Line(), protocol.ErrUnsupportedSyntax,
					"only function calls are allowed as statements"))
			}

		case *ast.BadStmt:
			return in.fail(syntaxError(s.Line(), protocol.ErrUnsupportedSyntax,
				"unsupported syntax: %s", s.Kind))

		default:
			return in.fail(syntaxError(node.Line(), protocol.ErrUnsupportedSyntax, "unsupported syntax"))
		}
	}
}

// unroll evaluates the loop header once and pushes every iteration: a
// synthetic assignment of the loop variable followed by the body.
//
// Iterations that could never run before the step limit are not pushed, so
// a huge range costs no more than the remaining budget.
func (in *Interpreter) unroll(s *ast.For) *Error {
	it, err := in.eval(s.Iter)
	if err != nil {
		return err
	}
	span, ok := it.AsSpan()
	if !ok {
		return ruleError(s.Line(), protocol.ErrBadArgument,
			"for loop needs range(...), got %s", it.Kind())
	}

	n := span.Len()
	per := int64(len(s.Body) + 1)
	if limit := int64(in.opts.MaxSteps-in.steps)/per + 1; n > limit {
		n = limit
	}
	for i := n - 1; i >= 0; i-- {
		in.push(s.Body)
		in.stack = append(in.stack, &ast.Assign{
			Pos:    s.Pos,
			Target: s.Target,
			Value:  &ast.Constant{Pos: s.Pos, Value: value.NewInt(span.At(i))},
		})
	}
	return nil
}
