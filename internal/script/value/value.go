package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

type Kind uint8

const (
	None Kind = iota
	Bool
	Int
	Float
	Str
	Range
)

func (k Kind) String() string {
	switch k {
	case None:
		return "None"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case Str:
		return "str"
	case Range:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a script scalar. The zero Value is None.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	r    Span
}

// Span is a half-open arithmetic sequence, like a Python range.
type Span struct {
	Start, Stop, Step int64
}

var ErrInvalidRange = errors.New("invalid range() arguments")

func NewBool(b bool) Value     { return Value{kind: Bool, b: b} }
func NewInt(i int64) Value     { return Value{kind: Int, i: i} }
func NewFloat(f float64) Value { return Value{kind: Float, f: f} }
func NewStr(s string) Value    { return Value{kind: Str, s: s} }

// NewRange mirrors range(stop), range(start, stop), range(start, stop, step).
func NewRange(args ...Value) (Value, error) {
	if len(args) < 1 || len(args) > 3 {
		return Value{}, fmt.Errorf("%w: expected 1 to 3 arguments, got %d", ErrInvalidRange, len(args))
	}
	ints := make([]int64, len(args))
	for i, a := range args {
		if a.kind != Int {
			return Value{}, fmt.Errorf("%w: argument %d is %s, not int", ErrInvalidRange, i+1, a.kind)
		}
		ints[i] = a.i
	}
	sp := Span{Step: 1}
	switch len(ints) {
	case 1:
		sp.Stop = ints[0]
	case 2:
		sp.Start, sp.Stop = ints[0], ints[1]
	case 3:
		sp.Start, sp.Stop, sp.Step = ints[0], ints[1], ints[2]
	}
	if sp.Step == 0 {
		return Value{}, fmt.Errorf("%w: step must not be zero", ErrInvalidRange)
	}
	return Value{kind: Range, r: sp}, nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsInt() (int64, bool)  { return v.i, v.kind == Int }
func (v Value) AsStr() (string, bool) { return v.s, v.kind == Str }
func (v Value) AsSpan() (Span, bool)  { return v.r, v.kind == Range }
func (v Value) AsBool() (bool, bool)  { return v.b, v.kind == Bool }

// AsNumber accepts ints and floats.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case Int:
		return float64(v.i), true
	case Float:
		return v.f, true
	}
	return 0, false
}

// Len is the number of elements in the span, saturating at MaxInt64.
func (s Span) Len() int64 {
	var diff, step uint64
	switch {
	case s.Step > 0 && s.Stop > s.Start:
		diff, step = uint64(s.Stop)-uint64(s.Start), uint64(s.Step)
	case s.Step < 0 && s.Stop < s.Start:
		diff, step = uint64(s.Start)-uint64(s.Stop), uint64(-s.Step)
	default:
		return 0
	}
	n := diff / step
	if diff%step != 0 {
		n++
	}
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

// At returns the i-th element; i must be in [0, Len()).
func (s Span) At(i int64) int64 { return s.Start + i*s.Step }

func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Int:
		return v.i != 0
	case Float:
		return v.f != 0
	case Str:
		return v.s != ""
	case Range:
		return v.r.Len() > 0
	default:
		return false
	}
}

// numeric is AsNumber widened to bools (False is 0, True is 1) for comparisons.
func numeric(v Value) (float64, bool) {
	if v.kind == Bool {
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return v.AsNumber()
}

// Equal compares bools, ints and floats numerically; other kinds must match.
func Equal(a, b Value) bool {
	if an, ok := numeric(a); ok {
		if bn, ok := numeric(b); ok {
			return an == bn
		}
		return false
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case None:
		return true
	case Str:
		return a.s == b.s
	case Range:
		al, bl := a.r.Len(), b.r.Len()
		if al != bl {
			return false
		}
		if al == 0 {
			return true
		}
		if a.r.Start != b.r.Start {
			return false
		}
		return al == 1 || a.r.Step == b.r.Step
	}
	return false
}

var ErrNotOrderable = errors.New("values are not orderable")

// Less orders two numbers (bools count as 0 and 1) or two strings.
func Less(a, b Value) (bool, error) {
	if an, ok := numeric(a); ok {
		if bn, ok := numeric(b); ok {
			return an < bn, nil
		}
	}
	if a.kind == Str && b.kind == Str {
		return a.s < b.s, nil
	}
	return false, fmt.Errorf("%w: %s and %s", ErrNotOrderable, a.kind, b.kind)
}

func (v Value) String() string {
	switch v.kind {
	case None:
		return "None"
	case Bool:
		if v.b {
			return "True"
		}
		return "False"
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Str:
		return strconv.Quote(v.s)
	case Range:
		if v.r.Step == 1 {
			return fmt.Sprintf("range(%d, %d)", v.r.Start, v.r.Stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", v.r.Start, v.r.Stop, v.r.Step)
	default:
		return v.kind.String()
	}
}
