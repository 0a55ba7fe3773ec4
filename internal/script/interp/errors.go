package interp

import (
	"errors"
	"fmt"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/sim/farm"
)

// ErrFinished is returned by Step once the script has no work left.
var ErrFinished = errors.New("script finished")

type Category string

const (
	// CategorySyntax: a construct outside the farm grammar.
	CategorySyntax Category = "syntax"
	// CategoryRule: a farm rule violation the user can fix and resubmit.
	CategoryRule Category = "rule"
	// CategoryLimit: the script ran too long or too many steps.
	CategoryLimit Category = "limit"
)

// Error is a run-ending diagnostic attributed to a source line.
type Error struct {
	Line     int
	Code     string
	Category Category
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func syntaxError(line int, code, format string, args ...interface{}) *Error {
	return &Error{Line: line, Code: code, Category: CategorySyntax, Msg: fmt.Sprintf(format, args...)}
}

func ruleError(line int, code, format string, args ...interface{}) *Error {
	return &Error{Line: line, Code: code, Category: CategoryRule, Msg: fmt.Sprintf(format, args...)}
}

func limitError(line int, code, format string, args ...interface{}) *Error {
	return &Error{Line: line, Code: code, Category: CategoryLimit, Msg: fmt.Sprintf(format, args...)}
}

var farmCodes = []struct {
	err  error
	code string
}{
	{farm.ErrUnknownCrop, protocol.ErrUnknownCrop},
	{farm.ErrCellOccupied, protocol.ErrCellOccupied},
	{farm.ErrInsufficientFunds, protocol.ErrInsufficientFunds},
	{farm.ErrEmptyCell, protocol.ErrEmptyCell},
	{farm.ErrCropNotMature, protocol.ErrCropNotMature},
	{farm.ErrOutOfBounds, protocol.ErrOutOfBounds},
}

// farmError wraps a farm operation failure as a rule violation.
func farmError(line int, err error) *Error {
	code := protocol.ErrInternal
	for _, fc := range farmCodes {
		if errors.Is(err, fc.err) {
			code = fc.code
			break
		}
	}
	return &Error{Line: line, Code: code, Category: CategoryRule, Msg: err.Error(), Err: err}
}
