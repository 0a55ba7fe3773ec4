package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrNotRunning      = "E_NOT_RUNNING"
	ErrInternal        = "E_INTERNAL"

	// Script syntax: constructs outside the farm grammar.
	ErrParse                 = "E_PARSE"
	ErrUnsupportedSyntax     = "E_UNSUPPORTED_SYNTAX"
	ErrUnsupportedExpression = "E_UNSUPPORTED_EXPRESSION"

	// Farm rules.
	ErrUnknownFunction   = "E_UNKNOWN_FUNCTION"
	ErrUnknownCrop       = "E_UNKNOWN_CROP"
	ErrCellOccupied      = "E_CELL_OCCUPIED"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrEmptyCell         = "E_EMPTY_CELL"
	ErrCropNotMature     = "E_CROP_NOT_MATURE"
	ErrOutOfBounds       = "E_OUT_OF_BOUNDS"
	ErrBadArgument       = "E_BAD_ARGUMENT"

	// Resource limits.
	ErrStepLimit = "E_STEP_LIMIT"
	ErrTimeout   = "E_TIMEOUT"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:       {},
	ErrNotRunning:            {},
	ErrInternal:              {},
	ErrParse:                 {},
	ErrUnsupportedSyntax:     {},
	ErrUnsupportedExpression: {},
	ErrUnknownFunction:       {},
	ErrUnknownCrop:           {},
	ErrCellOccupied:          {},
	ErrInsufficientFunds:     {},
	ErrEmptyCell:             {},
	ErrCropNotMature:         {},
	ErrOutOfBounds:           {},
	ErrBadArgument:           {},
	ErrStepLimit:             {},
	ErrTimeout:               {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
