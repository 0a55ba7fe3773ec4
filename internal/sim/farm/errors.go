package farm

import "errors"

// Rule violations. Operations wrap these with detail; match with errors.Is.
var (
	ErrUnknownCrop       = errors.New("unknown crop")
	ErrCellOccupied      = errors.New("cell already occupied")
	ErrInsufficientFunds = errors.New("not enough gold")
	ErrEmptyCell         = errors.New("cell is empty")
	ErrCropNotMature     = errors.New("crop not mature")
	ErrOutOfBounds       = errors.New("coordinates out of bounds")
)
