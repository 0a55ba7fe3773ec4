package farm

// Event kinds.
const (
	EventCellUpdate = "cell_update"
	EventWait       = "wait"
)

// Event is emitted by every mutating Farm operation. X/Y/Cell describe the
// affected cell; for clear_field they reference the origin cell. Line is
// filled in by the interpreter with the originating source line.
type Event struct {
	Kind    string  `json:"type"`
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Cell    *Cell   `json:"cell,omitempty"`
	Gold    int     `json:"gold"`
	Seconds float64 `json:"seconds,omitempty"`
	Line    int     `json:"line,omitempty"`
}

func (f *Farm) cellEvent(x, y int) Event {
	c := f.grid[y][x]
	return Event{
		Kind: EventCellUpdate,
		X:    x,
		Y:    y,
		Cell: &c,
		Gold: f.gold,
	}
}
