package farm

import "fmt"

// Snapshot is the full observable world state, used for reconnects, idle
// broadcasts and as the starting point of a recorded run.
type Snapshot struct {
	Type    string   `json:"type"`
	Grid    [][]Cell `json:"grid"`
	Gold    int      `json:"gold"`
	Time    float64  `json:"time"`
	BestROI float64  `json:"best_roi"`
}

func (f *Farm) Snapshot() Snapshot {
	grid := make([][]Cell, len(f.grid))
	for y := range f.grid {
		grid[y] = append([]Cell(nil), f.grid[y]...)
	}
	return Snapshot{
		Type:    "snapshot",
		Grid:    grid,
		Gold:    f.gold,
		Time:    f.time,
		BestROI: f.bestROI,
	}
}

// Restore replaces grid, gold, time and best ROI with the snapshot's.
// Run counters are left untouched.
func (f *Farm) Restore(s Snapshot) error {
	if len(s.Grid) != f.cfg.Size {
		return fmt.Errorf("snapshot grid has %d rows, farm is %d", len(s.Grid), f.cfg.Size)
	}
	grid := make([][]Cell, f.cfg.Size)
	for y, row := range s.Grid {
		if len(row) != f.cfg.Size {
			return fmt.Errorf("snapshot row %d has %d cells, farm is %d", y, len(row), f.cfg.Size)
		}
		for x, c := range row {
			if c.Empty() {
				continue
			}
			if _, ok := f.catalogs.Lookup(c.Type); !ok {
				return fmt.Errorf("snapshot cell (%d, %d): %w: %s", x, y, ErrUnknownCrop, c.Type)
			}
		}
		grid[y] = append([]Cell(nil), row...)
	}
	f.grid = grid
	f.gold = s.Gold
	f.time = s.Time
	f.bestROI = s.BestROI
	return nil
}
