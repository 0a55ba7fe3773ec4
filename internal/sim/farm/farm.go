package farm

import (
	"fmt"

	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

type Config struct {
	Size        int
	GoldInitial int
	WaterCost   int
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		Size:        t.GridSize,
		GoldInitial: t.GoldInitial,
		WaterCost:   t.WaterCost,
	}
}

func (c *Config) applyDefaults() {
	if c.Size <= 0 {
		c.Size = 6
	}
	if c.GoldInitial == 0 {
		c.GoldInitial = 500
	}
	if c.WaterCost == 0 {
		c.WaterCost = 2
	}
}

// Farm is the grid world and its economy. It is not safe for concurrent use:
// the session driving it is its only mutator.
type Farm struct {
	cfg      Config
	catalogs *catalogs.Catalogs

	grid [][]Cell
	gold int
	time float64

	// Per-run economy, reset by BeginRun.
	runCost int
	runGain int

	// Best ROI across runs; never decreases.
	bestROI float64
}

func New(cfg Config, cats *catalogs.Catalogs) *Farm {
	cfg.applyDefaults()
	if cats == nil {
		cats = catalogs.Defaults()
	}
	f := &Farm{
		cfg:      cfg,
		catalogs: cats,
		gold:     cfg.GoldInitial,
	}
	f.grid = make([][]Cell, cfg.Size)
	for y := range f.grid {
		row := make([]Cell, cfg.Size)
		for x := range row {
			row[x] = emptyCell()
		}
		f.grid[y] = row
	}
	return f
}

func (f *Farm) Config() Config                { return f.cfg }
func (f *Farm) Catalogs() *catalogs.Catalogs  { return f.catalogs }
func (f *Farm) Size() int                     { return f.cfg.Size }
func (f *Farm) Gold() int                     { return f.gold }
func (f *Farm) Time() float64                 { return f.time }
func (f *Farm) BestROI() float64              { return f.bestROI }
func (f *Farm) RunCounters() (cost, gain int) { return f.runCost, f.runGain }

// Cell returns a copy of the cell at (x, y).
func (f *Farm) Cell(x, y int) (Cell, error) {
	if err := f.checkBounds(x, y); err != nil {
		return Cell{}, err
	}
	return f.grid[y][x], nil
}

func (f *Farm) checkBounds(x, y int) error {
	if x < 0 || y < 0 || x >= f.cfg.Size || y >= f.cfg.Size {
		return fmt.Errorf("%w: (%d, %d) on %dx%d grid", ErrOutOfBounds, x, y, f.cfg.Size, f.cfg.Size)
	}
	return nil
}

func (f *Farm) Plant(crop string, x, y int) (Event, error) {
	def, ok := f.catalogs.Lookup(crop)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownCrop, crop)
	}
	if err := f.checkBounds(x, y); err != nil {
		return Event{}, err
	}
	cell := &f.grid[y][x]
	if !cell.Empty() {
		return Event{}, fmt.Errorf("%w: (%d, %d) has %s", ErrCellOccupied, x, y, cell.Type)
	}
	if f.gold < def.PlantCost {
		return Event{}, fmt.Errorf("%w: %s costs %d, have %d", ErrInsufficientFunds, crop, def.PlantCost, f.gold)
	}

	f.gold -= def.PlantCost
	f.runCost += def.PlantCost
	*cell = Cell{
		Type:     crop,
		Maturity: 0,
		Water:    plantWater,
		Nutrient: baseNutrient,
	}
	return f.cellEvent(x, y), nil
}

// Water hydrates the crop and also nudges its maturity directly.
func (f *Farm) Water(x, y int) (Event, error) {
	if err := f.checkBounds(x, y); err != nil {
		return Event{}, err
	}
	cell := &f.grid[y][x]
	if cell.Empty() {
		return Event{}, fmt.Errorf("%w: nothing to water at (%d, %d)", ErrEmptyCell, x, y)
	}
	if f.gold < f.cfg.WaterCost {
		return Event{}, fmt.Errorf("%w: watering costs %d, have %d", ErrInsufficientFunds, f.cfg.WaterCost, f.gold)
	}

	f.gold -= f.cfg.WaterCost
	f.runCost += f.cfg.WaterCost
	cell.Water = clamp01(cell.Water + waterPerWater)
	cell.Maturity = clamp01(cell.Maturity + waterGrowth*cell.Water)
	return f.cellEvent(x, y), nil
}

func (f *Farm) Harvest(x, y int) (Event, error) {
	if err := f.checkBounds(x, y); err != nil {
		return Event{}, err
	}
	cell := &f.grid[y][x]
	if cell.Empty() {
		return Event{}, fmt.Errorf("%w: nothing to harvest at (%d, %d)", ErrEmptyCell, x, y)
	}
	if cell.Maturity < 1.0 {
		return Event{}, fmt.Errorf("%w: %s at (%d, %d) is %.0f%% grown", ErrCropNotMature, cell.Type, x, y, cell.Maturity*100)
	}
	def, ok := f.catalogs.Lookup(cell.Type)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownCrop, cell.Type)
	}

	f.gold += def.HarvestGain
	f.runGain += def.HarvestGain
	*cell = emptyCell()
	return f.cellEvent(x, y), nil
}

// ClearField empties every cell; the event references the origin cell.
func (f *Farm) ClearField() Event {
	for y := range f.grid {
		for x := range f.grid[y] {
			f.grid[y][x] = emptyCell()
		}
	}
	return f.cellEvent(0, 0)
}

// Wait advances time by dt on top of whatever the caller already ticked.
func (f *Farm) Wait(dt float64) Event {
	f.AdvanceTime(dt)
	ev := Event{Kind: EventWait, Gold: f.gold}
	if dt > 0 {
		ev.Seconds = dt
	}
	return ev
}

// AdvanceTime is the only time-driven growth rule: maturity grows by
// grow_speed * water * dt. Water never decays with time.
func (f *Farm) AdvanceTime(dt float64) {
	if dt <= 0 {
		return
	}
	f.time += dt
	for y := range f.grid {
		for x := range f.grid[y] {
			cell := &f.grid[y][x]
			if cell.Empty() {
				continue
			}
			def, ok := f.catalogs.Lookup(cell.Type)
			if !ok {
				continue
			}
			cell.Maturity = clamp01(cell.Maturity + def.GrowSpeed*cell.Water*dt)
		}
	}
}
