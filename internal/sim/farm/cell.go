package farm

import "encoding/json"

const (
	plantWater    = 0.3
	baseNutrient  = 0.5
	waterPerWater = 0.4
	waterGrowth   = 0.15
)

// Cell is one grid plot. An empty cell has Type == "" and creation defaults.
type Cell struct {
	Type     string
	Maturity float64
	Water    float64
	Nutrient float64 // reserved; not read by any growth rule
}

func emptyCell() Cell {
	return Cell{Nutrient: baseNutrient}
}

func (c Cell) Empty() bool { return c.Type == "" }

type cellJSON struct {
	Type     *string `json:"type"`
	Maturity float64 `json:"maturity"`
	Water    float64 `json:"water"`
	Nutrient float64 `json:"nutrient"`
}

// MarshalJSON encodes an empty cell's type as null.
func (c Cell) MarshalJSON() ([]byte, error) {
	out := cellJSON{Maturity: c.Maturity, Water: c.Water, Nutrient: c.Nutrient}
	if c.Type != "" {
		t := c.Type
		out.Type = &t
	}
	return json.Marshal(out)
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	var in cellJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	c.Type = ""
	if in.Type != nil {
		c.Type = *in.Type
	}
	c.Maturity = in.Maturity
	c.Water = in.Water
	c.Nutrient = in.Nutrient
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
