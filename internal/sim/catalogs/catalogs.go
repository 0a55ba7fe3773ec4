package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Catalogs is immutable after Load/Defaults returns; share it by pointer.
type Catalogs struct {
	Crops CropCatalog
}

type CropCatalog struct {
	Palette []string
	ByID    map[string]CropDef
	Digest  string
}

type CropDef struct {
	ID          string  `json:"id"`
	PlantCost   int     `json:"plant_cost"`
	HarvestGain int     `json:"harvest_gain"`
	GrowSpeed   float64 `json:"grow_speed"`
}

// Lookup never falls back to a default crop.
func (c *Catalogs) Lookup(id string) (CropDef, bool) {
	if c == nil {
		return CropDef{}, false
	}
	def, ok := c.Crops.ByID[id]
	return def, ok
}

// Sorted returns crop definitions in palette order.
func (c *Catalogs) Sorted() []CropDef {
	out := make([]CropDef, 0, len(c.Crops.Palette))
	for _, id := range c.Crops.Palette {
		out = append(out, c.Crops.ByID[id])
	}
	return out
}

var defaultCrops = []CropDef{
	{ID: "grass", PlantCost: 1, HarvestGain: 5, GrowSpeed: 0.20},
	{ID: "wheat", PlantCost: 5, HarvestGain: 10, GrowSpeed: 0.12},
	{ID: "carrot", PlantCost: 7, HarvestGain: 15, GrowSpeed: 0.10},
	{ID: "cabbage", PlantCost: 8, HarvestGain: 20, GrowSpeed: 0.08},
	{ID: "strawberry", PlantCost: 10, HarvestGain: 28, GrowSpeed: 0.06},
	{ID: "eggplant", PlantCost: 9, HarvestGain: 22, GrowSpeed: 0.05},
	{ID: "tomato", PlantCost: 10, HarvestGain: 18, GrowSpeed: 0.10},
}

// Defaults returns the built-in crop table.
func Defaults() *Catalogs {
	raw, _ := json.Marshal(defaultCrops)
	c, err := build(raw, defaultCrops)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads <configDir>/crops.json. A missing file yields Defaults().
func Load(configDir string) (*Catalogs, error) {
	path := filepath.Join(configDir, "crops.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, err
	}
	var defs []CropDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("crops.json: %w", err)
	}
	return build(raw, defs)
}

func build(raw []byte, defs []CropDef) (*Catalogs, error) {
	c := &Catalogs{}
	c.Crops.ByID = make(map[string]CropDef, len(defs))
	for _, d := range defs {
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("crops.json: %w", err)
		}
		if _, dup := c.Crops.ByID[d.ID]; dup {
			return nil, fmt.Errorf("crops.json: duplicate id %q", d.ID)
		}
		c.Crops.ByID[d.ID] = d
		c.Crops.Palette = append(c.Crops.Palette, d.ID)
	}
	if len(c.Crops.ByID) == 0 {
		return nil, fmt.Errorf("crops.json: no crops defined")
	}

	c.Crops.Digest = sha256Hex(raw)
	return c, nil
}

func validate(d CropDef) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("empty id")
	case d.PlantCost <= 0:
		return fmt.Errorf("crop %s: plant_cost must be positive", d.ID)
	case d.HarvestGain <= 0:
		return fmt.Errorf("crop %s: harvest_gain must be positive", d.ID)
	case d.GrowSpeed <= 0:
		return fmt.Errorf("crop %s: grow_speed must be positive", d.ID)
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
