package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	GridSize    int `yaml:"grid_size" json:"grid_size"`
	GoldInitial int `yaml:"gold_initial" json:"gold_initial"`
	WaterCost   int `yaml:"water_cost" json:"water_cost"`

	MaxSteps      int     `yaml:"max_steps" json:"max_steps"`
	MaxRunSeconds int     `yaml:"max_run_seconds" json:"max_run_seconds"`
	TimePerStep   float64 `yaml:"time_per_step" json:"time_per_step"`

	IdleTickIntervalMs  int     `yaml:"idle_tick_interval_ms" json:"idle_tick_interval_ms"`
	IdleTickFarmSeconds float64 `yaml:"idle_tick_farm_seconds" json:"idle_tick_farm_seconds"`
	IdleMaxTicks        int     `yaml:"idle_max_ticks" json:"idle_max_ticks"`

	// Presentation only; published to clients as-is.
	ExecIntervalMs int                   `yaml:"exec_interval_ms" json:"exec_interval_ms"`
	Background     string                `yaml:"background" json:"background"`
	FieldRatio     map[string][2]float64 `yaml:"field_ratio" json:"field_ratio"`
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) applyDefaults() {
	if t.GridSize <= 0 {
		t.GridSize = 6
	}
	if t.GoldInitial == 0 {
		t.GoldInitial = 500
	}
	if t.WaterCost == 0 {
		t.WaterCost = 2
	}
	if t.MaxSteps <= 0 {
		t.MaxSteps = 200
	}
	if t.MaxRunSeconds <= 0 {
		t.MaxRunSeconds = 1800
	}
	if t.TimePerStep <= 0 {
		t.TimePerStep = 1.0
	}
	if t.IdleTickIntervalMs <= 0 {
		t.IdleTickIntervalMs = 100
	}
	if t.IdleTickFarmSeconds <= 0 {
		t.IdleTickFarmSeconds = 1.0
	}
	if t.IdleMaxTicks <= 0 {
		t.IdleMaxTicks = 999
	}
	if t.ExecIntervalMs <= 0 {
		t.ExecIntervalMs = 100
	}
	if t.Background == "" {
		t.Background = "assets/farm_bg.webp"
	}
	if len(t.FieldRatio) == 0 {
		t.FieldRatio = map[string][2]float64{
			"topLeft":     {0.425, 0.545},
			"topRight":    {0.755, 0.625},
			"bottomLeft":  {0.165, 0.625},
			"bottomRight": {0.565, 0.815},
		}
	}
}

func (t Tuning) validate() error {
	if t.GoldInitial < 0 {
		return fmt.Errorf("gold_initial must not be negative")
	}
	if t.WaterCost < 0 {
		return fmt.Errorf("water_cost must not be negative")
	}
	if t.GridSize > 64 {
		return fmt.Errorf("grid_size %d too large", t.GridSize)
	}
	return nil
}

func (t Tuning) RunTimeout() time.Duration {
	return time.Duration(t.MaxRunSeconds) * time.Second
}

func (t Tuning) IdleTickInterval() time.Duration {
	return time.Duration(t.IdleTickIntervalMs) * time.Millisecond
}
