package protocol

import (
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/farm"
	"cyberfarm.ai/internal/sim/tuning"
)

// BootstrapConfig is the static client configuration served by
// GET /api/bootstrap.
type BootstrapConfig struct {
	Grid             int                   `json:"grid"`
	Crops            []catalogs.CropDef    `json:"crops"`
	Background       string                `json:"background"`
	FieldRatio       map[string][2]float64 `json:"field_ratio"`
	ExecInterval     int                   `json:"exec_interval"`
	IdleTickInterval int                   `json:"idle_tick_interval"`
	ProtocolVersion  string                `json:"protocol_version"`
}

type BootstrapResponse struct {
	Config BootstrapConfig `json:"config"`
	Farm   farm.Snapshot   `json:"farm"`
}

func NewBootstrapConfig(t tuning.Tuning, cats *catalogs.Catalogs) BootstrapConfig {
	return BootstrapConfig{
		Grid:             t.GridSize,
		Crops:            cats.Sorted(),
		Background:       t.Background,
		FieldRatio:       t.FieldRatio,
		ExecInterval:     t.ExecIntervalMs,
		IdleTickInterval: t.IdleTickIntervalMs,
		ProtocolVersion:  Version,
	}
}
