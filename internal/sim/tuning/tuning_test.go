package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.GridSize != 6 || tune.GoldInitial != 500 || tune.WaterCost != 2 {
		t.Fatalf("economy mismatch: %+v", tune)
	}
	if tune.MaxSteps != 200 || tune.RunTimeout() != 1800*time.Second {
		t.Fatalf("limits mismatch: steps=%d timeout=%s", tune.MaxSteps, tune.RunTimeout())
	}
	if got := tune.FieldRatio["topLeft"]; got != [2]float64{0.425, 0.545} {
		t.Fatalf("field ratio topLeft=%v", got)
	}
	if tune.IdleTickInterval() != 100*time.Millisecond {
		t.Fatalf("idle interval=%s", tune.IdleTickInterval())
	}
}

func TestLoad_PartialFileIsDefaulted(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("grid_size: 4\nmax_steps: 50\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.GridSize != 4 || tune.MaxSteps != 50 {
		t.Fatalf("explicit values lost: %+v", tune)
	}
	def := Defaults()
	if tune.GoldInitial != def.GoldInitial || tune.TimePerStep != def.TimePerStep || tune.Background != def.Background {
		t.Fatalf("defaults not applied: %+v", tune)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("grid_size: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected yaml error")
	}

	neg := filepath.Join(dir, "neg.yaml")
	if err := os.WriteFile(neg, []byte("water_cost: -1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(neg); err == nil {
		t.Fatalf("expected validation error")
	}
}
