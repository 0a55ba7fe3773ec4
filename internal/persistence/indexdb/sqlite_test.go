package indexdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"cyberfarm.ai/internal/session"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

func openTemp(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "runs.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func TestSQLiteIndex_RecordRunAndQuery(t *testing.T) {
	idx, _ := openTemp(t)
	ctx := context.Background()

	idx.RecordRun(session.RunRecord{
		RunID: "r1", SessionID: "s1", Mode: "auto_step", Outcome: session.OutcomeFinished,
		StartedAt: 1000, EndedAt: 2000, Steps: 4, Events: 4, Cost: 3, Gain: 5, ROI: 2.0 / 3.0,
		NewRecord: true, CodeSHA256: "abc",
	})
	idx.RecordRun(session.RunRecord{
		RunID: "r2", SessionID: "s1", Mode: "manual_step", Outcome: session.OutcomeFailed,
		StartedAt: 3000, EndedAt: 4000, Steps: 2, Events: 1, Cost: 1, ROI: 0,
		ErrorCode: "E_CELL_OCCUPIED", ErrorLine: 2, CodeSHA256: "def",
	})
	idx.RecordRun(session.RunRecord{
		RunID: "r3", SessionID: "s2", Mode: "auto_step", Outcome: session.OutcomeFinished,
		StartedAt: 500, EndedAt: 1500, Steps: 1, Events: 1, Cost: 1, Gain: 5, ROI: 4,
		CodeSHA256: "ghi",
	})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	runs, err := idx.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].RunID != "r2" || runs[1].RunID != "r1" || runs[2].RunID != "r3" {
		t.Fatalf("order: %+v", runs)
	}
	if runs[0].ErrorCode != "E_CELL_OCCUPIED" || runs[0].ErrorLine != 2 {
		t.Fatalf("error columns: %+v", runs[0])
	}
	if !runs[1].NewRecord || runs[1].Gain != 5 || runs[1].ErrorCode != "" {
		t.Fatalf("r1: %+v", runs[1])
	}

	limited, err := idx.RecentRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit: %v %+v", err, limited)
	}

	best, err := idx.BestROI(ctx)
	if err != nil {
		t.Fatalf("BestROI: %v", err)
	}
	if best != 4 {
		t.Fatalf("best = %v, want 4", best)
	}
}

func TestSQLiteIndex_EmptyQueries(t *testing.T) {
	idx, _ := openTemp(t)
	ctx := context.Background()
	runs, err := idx.RecentRuns(ctx, 0)
	if err != nil || runs == nil || len(runs) != 0 {
		t.Fatalf("RecentRuns on empty db: %v %#v", err, runs)
	}
	best, err := idx.BestROI(ctx)
	if err != nil || best != 0 {
		t.Fatalf("BestROI on empty db: %v %v", err, best)
	}
}

func TestSQLiteIndex_PersistsAcrossClose(t *testing.T) {
	idx, path := openTemp(t)
	idx.RecordRun(session.RunRecord{RunID: "r1", SessionID: "s", Mode: "auto_step", Outcome: session.OutcomeAborted, CodeSHA256: "x"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Safe after Close.
	idx.RecordRun(session.RunRecord{RunID: "r2"})

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var (
		outcome string
		n       int
	)
	if err := db.QueryRow(`SELECT outcome FROM runs WHERE run_id='r1'`).Scan(&outcome); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if outcome != session.OutcomeAborted || n != 1 {
		t.Fatalf("outcome=%q rows=%d", outcome, n)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	idx, _ := openTemp(t)
	dir := t.TempDir()
	raw := `[{"id":"grass","plant_cost":1,"harvest_gain":5,"grow_speed":0.2}]`
	if err := os.WriteFile(filepath.Join(dir, "crops.json"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cats, err := catalogs.Load(dir)
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	if err := idx.UpsertCatalogs(dir, cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	// Idempotent.
	if err := idx.UpsertCatalogs(dir, cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs again: %v", err)
	}

	var digest, body string
	if err := idx.db.QueryRow(`SELECT digest,json FROM catalogs WHERE name='crops'`).Scan(&digest, &body); err != nil {
		t.Fatalf("crops row: %v", err)
	}
	if digest != cats.Crops.Digest || body != raw {
		t.Fatalf("crops row: digest=%s json=%s", digest, body)
	}
	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("catalog rows = %d (%v)", n, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqRun}
	s.RecordRun(session.RunRecord{RunID: "dropped"})

	st := s.Stats()
	if st.DroppedTotal != 1 || st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("stats: %+v", st)
	}
}
