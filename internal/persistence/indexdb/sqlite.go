package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"cyberfarm.ai/internal/session"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read-model of completed runs. Writes go
// through a single goroutine; the run log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind

	run  session.RunRecord
	done chan struct{}
}

// QueueStats describes the writer queue.
type QueueStats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DroppedTotal  uint64 `json:"dropped_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			outcome TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			events INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			gain INTEGER NOT NULL,
			roi REAL NOT NULL,
			new_record INTEGER NOT NULL,
			error_code TEXT,
			error_line INTEGER,
			code_sha256 TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, ended_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun queues a run row. It never blocks: when the writer falls behind
// the row is dropped and counted.
func (s *SQLiteIndex) RecordRun(rec session.RunRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRun, run: rec}:
	default:
		s.dropped.Add(1)
	}
}

// Flush waits until every row queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DroppedTotal:  s.dropped.Load(),
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range catalogRows(configDir, cats, tune) {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const runColumns = `run_id,session_id,mode,outcome,started_at,ended_at,steps,events,cost,gain,roi,new_record,error_code,error_line,code_sha256`

// RecentRuns returns up to limit runs, most recently ended first.
func (s *SQLiteIndex) RecentRuns(ctx context.Context, limit int) ([]session.RunRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY ended_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []session.RunRecord{}
	for rows.Next() {
		var (
			r         session.RunRecord
			newRecord int
			errCode   sql.NullString
			errLine   sql.NullInt64
		)
		if err := rows.Scan(&r.RunID, &r.SessionID, &r.Mode, &r.Outcome, &r.StartedAt, &r.EndedAt,
			&r.Steps, &r.Events, &r.Cost, &r.Gain, &r.ROI, &newRecord, &errCode, &errLine, &r.CodeSHA256); err != nil {
			return nil, err
		}
		r.NewRecord = newRecord != 0
		r.ErrorCode = errCode.String
		r.ErrorLine = int(errLine.Int64)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BestROI is the highest ROI over finished runs, 0 when there are none.
func (s *SQLiteIndex) BestROI(ctx context.Context) (float64, error) {
	var best sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(roi) FROM runs WHERE outcome = ?`, session.OutcomeFinished).Scan(&best)
	if err != nil {
		return 0, err
	}
	return best.Float64, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(` + runColumns + `) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// Commit as soon as the queue drains so readers sharing the single
	// connection are not held behind an open transaction.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		switch r.kind {
		case reqFlush:
			commit()
			close(r.done)
			continue

		case reqRun:
			begin()
			if tx == nil || insertRun == nil {
				continue
			}
			run := r.run
			var (
				errCode any
				errLine any
			)
			if run.ErrorCode != "" {
				errCode = run.ErrorCode
				errLine = run.ErrorLine
			}
			newRecord := 0
			if run.NewRecord {
				newRecord = 1
			}
			if _, err := tx.Stmt(insertRun).Exec(
				run.RunID,
				run.SessionID,
				run.Mode,
				run.Outcome,
				run.StartedAt,
				run.EndedAt,
				run.Steps,
				run.Events,
				run.Cost,
				run.Gain,
				run.ROI,
				newRecord,
				errCode,
				errLine,
				run.CodeSHA256,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
