package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"cyberfarm.ai/internal/persistence/indexdb"
	"cyberfarm.ai/internal/persistence/r2s3"
	"cyberfarm.ai/internal/persistence/userstore"
	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/session"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/farm"
	"cyberfarm.ai/internal/sim/tuning"
)

// api serves the plain HTTP endpoints next to /ws/run.
type api struct {
	serverID string
	tune     tuning.Tuning
	cats     *catalogs.Catalogs
	users    userstore.Store
	metrics  *session.Metrics
	idx      runtimeIndex
	mirror   *r2s3.Mirror
	logger   *log.Logger
}

func (a *api) routes(ws http.Handler, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/api/bootstrap", a.handleBootstrap)
	mux.HandleFunc("/api/runs", a.handleRuns)
	mux.Handle("/ws/run", ws)
	if staticDir != "" {
		if st, err := os.Stat(staticDir); err == nil && st.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(staticDir)))
		} else {
			a.logger.Printf("static dir %s not found; frontend not served", staticDir)
		}
	}
	return mux
}

func (a *api) handleBootstrap(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var snap *farm.Snapshot
	if userID := strings.TrimSpace(r.URL.Query().Get("user_id")); userID != "" {
		s, ok, err := a.users.Load(r.Context(), userID)
		if err != nil {
			a.logger.Printf("bootstrap: load user %s: %v", userID, err)
			writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": "user store unavailable"})
			return
		}
		if ok {
			snap = s
		}
	}
	if snap == nil {
		fresh := farm.New(farm.ConfigFromTuning(a.tune), a.cats).Snapshot()
		snap = &fresh
	}
	writeJSON(rw, http.StatusOK, protocol.BootstrapResponse{
		Config: protocol.NewBootstrapConfig(a.tune, a.cats),
		Farm:   *snap,
	})
}

func (a *api) handleRuns(rw http.ResponseWriter, r *http.Request) {
	q, ok := a.idx.(runQuerier)
	if !ok {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"error": "run history needs CF_INDEX_BACKEND=sqlite"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"error": "bad limit"})
			return
		}
		limit = n
	}
	runs, err := q.RecentRuns(r.Context(), limit)
	if err != nil {
		a.logger.Printf("api/runs: %v", err)
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	best, err := q.BestROI(r.Context())
	if err != nil {
		a.logger.Printf("api/runs: best roi: %v", err)
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, struct {
		Runs    []session.RunRecord `json:"runs"`
		BestROI float64             `json:"best_roi"`
	}{Runs: runs, BestROI: best})
}

func (a *api) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := a.metrics.View()
	sid := a.serverID

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP cyberfarm_sessions_active Connected websocket sessions.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_sessions_active gauge\n")
	fmt.Fprintf(rw, "cyberfarm_sessions_active{server=%q} %d\n", sid, m.SessionsActive)

	fmt.Fprintf(rw, "# HELP cyberfarm_sessions_total Sessions opened since start.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_sessions_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_sessions_total{server=%q} %d\n", sid, m.SessionsTotal)

	fmt.Fprintf(rw, "# HELP cyberfarm_runs_started_total Script runs started.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_runs_started_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_runs_started_total{server=%q} %d\n", sid, m.RunsStarted)

	fmt.Fprintf(rw, "# HELP cyberfarm_runs_total Script runs ended, by outcome.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_runs_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_runs_total{server=%q,outcome=%q} %d\n", sid, session.OutcomeFinished, m.RunsFinished)
	fmt.Fprintf(rw, "cyberfarm_runs_total{server=%q,outcome=%q} %d\n", sid, session.OutcomeFailed, m.RunsFailed)
	fmt.Fprintf(rw, "cyberfarm_runs_total{server=%q,outcome=%q} %d\n", sid, session.OutcomeAborted, m.RunsAborted)

	fmt.Fprintf(rw, "# HELP cyberfarm_steps_total Interpreter steps executed.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_steps_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_steps_total{server=%q} %d\n", sid, m.Steps)

	fmt.Fprintf(rw, "# HELP cyberfarm_events_total Farm events sent to clients.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_events_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_events_total{server=%q} %d\n", sid, m.Events)

	fmt.Fprintf(rw, "# HELP cyberfarm_idle_ticks_total Idle ticks applied to farms.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_idle_ticks_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_idle_ticks_total{server=%q} %d\n", sid, m.IdleTicks)

	writeIndexMetrics(rw, sid, a.idx)
	writeMirrorMetrics(rw, sid, a.mirror)
}

func writeIndexMetrics(rw http.ResponseWriter, sid string, idx runtimeIndex) {
	var depth int
	var dropped uint64
	switch x := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := x.Stats()
		depth, dropped = s.QueueDepth, s.DroppedTotal
	case *indexdb.D1Index:
		s := x.Stats()
		depth, dropped = s.QueueDepth, s.QueueDroppedTotal
		fmt.Fprintf(rw, "# HELP cyberfarm_index_d1_flush_fail_total Failed D1 ingest batches.\n")
		fmt.Fprintf(rw, "# TYPE cyberfarm_index_d1_flush_fail_total counter\n")
		fmt.Fprintf(rw, "cyberfarm_index_d1_flush_fail_total{server=%q} %d\n", sid, s.FlushFailTotal)
	default:
		return
	}
	fmt.Fprintf(rw, "# HELP cyberfarm_index_queue_depth Pending run records.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "cyberfarm_index_queue_depth{server=%q} %d\n", sid, depth)
	fmt.Fprintf(rw, "# HELP cyberfarm_index_dropped_total Run records dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_index_dropped_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_index_dropped_total{server=%q} %d\n", sid, dropped)
}

func writeMirrorMetrics(rw http.ResponseWriter, sid string, m *r2s3.Mirror) {
	if m == nil {
		return
	}
	s := m.Stats()
	fmt.Fprintf(rw, "# HELP cyberfarm_r2_mirror_queue_depth Run log segments waiting for upload.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_r2_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "cyberfarm_r2_mirror_queue_depth{server=%q} %d\n", sid, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP cyberfarm_r2_mirror_uploads_total Segment uploads, by result.\n")
	fmt.Fprintf(rw, "# TYPE cyberfarm_r2_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "cyberfarm_r2_mirror_uploads_total{server=%q,result=\"ok\"} %d\n", sid, s.UploadSuccessTotal)
	fmt.Fprintf(rw, "cyberfarm_r2_mirror_uploads_total{server=%q,result=\"fail\"} %d\n", sid, s.UploadFailTotal)
	fmt.Fprintf(rw, "cyberfarm_r2_mirror_uploads_total{server=%q,result=\"dropped\"} %d\n", sid, s.DroppedTotal)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
