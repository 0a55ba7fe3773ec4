package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "cyberfarm.ai/internal/persistence/log"
	"cyberfarm.ai/internal/persistence/userstore"
	"cyberfarm.ai/internal/session"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
	"cyberfarm.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8000", "http listen address")
		serverID   = flag.String("server", "farm_1", "server id (labels metrics and remote index rows)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		staticDir  = flag.String("static", "./frontend", "static frontend directory (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the run index")
		disableLog = flag.Bool("disable_run_log", false, "disable the zstd run log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional read-model index (does not affect farm determinism).
	idx, err := openRuntimeIndex(*dataDir, *serverID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	runsDir := filepath.Join(*dataDir, "runs")
	mirror, err := buildRunLogMirror(runsDir, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}
	// Closed after the run log so its final segment is uploaded.
	defer mirror.Close()

	metrics := &session.Metrics{}
	cfg := session.Config{
		Tuning:   tune,
		Catalogs: cats,
		Metrics:  metrics,
	}
	if idx != nil {
		cfg.Index = idx
	}
	if !*disableLog {
		opts := persistlog.LoggerOptions{}
		if mirror != nil {
			opts.RotateLayout = "2006-01-02-15-04"
			opts.OnClose = mirror.Enqueue
		}
		runLog := persistlog.NewRunLoggerWithOptions(runsDir, opts)
		defer runLog.Close()
		cfg.RunLog = runLog
	}

	users := userstore.Stub{}
	wsSrv, err := ws.NewServer(cfg, users, logger)
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}
	a := &api{
		serverID: *serverID,
		tune:     tune,
		cats:     cats,
		users:    users,
		metrics:  metrics,
		idx:      idx,
		mirror:   mirror,
		logger:   logger,
	}

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(wsSrv.Handler(), strings.TrimSpace(*staticDir)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (grid=%d crops=%d)", *addr, tune.GridSize, len(cats.Crops.Palette))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
