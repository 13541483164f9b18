package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rovergrid.ai/internal/persistence/runstore"
	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/tuning"
	"rovergrid.ai/internal/transport/httpapi"
	"rovergrid.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the SQLite run index")
		noFiles    = flag.Bool("disable_files", false, "do not write step logs, run snapshots or the run journal")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := loadTuning(*configDir, *tuningPath, logger)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if v, ok := os.LookupEnv("ROVER_RECORD_STEPS"); ok {
		tune.RecordSteps = envBool("ROVER_RECORD_STEPS", tune.RecordSteps)
		logger.Printf("record_steps=%v (ROVER_RECORD_STEPS=%s)", tune.RecordSteps, v)
	}

	var recs driver.MultiRecorder
	var files *runstore.FileRecorder
	if !*noFiles {
		files = runstore.NewFileRecorder(*dataDir)
		recs = append(recs, files)
	}
	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		recs = append(recs, idx)
	}

	var rec driver.Recorder
	if len(recs) > 0 {
		rec = recs
	}
	svc := driver.NewService(tune, rec, logger)
	svc.OnRun(func(transport string, rep driver.Report, err error) {
		if err != nil {
			logger.Printf("%s run rejected: %s: %v", transport, driver.ErrorCode(err), err)
			return
		}
		logger.Printf("%s run %s: %s moves=%d collected=%d/%d in %s",
			transport, rep.RunID, rep.Result.Reason, rep.Result.Steps,
			rep.Result.Collected, len(rep.Mission.Components), rep.Duration.Round(time.Microsecond))
	})

	metrics := httpapi.NewMetrics(svc)
	var index httpapi.RunIndex
	if idx != nil {
		metrics.RegisterIndexStats(idx.Stats)
		index = idx
	}

	mux := http.NewServeMux()
	httpapi.New(svc, metrics, index, logger).Register(mux)
	mux.HandleFunc("GET /v1/ws", ws.NewServer(svc, logger).Handler())

	if envBool("ROVER_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (ROVER_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s (data=%s max_steps=%d max_concurrent_runs=%d)",
			*addr, *dataDir, tune.MaxSteps, tune.Server.MaxConcurrentRuns)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		logger.Printf("server: %v", err)
	}

	if files != nil {
		if err := files.Close(); err != nil {
			logger.Printf("close run files: %v", err)
		}
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Printf("close index: %v", err)
		}
	}
}

func loadTuning(configDir, path string, logger *log.Logger) (tuning.Tuning, error) {
	if path == "" {
		path = filepath.Join(configDir, "tuning.yaml")
	}
	t, err := tuning.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Printf("no tuning at %s, using defaults", path)
		return tuning.Defaults(), nil
	}
	return t, err
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

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
