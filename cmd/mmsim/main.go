package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mmsim/internal/api"
	"mmsim/internal/batch"
	"mmsim/internal/config"
	"mmsim/internal/logging"
	"mmsim/internal/pathstore"
	"mmsim/internal/report"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const usage = `usage: mmsim <command> [flags]

commands:
  run     simulate one batch and print its summary
  serve   start the HTTP API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "serve":
		err = serveCmd(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "mmsim:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger and store shared by both commands
func setup(configFile string) (*config.Config, *zap.Logger, *pathstore.Store, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := pathstore.Open(cfg.Store.Path)
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, log, st, nil
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "", "YAML config file")
	pnlCSV := fs.String("pnl-csv", "", "write the PnL matrix of every run to this file")
	seriesCSV := fs.String("series-csv", "", "write the full series of run 0 to this file")
	fs.Parse(args)

	cfg, log, st, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runBatch(ctx, cfg, log, st)
	if err != nil {
		return err
	}

	if *pnlCSV != "" {
		if err := writeFile(*pnlCSV, func(w io.Writer) error { return report.WritePnLMatrixCSV(w, res) }); err != nil {
			return err
		}
		log.Info("wrote pnl matrix", zap.String("file", *pnlCSV))
	}
	if *seriesCSV != "" {
		if err := writeFile(*seriesCSV, func(w io.Writer) error { return report.WriteSeriesCSV(w, res.Runs[0]) }); err != nil {
			return err
		}
		log.Info("wrote series", zap.String("file", *seriesCSV))
	}

	return printSummary(os.Stdout, report.Build(res))
}

// runBatch generates cfg.Batch.NSim paths into st, simulates them, and drops
// them again unless keep_paths is set
func runBatch(ctx context.Context, cfg *config.Config, log *zap.Logger, st *pathstore.Store) (*batch.Result, error) {
	id := uuid.NewString()
	log = log.With(zap.String("batch_id", id))

	if _, err := batch.GenerateAndStore(ctx, st, id, cfg.Model.Process(), cfg.Batch.NSim, cfg.Batch.Seed); err != nil {
		return nil, err
	}
	if !cfg.Batch.KeepPaths {
		defer func() {
			if _, err := st.DeleteBatch(context.Background(), id); err != nil {
				log.Error("failed to delete batch paths", zap.Error(err))
			}
		}()
	}

	runner := &batch.Runner{
		Workers: cfg.Batch.Workers,
		Seed:    cfg.Batch.Seed,
		Logger:  log,
	}
	return runner.RunStored(ctx, st, id, cfg.Model.Engine())
}

func printSummary(w io.Writer, sum report.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "", "YAML config file")
	addr := fs.String("addr", "", "listen address (overrides http.addr)")
	fs.Parse(args)

	cfg, log, st, err := setup(*configFile)
	if err != nil {
		return err
	}
	defer log.Sync()
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := api.NewServer(cfg, st, log, reg)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", cfg.Store.Path),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		st.Close()
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info("shutting down server")

	server.Shutdown()

	// Graceful HTTP shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if err := st.Close(); err != nil {
		log.Warn("database close error", zap.Error(err))
	}
	log.Info("server shutdown complete")
	return nil
}
