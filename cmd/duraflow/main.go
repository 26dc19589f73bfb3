// Command duraflow runs one DURAFLOW receiver process: it polls configured
// remote sources for event batches, appends each event to a BlockGenerator,
// and durably writes every sealed block to a write-ahead log on disk.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duraflow/duraflow/internal/config"
	"github.com/duraflow/duraflow/internal/metrics"
	"github.com/duraflow/duraflow/pkg/block"
	"github.com/duraflow/duraflow/pkg/ingest"
	"github.com/duraflow/duraflow/pkg/ingest/natssource"
	"github.com/duraflow/duraflow/pkg/storeblock"
	"github.com/duraflow/duraflow/pkg/wal"
)

func main() {
	configPath := flag.String("config", "duraflow.yaml", "path to the YAML config file")
	flag.Parse()

	logger := slog.Default()

	if err := run(*configPath, logger); err != nil {
		logger.Error("duraflow exited with error", "error", err)
		os.Exit(1)
	}
}

// slogReporter forwards block/ingest error callbacks to a *slog.Logger.
type slogReporter struct {
	logger *slog.Logger
}

func (r slogReporter) OnError(message string, err error) {
	r.logger.Error(message, "error", err)
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger = logger.With("receiver_id", cfg.ReceiverID)

	writer, err := wal.NewWriter(cfg.WALPath, cfg.AppendSupport)
	if err != nil {
		return err
	}
	defer writer.Close()

	reporter := slogReporter{logger: logger}
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	store := storeblock.New(writer, nil, reporter, storeblock.WithMetrics(met))
	generator := block.NewGenerator(cfg.ReceiverID, cfg.BlockInterval(), cfg.BlockQueueSize, store,
		block.WithMetrics(met))
	generator.Start()

	sources, closeSources, err := dialSources(cfg)
	if err != nil {
		generator.Stop(true)
		return err
	}
	defer closeSources()

	storeEvents := func(ctx context.Context, records []ingest.Record) error {
		for _, rec := range records {
			generator.Append(block.Record(rec.Body))
		}
		return nil
	}

	ingestor := ingest.New(sources, cfg.MaxBatchSize, cfg.Parallelism, storeEvents,
		ingest.WithReporter(reporter), ingest.WithMetrics(met))

	ctx, cancel := context.WithCancel(context.Background())
	ingestor.Start(ctx)

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped unexpectedly", "error", err)
		}
	}()

	logger.Info("duraflow started",
		"wal_path", cfg.WALPath,
		"block_interval", cfg.BlockInterval(),
		"metrics_addr", cfg.MetricsAddr,
		"sources", len(sources),
	)

	waitForShutdownSignal(logger)

	logger.Info("shutting down")
	cancel()
	ingestor.Stop()
	generator.Stop(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	logger.Info("duraflow stopped")
	return nil
}

func dialSources(cfg config.Config) ([]ingest.Source, func(), error) {
	sources := make([]ingest.Source, 0, len(cfg.Sources))
	closeAll := func() {
		for _, s := range sources {
			_ = s.Close()
		}
	}

	for _, sc := range cfg.Sources {
		src, err := natssource.Dial(sc.NATSURL, sc.SubjectPrefix, natssource.DefaultRequestTimeout)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sources = append(sources, src)
	}

	return sources, closeAll, nil
}

func waitForShutdownSignal(logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	logger.Info("waiting for interrupt or SIGTERM")
	<-sigCh
}
