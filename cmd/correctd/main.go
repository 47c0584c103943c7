package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fileadapter "github.com/ziheng1027/gridcorrect/internal/adapter/file"
	httpadapter "github.com/ziheng1027/gridcorrect/internal/adapter/http"
	kafkaadapter "github.com/ziheng1027/gridcorrect/internal/adapter/kafka"
	"github.com/ziheng1027/gridcorrect/internal/align"
	"github.com/ziheng1027/gridcorrect/internal/config"
	"github.com/ziheng1027/gridcorrect/internal/correct"
	"github.com/ziheng1027/gridcorrect/internal/domain"
	"github.com/ziheng1027/gridcorrect/internal/feature"
	"github.com/ziheng1027/gridcorrect/internal/observability"
	"github.com/ziheng1027/gridcorrect/internal/pipeline"
	"github.com/ziheng1027/gridcorrect/internal/registry"
	"github.com/ziheng1027/gridcorrect/internal/train"
)

func main() {
	validateOnly := flag.Bool("validate-config", false, "validate configuration and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *validateOnly {
		fmt.Println("configuration OK")
		return
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	runner, cleanup, err := buildRunner(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	metrics.EngineRunning.Set(1)
	runErr := serve(ctx, runner, cfg.RunInterval, logger)
	metrics.EngineRunning.Set(0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	if runErr != nil {
		logger.Error("correction run failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// serve executes one run, then re-runs on the configured interval until the
// context is cancelled. A zero interval means a single run.
func serve(ctx context.Context, runner *pipeline.Runner, interval time.Duration, logger *slog.Logger) error {
	if _, err := runner.Run(ctx); err != nil {
		return err
	}
	if interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if _, err := runner.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Periodic mode keeps serving through a failed run; the next
				// tick retries with fresh inputs.
				logger.Error("correction run failed", "error", err)
			}
		}
	}
}

func buildRunner(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Runner, func(), error) {
	aligner, err := align.New(align.Mode(cfg.Align.Mode), cfg.Align.Lags())
	if err != nil {
		return nil, nil, err
	}
	builder, err := feature.NewBuilder(feature.Schema{
		Version:  feature.SchemaVersion1,
		LagHours: cfg.Align.LagHours,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var reg registry.Registry = registry.NewMemory()
	if cfg.Registry.SQLitePath != "" {
		store, err := registry.OpenSQLite(cfg.Registry.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Error("registry close error", "error", err)
			}
		}
		reg = registry.NewTee(reg, store)
		logger.Info("model registry persisted", "path", cfg.Registry.SQLitePath)
	}

	trainer, err := train.New(cfg.Train, cfg.Regress, reg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	bounds, err := cfg.VariableBounds()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	engine, err := correct.New(cfg.Correct, aligner, builder, reg, bounds, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	store := fileadapter.NewStore(cfg.DataDir, logger)
	var sink pipeline.Sink = store
	if cfg.Kafka.Enabled {
		writer := kafkaadapter.NewReportWriter(cfg.Kafka.Brokers, cfg.Kafka.ReportTopic, logger)
		prev := cleanup
		cleanup = func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
			prev()
		}
		sink = &fanoutSink{Store: store, reports: writer}
		logger.Info("kafka report sink enabled", "topic", cfg.Kafka.ReportTopic)
	}

	return pipeline.New(store, sink, aligner, builder, trainer, engine, reg, logger, metrics), cleanup, nil
}

// fanoutSink writes fields to the file store and reports to both the store
// and Kafka.
type fanoutSink struct {
	*fileadapter.Store
	reports *kafkaadapter.ReportWriter
}

func (s *fanoutSink) WriteReport(ctx context.Context, report domain.RunReport) error {
	if err := s.Store.WriteReport(ctx, report); err != nil {
		return err
	}
	return s.reports.WriteReport(ctx, report)
}
