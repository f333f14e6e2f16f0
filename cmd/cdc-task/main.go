package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	connect "github.com/hugolhafner/go-connect"
	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/connector/generator"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/plugins/zaplogger"
	"github.com/hugolhafner/go-connect/runner"
	"github.com/hugolhafner/go-connect/stats"
	"github.com/hugolhafner/go-connect/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const envPrefix = "CONNECT__"

func main() {
	path := flag.String("config", "connect.yaml", "path to the properties file")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	props, err := config.Load(path, envPrefix)
	if err != nil {
		return err
	}

	fields := workerFields()
	if errs := fields.Validate(props); len(errs) > 0 {
		return errors.Join(errs...)
	}

	worker, err := config.New(props, fields)
	if err != nil {
		return err
	}

	zl, err := newZap(worker.String(LogLevel))
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)
	l := zaplogger.New(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := serveMetrics(worker.String(MetricsAddr), reg, l)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	producer, err := newProducer(worker, l)
	if err != nil {
		return err
	}
	defer producer.Close()

	store, err := newOffsetStore(ctx, worker, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Error("Failed to close offset store", "error", err)
		}
	}()

	taskID := worker.String(TaskID)
	app := connect.NewApplication(
		generator.New(), props, producer, store,
		connect.WithLogger(l),
		connect.WithTaskOptions(
			task.WithID(taskID),
			task.WithStatsCollector(stats.NewPrometheus(reg, "connect", taskID)),
		),
		connect.WithWorkerOptions(
			runner.WithErrorHandler(newErrorHandler(worker, l)),
			runner.WithOffsetFlushInterval(worker.Millis(FlushInterval)),
		),
	)

	go func() {
		<-ctx.Done()
		l.Info("Received termination signal, shutting down...")
		app.Close()
	}()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	l.Info("Shutdown complete")
	return nil
}

func newZap(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func serveMetrics(addr string, reg *prometheus.Registry, l logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

// newErrorHandler retries failed sends, then routes the record to the dead
// letter topic when one is configured and fails the task otherwise.
// Serialisation errors are never retried.
func newErrorHandler(worker *config.Configuration, l logger.Logger) errorhandler.Handler {
	final := errorhandler.LogAndFail(l)
	if topic := worker.String(DLQTopic); topic != "" {
		final = errorhandler.WithDLQ(topic, errorhandler.LogAndContinue(l))
	}

	return errorhandler.NewPhaseRouter(
		final,
		final,
		errorhandler.WithMaxAttempts(worker.Int(RetryAttempts), backoff.NewFixed(time.Second), final),
	)
}
