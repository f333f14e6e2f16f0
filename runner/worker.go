// Package runner hosts a source task: it polls batches, delivers them to
// Kafka and persists acknowledged offsets.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-connect/committer"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	connectotel "github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/record"
	"github.com/hugolhafner/go-connect/task"
	"go.opentelemetry.io/otel/metric"
)

// OffsetStore is the part of an offset.Store the worker uses.
type OffsetStore interface {
	offset.Reader
	offset.Writer
}

// Worker drives one task. Run may be called once.
type Worker struct {
	task     *task.BaseTask
	props    map[string]string
	producer kafka.Producer
	offsets  OffsetStore
	config   Config

	committer committer.Committer
	staged    *stagedOffsets
	tel       *connectotel.Telemetry
	logger    logger.Logger
}

func New(
	t *task.BaseTask, props map[string]string, producer kafka.Producer, offsets OffsetStore, opts ...Option,
) *Worker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = errorhandler.LogAndFail(cfg.Logger)
	}

	if cfg.Committer == nil {
		cfg.Committer = committer.NewPeriodicCommitter(committer.WithMaxInterval(cfg.OffsetFlushInterval))
	}

	return &Worker{
		task:      t,
		props:     props,
		producer:  producer,
		offsets:   offsets,
		config:    cfg,
		committer: cfg.Committer,
		staged:    newStagedOffsets(),
		tel:       cfg.Telemetry,
		logger:    cfg.Logger.With("component", "worker", "task", t.ID()),
	}
}

// Run starts the task and polls it until ctx is done or a fatal error
// occurs. Acknowledged offsets are flushed and the task is stopped before
// Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.task.Initialize(task.NewContext(w.offsets))

	if err := w.task.Start(ctx, w.props); err != nil {
		return fmt.Errorf("start task: %w", err)
	}

	w.logger.Info("Worker started")

	commitCtx, cancelCommit := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.commitLoop(commitCtx)
	}()

	runErr := w.pollLoop(ctx)

	cancelCommit()
	wg.Wait()
	w.committer.Close()

	return errors.Join(runErr, w.shutdown(ctx))
}

func (w *Worker) pollLoop(ctx context.Context) error {
	var failures uint

	for {
		if ctx.Err() != nil {
			return nil
		}

		records, err := w.task.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if !task.IsRetriable(err) {
				w.logger.Error("Task failed", "error", err)
				return fmt.Errorf("poll task: %w", err)
			}

			failures++
			wait := w.config.PollErrorBackoff.Next(failures)
			w.logger.Warn("Retriable error polling task", "error", err, "wait", wait.String(), "failures", failures)

			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		failures = 0

		for _, rec := range records {
			if err := w.deliver(ctx, rec); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("deliver record: %w", err)
			}
		}

		if len(records) > 0 {
			w.committer.RecordProcessed(len(records))
		}
	}
}

func (w *Worker) commitLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.OffsetFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.committer.C():
			if !ok {
				return
			}
			w.commit(ctx)
		case <-ticker.C:
			w.commit(ctx)
		}
	}
}

func (w *Worker) commit(ctx context.Context) {
	if err := w.flushOffsets(ctx); err != nil {
		w.logger.Error("Failed to flush offsets", "error", err)
	}
	w.committer.Reset()
}

// flushOffsets writes every staged offset to the store and then lets the
// task forward its latest offset to the source. Entries that could not be
// written stay staged for the next flush.
func (w *Worker) flushOffsets(ctx context.Context) error {
	entries := w.staged.take()
	if len(entries) == 0 {
		return nil
	}

	status := connectotel.StatusSuccess
	defer func() {
		w.tel.OffsetFlushes.Add(ctx, 1, metric.WithAttributes(connectotel.AttrFlushStatus.String(status)))
	}()

	if err := w.producer.Flush(ctx); err != nil {
		status = connectotel.StatusFailed
		w.staged.restore(entries)
		return fmt.Errorf("flush producer: %w", err)
	}

	if err := w.offsets.Write(ctx, entries...); err != nil {
		status = connectotel.StatusFailed
		w.staged.restore(entries)
		return fmt.Errorf("write offsets: %w", err)
	}

	w.logger.Debug("Flushed offsets", "partitions", len(entries))
	w.task.Commit(ctx)
	return nil
}

func (w *Worker) acknowledge(rec record.SourceRecord) {
	w.task.CommitRecord(rec)
	w.staged.stage(rec)
}

func (w *Worker) shutdown(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.ShutdownTimeout)
	defer cancel()

	w.logger.Info("Stopping worker", "pending_offsets", w.staged.size())

	var errs []error
	if err := w.flushOffsets(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("final offset flush: %w", err))
	}

	if err := w.task.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop task: %w", err))
	}

	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
