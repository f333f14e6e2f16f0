// Package task implements the lifecycle of a change data capture source task:
// starting and stopping its connector, polling batches, restarting after
// retriable errors and committing processed offsets back to the source.
package task

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/elapsed"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/record"
	"github.com/hugolhafner/go-connect/stats"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ OffsetLoader = (*BaseTask)(nil)

type contextRef struct {
	Context
}

// BaseTask drives a Connector. Start, Poll and Stop are called from one
// goroutine; Commit and CommitRecord may be called concurrently from another.
type BaseTask struct {
	connector Connector
	opts      options
	logger    logger.Logger
	tel       *otel.Telemetry
	attrs     metric.MeasurementOption

	taskCtx  atomic.Pointer[contextRef]
	state    atomic.Int32
	failures atomic.Uint32
	tracker  offset.Tracker

	// guards everything below
	mu           sync.Mutex
	props        map[string]string
	restartWait  time.Duration
	restartDelay elapsed.Timer
	coordinator  Coordinator

	// confined to the polling goroutine
	reporter *stats.Reporter
}

func New(connector Connector, opts ...Option) *BaseTask {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	l := o.logger.With("component", "source-task", "task", o.id)

	return &BaseTask{
		connector:   connector,
		opts:        o,
		logger:      l,
		tel:         o.telemetry,
		attrs:       metric.WithAttributes(otel.AttrTaskID.String(o.id)),
		restartWait: config.DefaultRetriableRestartWaitMillis * time.Millisecond,
		reporter: stats.NewReporter(
			stats.WithClock(o.clock),
			stats.WithLogger(l),
			stats.WithCollector(o.statsCollector),
			stats.WithInterval(o.statsInitial, o.statsMax),
		),
	}
}

// Initialize hands the task its host context. It must be called before Start.
func (b *BaseTask) Initialize(c Context) {
	if c == nil {
		b.taskCtx.Store(nil)
		return
	}
	b.taskCtx.Store(&contextRef{c})
}

func (b *BaseTask) context() Context {
	ref := b.taskCtx.Load()
	if ref == nil {
		return nil
	}
	return ref.Context
}

func (b *BaseTask) ID() string {
	return b.opts.id
}

func (b *BaseTask) State() State {
	return State(b.state.Load())
}

// LastOffset returns the most recent offset returned by Poll or acknowledged
// through CommitRecord.
func (b *BaseTask) LastOffset() offset.Offset {
	return b.tracker.Last()
}

// Start validates props and starts the connector. Starting a running task is
// a no-op. Configuration problems are returned as *FatalError.
func (b *BaseTask) Start(ctx context.Context, props map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.start(ctx, props)
}

func (b *BaseTask) start(ctx context.Context, props map[string]string) error {
	if b.context() == nil {
		return NewFatalError(ErrNilContext)
	}

	if b.State() == StateRunning {
		b.logger.Info("Connector has already been started")
		return nil
	}

	b.props = maps.Clone(props)
	if b.props == nil {
		b.props = map[string]string{}
	}

	connectorFields := config.CommonFields().Merge(b.connector.ConfigFields())
	taskFields := config.TaskFields()

	conf, err := config.New(b.props, connectorFields, taskFields)
	if err != nil {
		return NewFatalError(fmt.Errorf("read configuration: %w", err))
	}

	b.restartWait = conf.Millis(config.RetriableRestartWait)

	errs := append(connectorFields.Validate(b.props), taskFields.Validate(b.props)...)
	if len(errs) > 0 {
		for _, e := range errs {
			b.logger.Error("Invalid connector configuration", "error", e)
		}
		return NewFatalError(
			fmt.Errorf("error configuring the task, check the logs for details: %w", errors.Join(errs...)),
		)
	}

	if b.logger.Level().Enabled(logger.InfoLevel) {
		b.logger.Info("Starting connector task with configuration")
		masked := conf.Masked()
		for _, name := range slices.Sorted(maps.Keys(masked)) {
			b.logger.Info("Configuration property", "name", name, "value", masked[name])
		}
	}

	coordinator, err := b.connector.Start(
		ctx, StartContext{
			Config:     conf,
			TaskConfig: config.NewTaskConfig(conf),
			Offsets:    b,
			Logger:     b.logger,
			Clock:      b.opts.clock,
		},
	)
	if err != nil {
		return fmt.Errorf("start connector: %w", err)
	}

	b.restartDelay = nil
	b.coordinator = coordinator
	b.state.Store(int32(StateRunning))
	b.tel.TasksRunning.Add(ctx, 1, b.attrs)

	return nil
}

// Poll returns the next batch of records. While the task is stopped after a
// retriable error it pauses and returns an empty batch until the restart
// backoff has passed, then restarts the connector.
func (b *BaseTask) Poll(ctx context.Context) ([]record.SourceRecord, error) {
	ctx, span := b.tel.Tracer.Start(
		ctx, "connect.task.poll",
		trace.WithAttributes(otel.AttrTaskID.String(b.opts.id)),
	)
	defer span.End()

	start := time.Now()
	status := otel.StatusSuccess
	defer func() {
		b.tel.PollDuration.Record(
			ctx, time.Since(start).Seconds(),
			metric.WithAttributes(otel.AttrTaskID.String(b.opts.id), otel.AttrPollStatus.String(status)),
		)
	}()

	started, err := b.startIfNeededAndPossible(ctx)
	if err != nil {
		status = otel.StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !started {
		status = otel.StatusPaused
		if err := b.pause(ctx); err != nil {
			return nil, err
		}
		return []record.SourceRecord{}, nil
	}

	records, err := b.connector.Poll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if !IsRetriable(err) {
			status = otel.StatusError
			return nil, err
		}

		status = otel.StatusRetriable
		b.tel.RetriableErrors.Add(ctx, 1, b.attrs)

		b.mu.Lock()
		stopErr := b.stop(ctx, true)
		b.mu.Unlock()

		if stopErr != nil {
			return nil, stopErr
		}
		return nil, err
	}

	b.failures.Store(0)

	if len(records) == 0 {
		status = otel.StatusEmpty
	}

	b.reporter.Record(records)
	if last := record.Last(records); last != nil {
		b.tracker.Set(last)
	}
	b.tel.Records.Add(ctx, int64(len(records)), b.attrs)
	span.SetAttributes(attribute.Int("connect.poll.records", len(records)))

	return records, nil
}

func (b *BaseTask) startIfNeededAndPossible(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.State() == StateRunning {
		return true, nil
	}

	if b.restartDelay != nil && b.restartDelay.HasElapsed() {
		b.tel.Restarts.Add(ctx, 1, b.attrs)
		if err := b.start(ctx, b.props); err != nil {
			return false, err
		}
		return true, nil
	}

	b.logger.Info("Awaiting end of restart backoff period after a retriable error")
	return false, nil
}

func (b *BaseTask) pause(ctx context.Context) error {
	if b.opts.pollPause <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(b.opts.pollPause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stop stops the coordinator and the connector. Stopping a stopped task is a
// no-op. If ctx ends before the coordinator has stopped a *FatalError is
// returned and the connector is not torn down.
func (b *BaseTask) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stop(ctx, false)
}

func (b *BaseTask) stop(ctx context.Context, restart bool) error {
	if !b.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
		b.logger.Info("Connector has already been stopped")
		return nil
	}
	b.tel.TasksRunning.Add(ctx, -1, b.attrs)

	var wait time.Duration
	if restart {
		failures := b.failures.Add(1)
		wait = b.opts.restartBackoff(b.restartWait).Next(uint(failures))
		b.logger.Warn(
			"Going to restart connector after a retriable exception",
			"wait", wait.String(),
			"failures", failures,
		)
	} else {
		b.logger.Info("Stopping down connector")
	}

	if b.coordinator != nil {
		if err := b.stopCoordinator(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				b.logger.Error("Interrupted while stopping coordinator", "error", err)
				return NewFatalError(fmt.Errorf("interrupted while stopping coordinator, failing the task: %w", err))
			}
			b.logger.Error("Error while stopping coordinator", "error", err)
		}
	}

	if err := b.connector.Stop(); err != nil {
		b.logger.Error("Error while stopping connector", "error", err)
	}

	if restart && b.restartDelay == nil {
		delay := elapsed.Constant(b.opts.clock, wait)
		delay.HasElapsed()
		b.restartDelay = delay
	}

	return nil
}

func (b *BaseTask) stopCoordinator(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, b.opts.coordinatorStopTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.coordinator.Stop(stopCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-stopCtx.Done():
		return stopCtx.Err()
	}
}

// CommitRecord records the offset of a record the host has durably written.
func (b *BaseTask) CommitRecord(rec record.SourceRecord) {
	if rec.Offset != nil {
		b.tracker.Set(rec.Offset)
	}
}

// Commit forwards the last tracked offset to the coordinator. It never
// blocks on a concurrent start or stop; in that case the commit is skipped
// and a warning logged. Failures are logged, not returned.
func (b *BaseTask) Commit(ctx context.Context) {
	ctx, span := b.tel.Tracer.Start(
		ctx, "connect.task.commit",
		trace.WithAttributes(otel.AttrTaskID.String(b.opts.id)),
	)
	defer span.End()

	status := otel.StatusSuccess
	defer func() {
		span.SetAttributes(otel.AttrCommitStatus.String(status))
		b.tel.Commits.Add(
			ctx, 1,
			metric.WithAttributes(otel.AttrTaskID.String(b.opts.id), otel.AttrCommitStatus.String(status)),
		)
	}()

	if !b.mu.TryLock() {
		status = otel.StatusContended
		b.logger.Warn(
			"Couldn't commit processed log positions with the source database due to a concurrent connector shutdown or restart",
		)
		return
	}
	defer b.mu.Unlock()

	last := b.tracker.Last()
	if b.coordinator == nil || last == nil {
		status = otel.StatusSkipped
		return
	}

	if err := b.coordinator.CommitOffset(ctx, last); err != nil {
		status = otel.StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error("Couldn't commit processed log positions with the source database", "offset", last, "error", err)
	}
}

func (b *BaseTask) PreviousOffset(ctx context.Context, sourcePartition map[string]string) (offset.Offset, error) {
	if last := b.tracker.Last(); last != nil {
		b.logger.Info("Found previous offset after restart", "partition", sourcePartition, "offset", last)
		return last, nil
	}

	stored, err := b.StoredOffset(ctx, sourcePartition)
	if err != nil {
		return nil, err
	}

	if stored != nil {
		b.logger.Info("Found previous offset", "partition", sourcePartition, "offset", stored)
	}

	return stored, nil
}

func (b *BaseTask) StoredOffset(ctx context.Context, sourcePartition map[string]string) (offset.Offset, error) {
	c := b.context()
	if c == nil {
		return nil, ErrNilContext
	}

	reader := c.OffsetReader()
	if reader == nil {
		return nil, nil
	}

	stored, err := reader.Offset(ctx, sourcePartition)
	if err != nil {
		return nil, fmt.Errorf("read stored offset: %w", err)
	}

	return stored, nil
}
