//go:build unit

package task_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	mockclock "github.com/hugolhafner/go-connect/clock/mock"
	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/connector/generator"
	"github.com/hugolhafner/go-connect/logger"
	mocklogger "github.com/hugolhafner/go-connect/logger/mock"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/offset/memory"
	"github.com/hugolhafner/go-connect/record"
	"github.com/hugolhafner/go-connect/task"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	mu        sync.Mutex
	committed []offset.Offset
	stops     int
	commitErr error
	stopFn    func(ctx context.Context) error
}

func (c *fakeCoordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stops++
	fn := c.stopFn
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (c *fakeCoordinator) CommitOffset(_ context.Context, o offset.Offset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.commitErr != nil {
		return c.commitErr
	}
	c.committed = append(c.committed, o)
	return nil
}

func (c *fakeCoordinator) Committed() []offset.Offset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]offset.Offset(nil), c.committed...)
}

func (c *fakeCoordinator) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type fakeConnector struct {
	mu          sync.Mutex
	fields      config.FieldSet
	coordinator *fakeCoordinator
	startErr    error
	starts      []task.StartContext
	stops       int
	stopErr     error
	polls       [][]record.SourceRecord
	pollErrs    []error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{coordinator: &fakeCoordinator{}}
}

func (c *fakeConnector) ConfigFields() config.FieldSet {
	return c.fields
}

func (c *fakeConnector) Start(_ context.Context, sc task.StartContext) (task.Coordinator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.starts = append(c.starts, sc)
	if c.startErr != nil {
		return nil, c.startErr
	}
	return c.coordinator, nil
}

// enqueue adds the result of a future Poll call.
func (c *fakeConnector) enqueue(batch []record.SourceRecord, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls = append(c.polls, batch)
	c.pollErrs = append(c.pollErrs, err)
}

func (c *fakeConnector) Poll(_ context.Context) ([]record.SourceRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.polls) == 0 {
		return []record.SourceRecord{}, nil
	}

	batch, err := c.polls[0], c.pollErrs[0]
	c.polls, c.pollErrs = c.polls[1:], c.pollErrs[1:]
	return batch, err
}

func (c *fakeConnector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return c.stopErr
}

func (c *fakeConnector) Starts() []task.StartContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]task.StartContext(nil), c.starts...)
}

func (c *fakeConnector) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func validProps() map[string]string {
	return map[string]string{
		config.TopicPrefix:          "server1",
		config.DatabaseNames:        "orders,payments",
		config.RetriableRestartWait: "1000",
	}
}

func rec(lsn int) record.SourceRecord {
	return record.SourceRecord{
		Partition: map[string]string{"server": "server1", "database": "orders"},
		Offset:    offset.Offset{"lsn": lsn},
	}
}

type harness struct {
	task      *task.BaseTask
	connector *fakeConnector
	clock     *mockclock.Clock
	log       *mocklogger.MockLogger
	store     *memory.Store
}

func newHarness(t *testing.T, opts ...task.Option) *harness {
	t.Helper()

	h := &harness{
		connector: newFakeConnector(),
		clock:     mockclock.New(time.Unix(1_700_000_000, 0)),
		log:       mocklogger.New(),
		store:     memory.New(),
	}

	all := append(
		[]task.Option{
			task.WithClock(h.clock),
			task.WithLogger(h.log),
			task.WithPollPause(time.Millisecond),
		}, opts...,
	)

	h.task = task.New(h.connector, all...)
	h.task.Initialize(task.NewContext(h.store))

	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.task.Start(context.Background(), validProps()))
	require.Equal(t, task.StateRunning, h.task.State())
}

func TestStart_NilContextIsFatal(t *testing.T) {
	connector := newFakeConnector()
	bt := task.New(connector)

	err := bt.Start(context.Background(), validProps())

	require.ErrorIs(t, err, task.ErrNilContext)
	require.True(t, task.IsFatal(err))
	require.Equal(t, task.StateStopped, bt.State())
	require.Empty(t, connector.Starts())
}

func TestStart_TwiceIsNoop(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.task.Start(context.Background(), validProps()))

	require.Len(t, h.connector.Starts(), 1)
	require.Equal(t, task.StateRunning, h.task.State())
	h.log.AssertCalledWithLevelAndMessage(t, logger.InfoLevel, "Connector has already been started")
}

func TestStart_PassesTypedConfiguration(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	sc := h.connector.Starts()[0]
	require.Equal(t, "server1", sc.TaskConfig.ServerName)
	require.Equal(t, []string{"orders", "payments"}, sc.TaskConfig.DatabaseNames)
	require.Equal(t, time.Second, sc.TaskConfig.RetriableRestartWait)
	require.NotNil(t, sc.Offsets)
	require.Equal(t, h.clock, sc.Clock)
}

func TestStart_ValidationFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.connector.fields = config.FieldSet{{Name: "database.hostname", Required: true}}

	err := h.task.Start(context.Background(), map[string]string{config.RetriableRestartWait: "-1"})

	require.Error(t, err)
	require.True(t, task.IsFatal(err))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	require.Equal(t, task.StateStopped, h.task.State())
	require.Empty(t, h.connector.Starts())

	// topic.prefix, the wait, database.hostname and task.database.dbnames
	require.Equal(t, 4, h.log.CountMessage("Invalid connector configuration"))
	h.log.AssertCalledWithLevel(t, logger.ErrorLevel)
}

func TestStart_LogsMaskedConfiguration(t *testing.T) {
	h := newHarness(t)
	h.connector.fields = config.FieldSet{{Name: "database.password", Secret: true}}

	props := validProps()
	props["database.password"] = "hunter2"
	require.NoError(t, h.task.Start(context.Background(), props))

	for _, e := range h.log.Entries() {
		for _, v := range e.KV {
			require.NotEqual(t, "hunter2", v)
		}
	}
	h.log.AssertCalledWithMessage(t, "Configuration property")
}

func TestStart_ConnectorErrorLeavesTaskStopped(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("cannot connect")
	h.connector.startErr = boom

	err := h.task.Start(context.Background(), validProps())

	require.ErrorIs(t, err, boom)
	require.Equal(t, task.StateStopped, h.task.State())
}

func TestStop_WhenStoppedIsNoop(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.task.Stop(context.Background()))

	require.Zero(t, h.connector.Stops())
	require.Zero(t, h.connector.coordinator.Stops())
	h.log.AssertCalledWithLevelAndMessage(t, logger.InfoLevel, "Connector has already been stopped")
}

func TestStop_StopsCoordinatorThenConnector(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.NoError(t, h.task.Stop(context.Background()))

	require.Equal(t, task.StateStopped, h.task.State())
	require.Equal(t, 1, h.connector.coordinator.Stops())
	require.Equal(t, 1, h.connector.Stops())
	h.log.AssertCalledWithMessage(t, "Stopping down connector")

	require.NoError(t, h.task.Stop(context.Background()))
	require.Equal(t, 1, h.connector.coordinator.Stops())
}

func TestStop_TeardownErrorsAreLogged(t *testing.T) {
	h := newHarness(t)
	h.connector.stopErr = errors.New("close failed")
	h.connector.coordinator.stopFn = func(context.Context) error { return errors.New("source failed") }
	h.start(t)

	require.NoError(t, h.task.Stop(context.Background()))

	require.Equal(t, task.StateStopped, h.task.State())
	h.log.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Error while stopping coordinator")
	h.log.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Error while stopping connector")
}

func TestStop_CancelledContextIsFatalAndSkipsTeardown(t *testing.T) {
	h := newHarness(t)
	h.connector.coordinator.stopFn = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.task.Stop(ctx)

	require.True(t, task.IsFatal(err))
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), "interrupted while stopping coordinator")
	require.Zero(t, h.connector.Stops())
	require.Equal(t, task.StateStopped, h.task.State())
	h.log.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Interrupted while stopping coordinator")
}

func TestStop_CoordinatorStopIsBounded(t *testing.T) {
	h := newHarness(t, task.WithCoordinatorStopTimeout(20*time.Millisecond))
	release := make(chan struct{})
	defer close(release)
	h.connector.coordinator.stopFn = func(context.Context) error {
		<-release
		return nil
	}
	h.start(t)

	err := h.task.Stop(context.Background())

	require.True(t, task.IsFatal(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, h.connector.Stops())
}

func TestPoll_ReturnsBatchAndTracksLastOffset(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.connector.enqueue([]record.SourceRecord{rec(1), rec(2)}, nil)

	batch, err := h.task.Poll(context.Background())

	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, offset.Offset{"lsn": 2}, h.task.LastOffset())
}

func TestPoll_BatchOverridesCommittedRecordOffset(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.task.CommitRecord(rec(5))
	h.connector.enqueue([]record.SourceRecord{rec(8), rec(9)}, nil)

	_, err := h.task.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, offset.Offset{"lsn": 9}, h.task.LastOffset())

	h.task.Commit(context.Background())
	require.Equal(t, []offset.Offset{{"lsn": 9}}, h.connector.coordinator.Committed())
}

func TestStart_WithoutResolvedDatabasesRuns(t *testing.T) {
	bt := task.New(generator.New(), task.WithLogger(mocklogger.New()), task.WithPollPause(time.Millisecond))
	bt.Initialize(task.NewContext(memory.New()))

	props := validProps()
	props[config.DatabaseNames] = "missing1,missing2"
	props[generator.Catalog] = "other"
	props[generator.Interval] = "1"

	require.NoError(t, bt.Start(context.Background(), props))
	require.Equal(t, task.StateRunning, bt.State())

	batch, err := bt.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, batch)
	require.Equal(t, task.StateRunning, bt.State())
}

func TestPoll_NonRetriableErrorKeepsRunning(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	boom := errors.New("corrupt change table")
	h.connector.enqueue(nil, boom)

	_, err := h.task.Poll(context.Background())

	require.ErrorIs(t, err, boom)
	require.Equal(t, task.StateRunning, h.task.State())
	require.Zero(t, h.connector.Stops())
}

func TestPoll_RetriableErrorStopsAndRestartsAfterBackoff(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	retriable := task.NewRetriableError(errors.New("connection reset"))
	h.connector.enqueue(nil, retriable)

	_, err := h.task.Poll(context.Background())
	require.ErrorIs(t, err, retriable)
	require.Equal(t, task.StateStopped, h.task.State())
	require.Equal(t, 1, h.connector.Stops())
	h.log.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Going to restart connector after a retriable exception")

	// inside the window polls pause and return nothing
	batch, err := h.task.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Empty(t, batch)
	require.Len(t, h.connector.Starts(), 1)
	h.log.AssertCalledWithMessage(t, "Awaiting end of restart backoff period after a retriable error")

	h.clock.Advance(999 * time.Millisecond)
	_, err = h.task.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, h.connector.Starts(), 1)

	h.clock.Advance(time.Millisecond)
	h.connector.enqueue([]record.SourceRecord{rec(5)}, nil)
	batch, err = h.task.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, task.StateRunning, h.task.State())

	starts := h.connector.Starts()
	require.Len(t, starts, 2)
	require.Equal(t, validProps(), pick(starts[1].Config.Props(), validProps()))
}

func TestPoll_RestartUsesSnapshotOfProps(t *testing.T) {
	h := newHarness(t)
	props := validProps()
	require.NoError(t, h.task.Start(context.Background(), props))

	props[config.DatabaseNames] = "mutated"

	h.connector.enqueue(nil, task.NewRetriableError(errors.New("reset")))
	_, _ = h.task.Poll(context.Background())
	h.clock.Advance(time.Second)
	_, err := h.task.Poll(context.Background())
	require.NoError(t, err)

	starts := h.connector.Starts()
	require.Len(t, starts, 2)
	require.Equal(t, []string{"orders", "payments"}, starts[1].TaskConfig.DatabaseNames)
}

func TestPoll_FailedRestartDoesNotReArmWindow(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.connector.enqueue(nil, task.NewRetriableError(errors.New("reset")))
	_, _ = h.task.Poll(context.Background())

	h.connector.startErr = task.NewRetriableError(errors.New("still down"))
	h.clock.Advance(time.Second)

	_, err := h.task.Poll(context.Background())
	require.True(t, task.IsRetriable(err))
	require.Len(t, h.connector.Starts(), 2)
	require.Equal(t, task.StateStopped, h.task.State())

	// the window keeps its original cadence
	_, err = h.task.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, h.connector.Starts(), 2)

	h.connector.startErr = nil
	h.clock.Advance(time.Second)
	_, err = h.task.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, h.connector.Starts(), 3)
	require.Equal(t, task.StateRunning, h.task.State())
}

func TestPoll_RestartWaitComesFromBackoff(t *testing.T) {
	var waits []time.Duration
	h := newHarness(
		t, task.WithRestartBackoff(
			func(wait time.Duration) backoff.Backoff {
				waits = append(waits, wait)
				return backoff.NewFixed(2 * wait)
			},
		),
	)
	h.start(t)

	h.connector.enqueue(nil, task.NewRetriableError(errors.New("reset")))
	_, _ = h.task.Poll(context.Background())

	h.clock.Advance(time.Second)
	_, err := h.task.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, task.StateStopped, h.task.State())

	h.clock.Advance(time.Second)
	_, err = h.task.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, task.StateRunning, h.task.State())
	require.Equal(t, []time.Duration{time.Second}, waits)
}

func TestPoll_StoppedWithoutWindowPauses(t *testing.T) {
	h := newHarness(t)

	batch, err := h.task.Poll(context.Background())

	require.NoError(t, err)
	require.Empty(t, batch)
	require.Empty(t, h.connector.Starts())
}

func TestPoll_PauseHonoursContext(t *testing.T) {
	h := newHarness(t, task.WithPollPause(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.task.Poll(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCommit_ForwardsLatestRecordOffset(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.task.CommitRecord(rec(1))
	h.task.CommitRecord(rec(7))
	h.task.CommitRecord(record.SourceRecord{})
	h.task.Commit(context.Background())

	require.Equal(t, []offset.Offset{{"lsn": 7}}, h.connector.coordinator.Committed())
}

func TestCommit_SkippedWithoutOffsetOrCoordinator(t *testing.T) {
	h := newHarness(t)

	h.task.CommitRecord(rec(1))
	h.task.Commit(context.Background())
	require.Empty(t, h.connector.coordinator.Committed())

	fresh := newHarness(t)
	fresh.start(t)
	fresh.task.Commit(context.Background())
	require.Empty(t, fresh.connector.coordinator.Committed())
}

func TestCommit_ErrorsAreLogged(t *testing.T) {
	h := newHarness(t)
	h.connector.coordinator.commitErr = errors.New("lsn out of range")
	h.start(t)
	h.task.CommitRecord(rec(3))

	require.NotPanics(t, func() { h.task.Commit(context.Background()) })
	h.log.AssertCalledWithLevelAndMessage(
		t, logger.ErrorLevel, "Couldn't commit processed log positions with the source database",
	)
}

func TestCommit_SkippedDuringConcurrentStop(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.connector.coordinator.stopFn = func(context.Context) error {
		close(entered)
		<-release
		return nil
	}
	h.start(t)
	h.task.CommitRecord(rec(9))

	stopped := make(chan error, 1)
	go func() {
		stopped <- h.task.Stop(context.Background())
	}()

	<-entered
	h.task.Commit(context.Background())
	close(release)
	require.NoError(t, <-stopped)

	require.Empty(t, h.connector.coordinator.Committed())
	h.log.AssertCalledWithLevelAndMessage(
		t, logger.WarnLevel,
		"Couldn't commit processed log positions with the source database due to a concurrent connector shutdown or restart",
	)
}

func TestPreviousOffset(t *testing.T) {
	ctx := context.Background()
	orders := map[string]string{"server": "server1", "database": "orders"}

	t.Run(
		"nothing stored", func(t *testing.T) {
			h := newHarness(t)
			got, err := h.task.PreviousOffset(ctx, orders)
			require.NoError(t, err)
			require.Nil(t, got)
		},
	)

	t.Run(
		"stored offset", func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.store.Write(ctx, offset.Entry{Partition: orders, Offset: offset.Offset{"lsn": 4}}))

			got, err := h.task.PreviousOffset(ctx, orders)
			require.NoError(t, err)
			require.Equal(t, offset.Offset{"lsn": 4}, got)
			h.log.AssertCalledWithMessage(t, "Found previous offset")
		},
	)

	t.Run(
		"tracked offset wins", func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.store.Write(ctx, offset.Entry{Partition: orders, Offset: offset.Offset{"lsn": 4}}))
			h.task.CommitRecord(rec(11))

			got, err := h.task.PreviousOffset(ctx, orders)
			require.NoError(t, err)
			require.Equal(t, offset.Offset{"lsn": 11}, got)
			h.log.AssertCalledWithMessage(t, "Found previous offset after restart")

			stored, err := h.task.StoredOffset(ctx, orders)
			require.NoError(t, err)
			require.Equal(t, offset.Offset{"lsn": 4}, stored)
		},
	)

	t.Run(
		"without context", func(t *testing.T) {
			bt := task.New(newFakeConnector())
			_, err := bt.StoredOffset(ctx, orders)
			require.ErrorIs(t, err, task.ErrNilContext)
		},
	)
}

func pick(all, keys map[string]string) map[string]string {
	out := make(map[string]string, len(keys))
	for k := range keys {
		out[k] = all[k]
	}
	return out
}
