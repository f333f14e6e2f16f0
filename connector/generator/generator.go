// Package generator is a connector that emits synthetic change events for
// a set of databases. It exercises the task runtime without a real source.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/go-connect/clock"
	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/partition"
	"github.com/hugolhafner/go-connect/record"
	"github.com/hugolhafner/go-connect/task"
)

const (
	Catalog   = "generator.catalog"
	Interval  = "generator.interval.ms"
	BatchSize = "generator.batch.size"
	FailEvery = "generator.fail.every"

	// LSNKey is the offset field holding the server-wide sequence number.
	LSNKey = "lsn"

	DefaultIntervalMillis = 1000
	DefaultBatchSize      = 10
)

var (
	ErrNotStarted = errors.New("generator connector is not started")
	// ErrSimulatedFailure is the cause of the retriable errors injected by
	// generator.fail.every.
	ErrSimulatedFailure = errors.New("simulated connection loss")
)

var _ task.Connector = (*Connector)(nil)

type Connector struct {
	mu      sync.Mutex
	running *run

	committed atomic.Pointer[offset.Offset]
}

// run is the state of one Start/Stop cycle.
type run struct {
	partitions []partition.Partition
	lsn        int64
	interval   time.Duration
	batchSize  int
	failEvery  int
	polls      int
	clock      clock.Clock
	logger     logger.Logger
}

func New() *Connector {
	return &Connector{}
}

func (c *Connector) ConfigFields() config.FieldSet {
	return config.FieldSet{
		{
			Name:        Catalog,
			DisplayName: "Catalog",
			Description: "Comma separated list of existing databases. Names are matched case-insensitively. Empty accepts any name.",
		},
		{
			Name:        Interval,
			DisplayName: "Poll interval (ms)",
			Description: "Time between two batches.",
			Default:     fmt.Sprint(DefaultIntervalMillis),
			Validator:   config.PositiveInteger,
		},
		{
			Name:        BatchSize,
			DisplayName: "Batch size",
			Description: "Records emitted per poll.",
			Default:     fmt.Sprint(DefaultBatchSize),
			Validator:   config.PositiveInteger,
		},
		{
			Name:        FailEvery,
			DisplayName: "Fail every n polls",
			Description: "Return a retriable error on every n-th poll. Unset disables failures.",
			Validator:   config.PositiveInteger,
		},
	}
}

func (c *Connector) Start(ctx context.Context, sc task.StartContext) (task.Coordinator, error) {
	provider := partition.NewProvider(
		sc.TaskConfig.ServerName,
		sc.TaskConfig.DatabaseNames,
		CatalogResolver(sc.Config.List(Catalog)),
		sc.Logger,
	)

	partitions := provider.Partitions(ctx)
	if len(partitions) == 0 {
		sc.Logger.Warn("None of the configured databases could be resolved, no events will be generated")
	}

	var lsn int64
	for _, p := range partitions {
		prev, err := sc.Offsets.PreviousOffset(ctx, p.SourcePartition())
		if err != nil {
			return nil, fmt.Errorf("load offset of %s: %w", p, err)
		}
		if n, ok := LSN(prev); ok && n > lsn {
			lsn = n
		}
	}

	r := &run{
		partitions: partitions,
		lsn:        lsn,
		interval:   sc.Config.Millis(Interval),
		batchSize:  sc.Config.Int(BatchSize),
		clock:      sc.Clock,
		logger:     sc.Logger.With("connector", "generator"),
	}
	if sc.Config.Has(FailEvery) {
		r.failEvery = sc.Config.Int(FailEvery)
	}
	if r.clock == nil {
		r.clock = clock.System()
	}

	r.logger.Info("Generator started", "partitions", len(partitions), "lsn", lsn)

	c.mu.Lock()
	c.running = r
	c.mu.Unlock()

	return &coordinator{
		logger: r.logger,
		onCommit: func(o offset.Offset) {
			c.committed.Store(&o)
		},
	}, nil
}

func (c *Connector) Poll(ctx context.Context) ([]record.SourceRecord, error) {
	c.mu.Lock()
	r := c.running
	c.mu.Unlock()

	if r == nil {
		return nil, ErrNotStarted
	}

	if err := wait(ctx, r.interval); err != nil {
		return nil, err
	}

	r.polls++
	if r.failEvery > 0 && r.polls%r.failEvery == 0 {
		return nil, task.NewRetriableError(ErrSimulatedFailure)
	}

	if len(r.partitions) == 0 {
		return []record.SourceRecord{}, nil
	}

	now := r.clock.Now()
	batch := make([]record.SourceRecord, 0, r.batchSize)
	for i := 0; i < r.batchSize; i++ {
		r.lsn++
		p := r.partitions[int(r.lsn%int64(len(r.partitions)))]

		rec := record.New(
			p.SourcePartition(),
			offset.Offset{LSNKey: r.lsn},
			Topic(p),
			map[string]any{"lsn": r.lsn},
			map[string]any{
				"op":       "c",
				"source":   map[string]any{"server": p.ServerName(), "db": p.DatabaseName(), LSNKey: r.lsn},
				"ts_ms":    now.UnixMilli(),
				"sequence": i,
			},
		)
		rec.Timestamp = now
		batch = append(batch, rec)
	}

	return batch, nil
}

func (c *Connector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = nil
	return nil
}

// Committed returns the last offset the host committed, or nil.
func (c *Connector) Committed() offset.Offset {
	if o := c.committed.Load(); o != nil {
		return *o
	}
	return nil
}

// Topic is the topic change events of p are written to.
func Topic(p partition.Partition) string {
	return p.ServerName() + "." + p.DatabaseName() + ".events"
}

// LSN extracts the sequence number from o. Stores may hand numbers back as
// float64 or json.Number, so every numeric representation is accepted.
func LSN(o offset.Offset) (int64, bool) {
	if o == nil {
		return 0, false
	}

	switch v := o[LSNKey].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
