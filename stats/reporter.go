// Package stats reports how many records a task has produced.
package stats

import (
	"time"

	"github.com/hugolhafner/go-connect/clock"
	"github.com/hugolhafner/go-connect/elapsed"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/record"
)

const (
	DefaultInitialInterval = 5 * time.Second
	DefaultMaxInterval     = time.Hour

	summaryMessage = "Records sent during previous interval"
)

type config struct {
	clock     clock.Clock
	logger    logger.Logger
	collector Collector
	initial   time.Duration
	max       time.Duration
}

type Option func(*config)

func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

func WithCollector(c Collector) Option {
	return func(cfg *config) {
		cfg.collector = c
	}
}

// WithInterval sets the first summary interval and the ceiling it doubles to.
func WithInterval(initial, max time.Duration) Option {
	return func(cfg *config) {
		cfg.initial = initial
		cfg.max = max
	}
}

// Reporter logs a summary of produced records, frequently at first and then
// tapering off to the maximum interval. It is confined to the polling
// goroutine.
type Reporter struct {
	clock     clock.Clock
	timer     *elapsed.ExponentialTimer
	logger    logger.Logger
	collector Collector

	count      int64
	lastOffset offset.Offset
	since      time.Time
}

func NewReporter(opts ...Option) *Reporter {
	cfg := config{
		clock:     clock.System(),
		logger:    logger.NewNoopLogger(),
		collector: NopCollector{},
		initial:   DefaultInitialInterval,
		max:       DefaultMaxInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Reporter{
		clock:     cfg.clock,
		timer:     elapsed.Exponential(cfg.clock, cfg.initial, cfg.max),
		logger:    cfg.logger.With("component", "statistics"),
		collector: cfg.collector,
	}

	r.timer.HasElapsed()
	r.since = cfg.clock.Now()

	return r
}

// Record accounts for one polled batch. A nil batch is ignored.
func (r *Reporter) Record(batch []record.SourceRecord) {
	if batch == nil {
		return
	}

	r.collector.ObserveBatch(len(batch))
	r.count += int64(len(batch))

	if len(batch) == 0 {
		return
	}

	r.lastOffset = record.Last(batch)

	if !r.timer.HasElapsed() {
		return
	}

	now := r.clock.Now()
	r.logger.Info(
		summaryMessage,
		"records", r.count,
		"elapsed", now.Sub(r.since).String(),
		"offset", r.lastOffset,
	)
	r.count = 0
	r.since = now
}

// Pending returns the number of records counted since the last summary.
func (r *Reporter) Pending() int64 {
	return r.count
}

func (r *Reporter) LastOffset() offset.Offset {
	return r.lastOffset
}
