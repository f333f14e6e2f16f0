package task

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/clock"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/stats"
)

const (
	DefaultPollPause              = 2 * time.Second
	DefaultCoordinatorStopTimeout = 30 * time.Second
)

// RestartBackoff builds the backoff used to arm the restart window from the
// configured retriable restart wait.
type RestartBackoff func(wait time.Duration) backoff.Backoff

// FixedRestartBackoff waits the configured time before every restart.
func FixedRestartBackoff(wait time.Duration) backoff.Backoff {
	return backoff.NewFixed(wait)
}

type options struct {
	id                     string
	logger                 logger.Logger
	clock                  clock.Clock
	telemetry              *otel.Telemetry
	pollPause              time.Duration
	coordinatorStopTimeout time.Duration
	restartBackoff         RestartBackoff
	statsCollector         stats.Collector
	statsInitial           time.Duration
	statsMax               time.Duration
}

func defaultOptions() options {
	return options{
		id:                     "task-0",
		logger:                 logger.NewNoopLogger(),
		clock:                  clock.System(),
		telemetry:              otel.Noop(),
		pollPause:              DefaultPollPause,
		coordinatorStopTimeout: DefaultCoordinatorStopTimeout,
		restartBackoff:         FixedRestartBackoff,
		statsCollector:         stats.NopCollector{},
		statsInitial:           stats.DefaultInitialInterval,
		statsMax:               stats.DefaultMaxInterval,
	}
}

type Option func(*options)

func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(o *options) {
		o.telemetry = t
	}
}

// WithPollPause sets how long Poll waits before returning an empty batch
// while the task is stopped.
func WithPollPause(d time.Duration) Option {
	return func(o *options) {
		o.pollPause = d
	}
}

// WithCoordinatorStopTimeout bounds how long Stop waits for the coordinator.
func WithCoordinatorStopTimeout(d time.Duration) Option {
	return func(o *options) {
		o.coordinatorStopTimeout = d
	}
}

func WithRestartBackoff(b RestartBackoff) Option {
	return func(o *options) {
		o.restartBackoff = b
	}
}

func WithStatsCollector(c stats.Collector) Option {
	return func(o *options) {
		o.statsCollector = c
	}
}

// WithStatsInterval sets the first statistics interval and its ceiling.
func WithStatsInterval(initial, max time.Duration) Option {
	return func(o *options) {
		o.statsInitial = initial
		o.statsMax = max
	}
}
