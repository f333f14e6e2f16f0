package runner

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/committer"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/serde"
)

const (
	DefaultOffsetFlushInterval = 10 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
)

type Config struct {
	Logger logger.Logger
	// ErrorHandler defaults to errorhandler.LogAndFail with Logger.
	ErrorHandler     errorhandler.Handler
	PollErrorBackoff backoff.Backoff
	Telemetry        *otel.Telemetry

	KeySerialiser   serde.UntypedSerialiser
	ValueSerialiser serde.UntypedSerialiser

	// Committer requests an offset flush after enough acknowledged records.
	Committer committer.Committer
	// OffsetFlushInterval flushes staged offsets even when the committer
	// has not asked for it.
	OffsetFlushInterval time.Duration
	// ShutdownTimeout bounds the final flush and the task stop.
	ShutdownTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Logger:              logger.NewNoopLogger(),
		PollErrorBackoff:    backoff.NewFixed(time.Second),
		Telemetry:           otel.Noop(),
		KeySerialiser:       serde.Auto(),
		ValueSerialiser:     serde.Auto(),
		OffsetFlushInterval: DefaultOffsetFlushInterval,
		ShutdownTimeout:     DefaultShutdownTimeout,
	}
}

type Option func(*Config)

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithErrorHandler sets the handler consulted when a record cannot be delivered
func WithErrorHandler(h errorhandler.Handler) Option {
	return func(c *Config) {
		if h != nil {
			c.ErrorHandler = h
		}
	}
}

func WithPollErrorBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.PollErrorBackoff = b
		}
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

func WithKeySerialiser(s serde.UntypedSerialiser) Option {
	return func(c *Config) {
		if s != nil {
			c.KeySerialiser = s
		}
	}
}

func WithValueSerialiser(s serde.UntypedSerialiser) Option {
	return func(c *Config) {
		if s != nil {
			c.ValueSerialiser = s
		}
	}
}

func WithCommitter(cm committer.Committer) Option {
	return func(c *Config) {
		c.Committer = cm
	}
}

func WithOffsetFlushInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.OffsetFlushInterval = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ShutdownTimeout = d
		}
	}
}
