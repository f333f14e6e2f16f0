package connect

import (
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/runner"
	"github.com/hugolhafner/go-connect/task"
)

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry

	// TaskOptions and WorkerOptions are applied after the logger and
	// telemetry above, so they can override them.
	TaskOptions   []task.Option
	WorkerOptions []runner.Option
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithTelemetry(t *otel.Telemetry) ConfigOption {
	return func(c *Config) {
		c.Telemetry = t
	}
}

func WithTaskOptions(opts ...task.Option) ConfigOption {
	return func(c *Config) {
		c.TaskOptions = append(c.TaskOptions, opts...)
	}
}

func WithWorkerOptions(opts ...runner.Option) ConfigOption {
	return func(c *Config) {
		c.WorkerOptions = append(c.WorkerOptions, opts...)
	}
}

func defaultConfig() Config {
	return Config{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
	}
}
