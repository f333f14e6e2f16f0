// Package connect runs a change data capture source task: it wires a
// connector, a producer and an offset store into a worker.
package connect

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/runner"
	"github.com/hugolhafner/go-connect/task"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
)

type Application struct {
	connector task.Connector
	props     map[string]string
	producer  kafka.Producer
	offsets   runner.OffsetStore
	config    Config

	logger logger.Logger

	mu        sync.Mutex
	running   bool
	task      *task.BaseTask
	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewApplication(
	connector task.Connector, props map[string]string, producer kafka.Producer, offsets runner.OffsetStore,
	opts ...ConfigOption,
) *Application {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewApplicationWithConfig(connector, props, producer, offsets, config)
}

func NewApplicationWithConfig(
	connector task.Connector, props map[string]string, producer kafka.Producer, offsets runner.OffsetStore,
	config Config,
) *Application {
	return &Application{
		connector: connector,
		props:     maps.Clone(props),
		producer:  producer,
		offsets:   offsets,
		config:    config,
		logger:    config.Logger,
		closedCh:  make(chan struct{}),
	}
}

// Run blocks until ctx is done, Close is called or the task fails. An
// application runs at most once.
func (a *Application) Run(ctx context.Context) error {
	if err := a.startRunning(); err != nil {
		return err
	}
	defer a.Close()

	taskOpts := append(
		[]task.Option{task.WithLogger(a.logger), task.WithTelemetry(a.config.Telemetry)},
		a.config.TaskOptions...,
	)
	t := task.New(a.connector, taskOpts...)

	workerOpts := append(
		[]runner.Option{runner.WithLogger(a.logger), runner.WithTelemetry(a.config.Telemetry)},
		a.config.WorkerOptions...,
	)
	w := runner.New(t, a.props, a.producer, a.offsets, workerOpts...)

	a.mu.Lock()
	a.task = t
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-a.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	a.logger.Info("Running source task", "version", Version, "task", t.ID())
	return w.Run(runCtx)
}

// State reports the state of the running task, or StateStopped before Run.
func (a *Application) State() task.State {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.task == nil {
		return task.StateStopped
	}
	return a.task.State()
}

func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}
