package task

import (
	"context"

	"github.com/hugolhafner/go-connect/clock"
	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/record"
)

// Context is what the host provides to a task before it starts.
type Context interface {
	// OffsetReader returns the offsets the host persisted for this task.
	OffsetReader() offset.Reader
}

type hostContext struct {
	reader offset.Reader
}

func (c hostContext) OffsetReader() offset.Reader {
	return c.reader
}

func NewContext(reader offset.Reader) Context {
	return hostContext{reader: reader}
}

// OffsetLoader resolves the offset a connector should resume from.
type OffsetLoader interface {
	// PreviousOffset prefers the offset tracked in memory since the task was
	// created and falls back to the host's persisted offset.
	PreviousOffset(ctx context.Context, sourcePartition map[string]string) (offset.Offset, error)
	// StoredOffset returns only the host's persisted offset.
	StoredOffset(ctx context.Context, sourcePartition map[string]string) (offset.Offset, error)
}

// StartContext carries everything a connector needs to build its coordinator.
type StartContext struct {
	Config     *config.Configuration
	TaskConfig config.TaskConfig
	Offsets    OffsetLoader
	Logger     logger.Logger
	Clock      clock.Clock
}

// Coordinator runs the change event sources of a started connector.
type Coordinator interface {
	// Stop shuts the sources down. It must return ctx.Err() when ctx ends
	// before shutdown completes.
	Stop(ctx context.Context) error
	// CommitOffset tells the source database that everything up to o has
	// been durably processed.
	CommitOffset(ctx context.Context, o offset.Offset) error
}

// Connector is the connector-specific part of a task.
type Connector interface {
	// ConfigFields lists the properties the connector understands, in
	// addition to config.CommonFields.
	ConfigFields() config.FieldSet
	Start(ctx context.Context, sc StartContext) (Coordinator, error)
	// Poll returns the next batch. Errors wrapped in RetriableError make the
	// task restart after the restart backoff.
	Poll(ctx context.Context) ([]record.SourceRecord, error)
	// Stop releases connector resources after the coordinator stopped.
	Stop() error
}
