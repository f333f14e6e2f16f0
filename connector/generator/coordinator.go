package generator

import (
	"context"
	"sync"

	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/task"
)

var _ task.Coordinator = (*coordinator)(nil)

// coordinator remembers the offsets the host acknowledged. The generator
// has no upstream log to truncate, so committing only records the position.
type coordinator struct {
	logger logger.Logger

	mu        sync.Mutex
	committed offset.Offset
	commits   int
	stopped   bool
	onCommit  func(offset.Offset)
}

func (c *coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.stopped = true
	c.logger.Debug("Generator coordinator stopped", "commits", c.commits)
	return nil
}

func (c *coordinator) CommitOffset(_ context.Context, o offset.Offset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}

	c.committed = o.Clone()
	c.commits++
	if c.onCommit != nil {
		c.onCommit(c.committed)
	}
	return nil
}
