package committer

import (
	"sync"
	"time"

	"github.com/hugolhafner/go-connect/clock"
)

var _ Committer = (*PeriodicCommitter)(nil)

type PeriodicCommitterConfig struct {
	MaxInterval time.Duration
	MaxCount    int
	Clock       clock.Clock
}

type PeriodicCommitterOption func(*PeriodicCommitterConfig)

func WithMaxInterval(d time.Duration) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		cfg.MaxInterval = d
	}
}

func WithMaxCount(c int) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		cfg.MaxCount = c
	}
}

func WithClock(c clock.Clock) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		cfg.Clock = c
	}
}

// PeriodicCommitter signals once MaxCount records were processed or
// MaxInterval passed since the last signal, whichever comes first. Signals
// never block and coalesce while one is pending.
type PeriodicCommitter struct {
	c PeriodicCommitterConfig

	mu         sync.Mutex
	count      int
	lastCommit time.Time
	closed     bool
	channel    chan struct{}
}

func NewPeriodicCommitter(opts ...PeriodicCommitterOption) *PeriodicCommitter {
	cfg := PeriodicCommitterConfig{
		MaxInterval: 5 * time.Second,
		MaxCount:    100,
		Clock:       clock.System(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &PeriodicCommitter{
		c:          cfg,
		lastCommit: cfg.Clock.Now(),
		channel:    make(chan struct{}, 1),
	}
}

func (p *PeriodicCommitter) Config() PeriodicCommitterConfig {
	return p.c
}

func (p *PeriodicCommitter) RecordProcessed(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.count += count
	now := p.c.Clock.Now()
	if p.count > 0 && (p.count >= p.c.MaxCount || now.Sub(p.lastCommit) >= p.c.MaxInterval) {
		select {
		case p.channel <- struct{}{}:
		default:
		}

		p.count = 0
		p.lastCommit = now
	}
}

func (p *PeriodicCommitter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count = 0
	p.lastCommit = p.c.Clock.Now()
}

func (p *PeriodicCommitter) C() <-chan struct{} {
	return p.channel
}

func (p *PeriodicCommitter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.channel)
}
