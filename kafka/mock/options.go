package mockkafka

import (
	"time"
)

// Option is a functional option for configuring a mock Producer.
type Option func(*Producer)

// WithSendDelay adds an artificial delay to Send calls.
// This can be useful for testing timeout behavior or slow brokers.
func WithSendDelay(d time.Duration) Option {
	return func(p *Producer) {
		p.sendDelay = d
	}
}

// WithSendError configures an error to be returned by all Send calls.
func WithSendError(err error) Option {
	return func(p *Producer) {
		p.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// WithFlushError configures an error to be returned by all Flush calls.
func WithFlushError(err error) Option {
	return func(p *Producer) {
		p.flushErr = err
	}
}
