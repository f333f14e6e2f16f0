package mockkafka

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/go-connect/kafka"
)

var _ kafka.Producer = (*Producer)(nil)

// ProducedRecord represents a record that was sent via the mock producer.
type ProducedRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []kafka.Header
}

type Producer struct {
	mu sync.RWMutex

	producedRecords []ProducedRecord
	flushes         int

	sendDelay time.Duration
	sendErr   func(topic string, key, value []byte) error
	flushErr  error

	closed bool
}

func NewProducer(opts ...Option) *Producer {
	p := &Producer{
		producedRecords: make([]ProducedRecord, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Send records the message so it can be verified using ProducedRecords().
// A configured send error is returned instead and nothing is recorded.
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	p.mu.RLock()
	delay := p.sendDelay
	p.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sendErr != nil {
		if err := p.sendErr(topic, key, value); err != nil {
			return err
		}
	}

	headersCopy := make([]kafka.Header, len(headers))
	for i, h := range headers {
		copied := make([]byte, len(h.Value))
		copy(copied, h.Value)
		headersCopy[i] = kafka.Header{Key: h.Key, Value: copied}
	}

	var keyCopy []byte
	if key != nil {
		keyCopy = make([]byte, len(key))
		copy(keyCopy, key)
	}

	var valueCopy []byte
	if value != nil {
		valueCopy = make([]byte, len(value))
		copy(valueCopy, value)
	}

	p.producedRecords = append(
		p.producedRecords, ProducedRecord{
			Topic:   topic,
			Key:     keyCopy,
			Value:   valueCopy,
			Headers: headersCopy,
		},
	)

	return nil
}

// Flush is a no-op for the mock producer since Send is synchronous.
// It respects context cancellation for realistic behavior.
func (p *Producer) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushes++

	if p.flushErr != nil {
		return p.flushErr
	}

	return ctx.Err()
}

// Close marks the producer as closed.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
}

// SetSendError configures an error to be returned on all Send calls.
// Pass nil to clear the error.
func (p *Producer) SetSendError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.sendErr = nil
	} else {
		p.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// SetSendErrorFunc configures a function to determine Send errors.
// The function receives the topic, key, and value and can return an error conditionally.
func (p *Producer) SetSendErrorFunc(fn func(topic string, key, value []byte) error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sendErr = fn
}

// SetFlushError configures an error to be returned by Flush.
func (p *Producer) SetFlushError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushErr = err
}

// ProducedRecords returns a copy of all records that have been sent via Send.
func (p *Producer) ProducedRecords() []ProducedRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ProducedRecord, len(p.producedRecords))
	copy(result, p.producedRecords)
	return result
}

// ProducedRecordsForTopic returns all records produced to a specific topic.
func (p *Producer) ProducedRecordsForTopic(topic string) []ProducedRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []ProducedRecord
	for _, r := range p.producedRecords {
		if r.Topic == topic {
			result = append(result, r)
		}
	}
	return result
}

// Flushes returns how many times Flush has been called.
func (p *Producer) Flushes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.flushes
}

// IsClosed returns whether Close has been called.
func (p *Producer) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.closed
}

// Reset clears produced records, the flush count and the closed flag.
// Configured errors are kept.
func (p *Producer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.producedRecords = make([]ProducedRecord, 0)
	p.flushes = 0
	p.closed = false
}
