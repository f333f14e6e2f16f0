package kafka

import (
	"context"

	"github.com/hugolhafner/go-connect/logger"
)

var _ Producer = (*LogProducer)(nil)

// LogProducer writes every record to a logger instead of a broker. It is
// used when no bootstrap servers are configured.
type LogProducer struct {
	logger logger.Logger
}

func NewLogProducer(l logger.Logger) *LogProducer {
	return &LogProducer{logger: l.With("producer", "log")}
}

func (p *LogProducer) Send(_ context.Context, topic string, key, value []byte, headers []Header) error {
	p.logger.Info("Record", "topic", topic, "key", string(key), "value", string(value), "headers", len(headers))
	return nil
}

func (p *LogProducer) Flush(ctx context.Context) error {
	return ctx.Err()
}

func (p *LogProducer) Close() {}
