package kafka

import (
	"context"
	"fmt"
	"time"

	ikafka "github.com/hugolhafner/go-connect/internal/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ Producer = (*KgoProducer)(nil)

type KgoProducerConfig struct {
	BootstrapServers []string
	ClientID         string
	Linger           time.Duration
	ProduceTimeout   time.Duration

	Logger logger.Logger
}

func defaultConfig() KgoProducerConfig {
	return KgoProducerConfig{
		BootstrapServers: []string{"localhost:9092"},
		ClientID:         "go-connect",
		Linger:           5 * time.Millisecond,
		ProduceTimeout:   30 * time.Second,
		Logger:           logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoProducerConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoProducerConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoProducerConfig) {
		cfg.ClientID = id
	}
}

func WithLinger(d time.Duration) KgoOption {
	return func(cfg *KgoProducerConfig) {
		cfg.Linger = d
	}
}

func WithProduceTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoProducerConfig) {
		cfg.ProduceTimeout = d
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoProducerConfig) {
		cfg.Logger = l.
			With("client", "kgo")
	}
}

// KgoProducer sends records synchronously with all in-sync replicas acking.
type KgoProducer struct {
	client *kgo.Client
	config KgoProducerConfig
	logger logger.Logger
}

func NewKgoProducer(opts ...KgoOption) (*KgoProducer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(cfg.Linger),
		kgo.ProduceRequestTimeout(cfg.ProduceTimeout),
		kgo.WithLogger(ikafka.NewKgoLogger(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	return &KgoProducer{client: client, config: cfg, logger: cfg.Logger}, nil
}

func (k *KgoProducer) Send(ctx context.Context, topic string, key, value []byte, headers []Header) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: convertToKgoHeaders(headers),
	}

	k.logger.Debug("Sending record", "topic", topic, "key", string(key), "size", len(value))

	results := k.client.ProduceSync(ctx, record)
	return results.FirstErr()
}

func (k *KgoProducer) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func (k *KgoProducer) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KgoProducer) Close() {
	k.client.Close()
}

func convertToKgoHeaders(headers []Header) []kgo.RecordHeader {
	kgoHeaders := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		kgoHeaders[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return kgoHeaders
}
