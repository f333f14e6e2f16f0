// Package kafka persists source offsets in a log-compacted Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ikafka "github.com/hugolhafner/go-connect/internal/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/partition"
	"github.com/hugolhafner/go-connect/serde"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ offset.Store = (*Store)(nil)

type Config struct {
	BootstrapServers  []string
	Topic             string
	ReplicationFactor int16
	// ReplayIdleTimeout is how long Open waits for more records before it
	// considers the topic fully replayed.
	ReplayIdleTimeout time.Duration

	Logger logger.Logger
}

func defaultConfig() Config {
	return Config{
		BootstrapServers:  []string{"localhost:9092"},
		Topic:             "connect-offsets",
		ReplicationFactor: 1,
		ReplayIdleTimeout: 2 * time.Second,
		Logger:            logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithBootstrapServers(servers []string) Option {
	return func(cfg *Config) {
		cfg.BootstrapServers = servers
	}
}

func WithTopic(topic string) Option {
	return func(cfg *Config) {
		cfg.Topic = topic
	}
}

func WithReplicationFactor(rf int16) Option {
	return func(cfg *Config) {
		cfg.ReplicationFactor = rf
	}
}

func WithReplayIdleTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.ReplayIdleTimeout = d
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// Store keeps the latest offset of every partition in memory and writes
// changes to the topic keyed by partition.Key. A removed offset is written
// as a tombstone.
type Store struct {
	client *kgo.Client
	config Config
	codec  serde.Serde[map[string]any]

	mu      sync.RWMutex
	offsets map[string]offset.Offset

	closed atomic.Bool
	logger logger.Logger
}

// Open connects to the cluster, creates the topic if needed and replays it.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Topic == "" {
		return nil, errors.New("offset store topic must not be empty")
	}

	l := cfg.Logger.With("component", "kafka-offset-store", "topic", cfg.Topic)

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.WithLogger(ikafka.NewKgoLogger(l)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	s := &Store{
		client:  client,
		config:  cfg,
		codec:   serde.Struct(),
		offsets: make(map[string]offset.Offset),
		logger:  l,
	}

	if err := ikafka.EnsureTopic(ctx, client, ikafka.CompactedTopic(cfg.Topic, cfg.ReplicationFactor)); err != nil {
		client.Close()
		return nil, err
	}

	if err := s.replay(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) replay(ctx context.Context) error {
	replayed := 0

	for {
		pollCtx, cancel := context.WithTimeout(ctx, s.config.ReplayIdleTimeout)
		fetches := s.client.PollFetches(pollCtx)
		cancel()

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay offsets: %w", err)
		}

		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
				continue
			}
			return fmt.Errorf("replay offsets: %w", fe.Err)
		}

		records := fetches.Records()
		if len(records) == 0 {
			break
		}

		for _, r := range records {
			s.apply(r)
		}
		replayed += len(records)
	}

	s.client.PauseFetchTopics(s.config.Topic)
	s.logger.Info("Replayed stored offsets", "records", replayed, "partitions", s.size())

	return nil
}

func (s *Store) apply(r *kgo.Record) {
	sourcePartition, err := partition.ParseKey(string(r.Key))
	if err != nil {
		s.logger.Warn("Skipping stored offset with invalid partition key", "key", string(r.Key), "error", err)
		return
	}
	// other writers may order or space the key differently
	key := partition.Key(sourcePartition)

	if r.Value == nil {
		s.mu.Lock()
		delete(s.offsets, key)
		s.mu.Unlock()
		return
	}

	decoded, err := s.codec.Deserialise(s.config.Topic, r.Value)
	if err != nil {
		s.logger.Warn("Skipping undecodable stored offset", "key", key, "error", err)
		return
	}

	s.mu.Lock()
	s.offsets[key] = decoded
	s.mu.Unlock()
}

func (s *Store) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offsets)
}

func (s *Store) Offset(_ context.Context, sourcePartition map[string]string) (offset.Offset, error) {
	if s.closed.Load() {
		return nil, offset.ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.offsets[partition.Key(sourcePartition)].Clone(), nil
}

func (s *Store) Write(ctx context.Context, entries ...offset.Entry) error {
	if s.closed.Load() {
		return offset.ErrClosed
	}
	if len(entries) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		value, err := s.codec.Serialise(s.config.Topic, e.Offset)
		if err != nil {
			return fmt.Errorf("encode offset for %v: %w", e.Partition, err)
		}
		if e.Offset != nil && value == nil {
			value = []byte{}
		}

		records = append(
			records, &kgo.Record{
				Topic: s.config.Topic,
				Key:   []byte(partition.Key(e.Partition)),
				Value: value,
			},
		)
	}

	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("write offsets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		key := partition.Key(e.Partition)
		if e.Offset == nil {
			delete(s.offsets, key)
			continue
		}
		s.offsets[key] = e.Offset.Clone()
	}

	return nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.client.Close()
	return nil
}
