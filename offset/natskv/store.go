// Package natskv persists source offsets in a NATS JetStream key-value bucket.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/partition"
	"github.com/hugolhafner/go-connect/serde"
	"github.com/nats-io/nats.go/jetstream"
)

var _ offset.Store = (*Store)(nil)

const DefaultBucket = "connect-offsets"

type Config struct {
	Bucket   string
	Replicas int
	History  uint8
	Storage  jetstream.StorageType

	Logger logger.Logger
}

func defaultConfig() Config {
	return Config{
		Bucket:   DefaultBucket,
		Replicas: 1,
		History:  1,
		Storage:  jetstream.FileStorage,
		Logger:   logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithBucket(bucket string) Option {
	return func(cfg *Config) {
		cfg.Bucket = bucket
	}
}

func WithReplicas(n int) Option {
	return func(cfg *Config) {
		cfg.Replicas = n
	}
}

func WithMemoryStorage() Option {
	return func(cfg *Config) {
		cfg.Storage = jetstream.MemoryStorage
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// Store maps every source partition to one key of the bucket. Keys are the
// base64url form of partition.Key, values are JSON.
type Store struct {
	kv     jetstream.KeyValue
	codec  serde.Serde[map[string]any]
	closed atomic.Bool
	logger logger.Logger
}

// New creates the bucket if it does not exist and opens it otherwise. The
// caller keeps ownership of the underlying connection.
func New(ctx context.Context, js jetstream.JetStream, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kv, err := ensureBucket(
		ctx, js, jetstream.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "source connector offsets",
			History:     cfg.History,
			Replicas:    cfg.Replicas,
			Storage:     cfg.Storage,
		},
	)
	if err != nil {
		return nil, err
	}

	return &Store{
		kv:     kv,
		codec:  serde.JSON[map[string]any](),
		logger: cfg.Logger.With("component", "nats-offset-store", "bucket", cfg.Bucket),
	}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.CreateKeyValue(ctx, cfg)
	if err == nil {
		return kv, nil
	}

	if !errors.Is(err, jetstream.ErrBucketExists) {
		return nil, fmt.Errorf("create offset bucket %s: %w", cfg.Bucket, err)
	}

	kv, err = js.KeyValue(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket %s exists but failed to open: %w", cfg.Bucket, err)
	}

	return kv, nil
}

// Key returns the bucket key a source partition is stored under.
func Key(sourcePartition map[string]string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(partition.Key(sourcePartition)))
}

func (s *Store) Offset(ctx context.Context, sourcePartition map[string]string) (offset.Offset, error) {
	if s.closed.Load() {
		return nil, offset.ErrClosed
	}

	entry, err := s.kv.Get(ctx, Key(sourcePartition))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get offset: %w", err)
	}

	decoded, err := s.codec.Deserialise(s.kv.Bucket(), entry.Value())
	if err != nil {
		return nil, fmt.Errorf("decode offset: %w", err)
	}

	return decoded, nil
}

func (s *Store) Write(ctx context.Context, entries ...offset.Entry) error {
	if s.closed.Load() {
		return offset.ErrClosed
	}

	for _, e := range entries {
		key := Key(e.Partition)

		if e.Offset == nil {
			if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
				return fmt.Errorf("delete offset: %w", err)
			}
			continue
		}

		value, err := s.codec.Serialise(s.kv.Bucket(), e.Offset)
		if err != nil {
			return fmt.Errorf("encode offset for %v: %w", e.Partition, err)
		}

		if _, err := s.kv.Put(ctx, key, value); err != nil {
			return fmt.Errorf("put offset: %w", err)
		}
	}

	s.logger.Debug("Wrote offsets", "entries", len(entries))

	return nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
