// Package memory keeps source offsets in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/partition"
)

var _ offset.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	offsets map[string]offset.Offset
	closed  bool
}

func New() *Store {
	return &Store{
		offsets: make(map[string]offset.Offset),
	}
}

func (s *Store) Offset(_ context.Context, sourcePartition map[string]string) (offset.Offset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, offset.ErrClosed
	}

	return s.offsets[partition.Key(sourcePartition)].Clone(), nil
}

func (s *Store) Write(_ context.Context, entries ...offset.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return offset.ErrClosed
	}

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

// Len returns the number of partitions with a stored offset.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offsets)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
