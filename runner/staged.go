package runner

import (
	"sync"

	"github.com/hugolhafner/go-connect/offset"
	"github.com/hugolhafner/go-connect/partition"
	"github.com/hugolhafner/go-connect/record"
)

// stagedOffsets holds the newest acknowledged offset per source partition
// until it is written to the offset store.
type stagedOffsets struct {
	mu      sync.Mutex
	entries map[string]offset.Entry
}

func newStagedOffsets() *stagedOffsets {
	return &stagedOffsets{entries: make(map[string]offset.Entry)}
}

func (s *stagedOffsets) stage(rec record.SourceRecord) {
	if rec.Partition == nil || rec.Offset == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[partition.Key(rec.Partition)] = offset.Entry{
		Partition: rec.Partition,
		Offset:    rec.Offset.Clone(),
	}
}

// take empties the stage and returns what it held.
func (s *stagedOffsets) take() []offset.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil
	}

	out := make([]offset.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.entries = make(map[string]offset.Entry)
	return out
}

// restore puts back entries that failed to be written unless a newer offset
// was staged for the same partition in the meantime.
func (s *stagedOffsets) restore(entries []offset.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		key := partition.Key(e.Partition)
		if _, ok := s.entries[key]; !ok {
			s.entries[key] = e
		}
	}
}

func (s *stagedOffsets) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
