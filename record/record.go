// Package record defines the change records a source task hands to the host.
package record

import (
	"time"

	"github.com/hugolhafner/go-connect/offset"
)

type Header struct {
	Key   string
	Value []byte
}

// SourceRecord is one change event together with the position in the source
// it was read at.
type SourceRecord struct {
	Partition map[string]string
	Offset    offset.Offset

	Topic     string
	Key       any
	Value     any
	Headers   []Header
	Timestamp time.Time
}

// New builds a record stamped with the current time.
func New(sourcePartition map[string]string, off offset.Offset, topic string, key, value any) SourceRecord {
	return SourceRecord{
		Partition: sourcePartition,
		Offset:    off,
		Topic:     topic,
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
	}
}

// WithHeader returns a copy of r with an extra header appended.
func (r SourceRecord) WithHeader(key string, value []byte) SourceRecord {
	headers := make([]Header, 0, len(r.Headers)+1)
	headers = append(headers, r.Headers...)
	r.Headers = append(headers, Header{Key: key, Value: value})
	return r
}

// Last returns the offset of the final record in batch, or nil for an empty batch.
func Last(batch []SourceRecord) offset.Offset {
	if len(batch) == 0 {
		return nil
	}
	return batch[len(batch)-1].Offset
}
