// Package offset tracks and persists positions in the source change stream.
package offset

import (
	"context"
	"errors"
	"maps"
)

var ErrClosed = errors.New("offset: store closed")

// Offset is an opaque position in the source. Only the connector that
// produced it interprets its contents. A nil Offset means absent.
type Offset map[string]any

// Clone returns a shallow copy of o.
func (o Offset) Clone() Offset {
	if o == nil {
		return nil
	}
	return maps.Clone(o)
}

// Entry is one offset persisted for one source partition. A nil Offset
// removes the partition's stored offset.
type Entry struct {
	Partition map[string]string
	Offset    Offset
}

type Reader interface {
	// Offset returns the stored offset of the partition, or nil if none exists.
	Offset(ctx context.Context, partition map[string]string) (Offset, error)
}

type Writer interface {
	Write(ctx context.Context, entries ...Entry) error
}

type Store interface {
	Reader
	Writer
	Close() error
}
