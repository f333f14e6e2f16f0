// Package committer decides when a worker flushes offsets.
package committer

type Committer interface {
	// C signals that enough records were acknowledged to warrant a flush.
	C() <-chan struct{}
	RecordProcessed(count int)
	// Reset restarts counting after a flush that was not triggered by C.
	Reset()
	Close()
}
