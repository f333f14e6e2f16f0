package offset

import "sync/atomic"

// Tracker remembers the most recent offset a task has handed out or had
// acknowledged. It is safe for concurrent use.
type Tracker struct {
	last atomic.Pointer[Offset]
}

// Set replaces the tracked offset. Nil offsets are ignored.
func (t *Tracker) Set(o Offset) {
	if o == nil {
		return
	}
	t.last.Store(&o)
}

func (t *Tracker) Last() Offset {
	p := t.last.Load()
	if p == nil {
		return nil
	}
	return *p
}
