package clock

import "time"

// Clock is the time source used by timers and statistics.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns a Clock backed by time.Now. Readings carry Go's monotonic
// component, so elapsed-time comparisons are immune to wall-clock jumps.
func System() Clock {
	return systemClock{}
}
