// Package elapsed provides timers that answer "has the current period passed?".
//
// The first call to HasElapsed arms a timer and reports true. Timers are not
// safe for concurrent use; callers guard them with their own lock or confine
// them to a single goroutine.
package elapsed

import (
	"time"

	"github.com/hugolhafner/go-connect/clock"
)

// Timer reports whether its current period has passed.
type Timer interface {
	HasElapsed() bool
}

var _ Timer = (*ConstantTimer)(nil)
var _ Timer = (*ExponentialTimer)(nil)

// ConstantTimer elapses once every fixed delay.
type ConstantTimer struct {
	clock clock.Clock
	delay time.Duration
	next  time.Time
	armed bool
}

// Constant returns a timer with a fixed period. A non-positive delay elapses
// on every call.
func Constant(clk clock.Clock, delay time.Duration) *ConstantTimer {
	return &ConstantTimer{clock: clk, delay: delay}
}

func (c *ConstantTimer) HasElapsed() bool {
	now := c.clock.Now()
	if !c.armed {
		c.armed = true
		c.next = now.Add(c.delay)
		return true
	}

	if now.Before(c.next) {
		return false
	}

	if c.delay <= 0 {
		c.next = now
		return true
	}

	for !c.next.After(now) {
		c.next = c.next.Add(c.delay)
	}

	return true
}

// Delay returns the configured period.
func (c *ConstantTimer) Delay() time.Duration {
	return c.delay
}

// ExponentialTimer elapses at a growing interval, multiplying the delay after
// every elapsed period until it reaches the maximum.
type ExponentialTimer struct {
	clock      clock.Clock
	initial    time.Duration
	max        time.Duration
	multiplier float64

	current time.Duration
	next    time.Time
	armed   bool
}

// Exponential returns a timer starting at initial and doubling up to max.
func Exponential(clk clock.Clock, initial, max time.Duration) *ExponentialTimer {
	return ExponentialWithMultiplier(clk, initial, max, 2.0)
}

// ExponentialWithMultiplier is Exponential with a custom growth factor.
// Multipliers below 1 are treated as 1.
func ExponentialWithMultiplier(clk clock.Clock, initial, max time.Duration, multiplier float64) *ExponentialTimer {
	if initial <= 0 {
		initial = time.Millisecond
	}
	if max < initial {
		max = initial
	}
	if multiplier < 1.0 {
		multiplier = 1.0
	}

	return &ExponentialTimer{
		clock:      clk,
		initial:    initial,
		max:        max,
		multiplier: multiplier,
	}
}

func (e *ExponentialTimer) HasElapsed() bool {
	now := e.clock.Now()
	if !e.armed {
		e.armed = true
		e.current = e.initial
		e.next = now.Add(e.current)
		return true
	}

	if now.Before(e.next) {
		return false
	}

	// catch up on every period that passed while nobody was asking
	for !e.next.After(now) {
		e.current = e.grow(e.current)
		e.next = e.next.Add(e.current)
	}

	return true
}

// Interval returns the delay of the period currently being waited on.
func (e *ExponentialTimer) Interval() time.Duration {
	if !e.armed {
		return e.initial
	}
	return e.current
}

func (e *ExponentialTimer) grow(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * e.multiplier)
	if next >= e.max || next <= 0 {
		return e.max
	}
	return next
}
