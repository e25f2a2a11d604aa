// Package debounce filters boolean sensor readings so a condition is only trusted
// after it has held continuously for a settle delay.
package debounce

import (
	"time"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
)

type Settle struct {
	delay   clock.Millis
	since   clock.Millis
	holding bool
}

func NewSettle(delay time.Duration) *Settle {
	return &Settle{delay: clock.FromDuration(delay)}
}

// Observe feeds one sample. It returns true once cond has been true on every
// sample for at least the settle delay. A false sample restarts the wait.
func (s *Settle) Observe(cond bool, now clock.Millis) bool {
	if !cond {
		s.holding = false
		return false
	}
	if !s.holding {
		s.holding = true
		s.since = now
	}
	return clock.Since(now, s.since) >= s.delay
}

// Reset forgets any partially settled condition.
func (s *Settle) Reset() {
	s.holding = false
}

// Holding reports whether the condition is currently being timed.
func (s *Settle) Holding() bool {
	return s.holding
}
