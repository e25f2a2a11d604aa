// Package clock provides the millisecond tick the controllers are evaluated against.
package clock

import "time"

// Millis is a free-running millisecond counter. Differences between two readings
// are computed with unsigned subtraction so a counter that overflows still yields
// the correct elapsed time.
type Millis uint64

// Since returns the elapsed ticks from then to now.
func Since(now, then Millis) Millis {
	return now - then
}

// FromDuration converts d to ticks, truncating below one millisecond.
func FromDuration(d time.Duration) Millis {
	if d <= 0 {
		return 0
	}
	return Millis(d / time.Millisecond)
}

// Duration converts the tick count back to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Source supplies the current tick.
type Source interface {
	Now() Millis
}

// Monotonic counts milliseconds since it was created, using the monotonic
// reading carried by time.Time.
type Monotonic struct {
	start time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) Now() Millis {
	return FromDuration(time.Since(m.start))
}

// Manual is a Source that only moves when told to.
type Manual struct {
	T Millis
}

func (m *Manual) Now() Millis {
	return m.T
}

func (m *Manual) Advance(d time.Duration) {
	m.T += FromDuration(d)
}
