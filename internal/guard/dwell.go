// Package guard holds the dwell timer that keeps actuators from chattering.
package guard

import (
	"math"
	"time"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
)

// Dwell decides whether enough time has passed since the last transition to
// allow another one. The zero value has no minimum dwell.
type Dwell struct {
	min      clock.Millis
	last     clock.Millis
	override bool
}

func NewDwell(min time.Duration) *Dwell {
	return &Dwell{min: clock.FromDuration(min)}
}

// Satisfied reports whether a transition may happen at now when the dwell is
// scaled by multiplier. An armed override satisfies the guard once and is
// consumed by doing so.
func (d *Dwell) Satisfied(now clock.Millis, multiplier float64) bool {
	if d.override {
		d.override = false
		return true
	}
	return clock.Since(now, d.last) >= d.Threshold(multiplier)
}

// Threshold returns ceil(min * multiplier) in ticks.
func (d *Dwell) Threshold(multiplier float64) clock.Millis {
	if multiplier <= 0 {
		return 0
	}
	return clock.Millis(math.Ceil(float64(d.min) * multiplier))
}

func (d *Dwell) MarkTransition(now clock.Millis) {
	d.last = now
}

// SetOverride arms or disarms the one-shot bypass. It is meant to be armed right
// after a cold boot, when the persisted transition time cannot be trusted.
func (d *Dwell) SetOverride(armed bool) {
	d.override = armed
}

func (d *Dwell) OverrideArmed() bool {
	return d.override
}

func (d *Dwell) LastTransition() clock.Millis {
	return d.last
}

func (d *Dwell) Elapsed(now clock.Millis) clock.Millis {
	return clock.Since(now, d.last)
}

func (d *Dwell) Min() time.Duration {
	return d.min.Duration()
}
