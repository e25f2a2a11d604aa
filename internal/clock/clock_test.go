package clock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSinceAcrossWraparound(t *testing.T) {
	then := Millis(math.MaxUint64 - 499)
	now := Millis(500)

	assert.Equal(t, Millis(1000), Since(now, then))
}

func TestFromDuration(t *testing.T) {
	assert.Equal(t, Millis(240000), FromDuration(4*time.Minute))
	assert.Equal(t, Millis(0), FromDuration(-time.Second))
	assert.Equal(t, Millis(0), FromDuration(900*time.Microsecond))
	assert.Equal(t, 1500*time.Millisecond, Millis(1500).Duration())
}

func TestManualAdvance(t *testing.T) {
	m := &Manual{T: 10}
	m.Advance(2 * time.Second)
	assert.Equal(t, Millis(2010), m.Now())
}
