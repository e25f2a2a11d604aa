package thermostat

import (
	"errors"
	"time"
)

var (
	ErrInvalidHysteresis = errors.New("hysteresis offsets must not be negative")
	ErrInvalidDwell      = errors.New("dwell time and multipliers must not be negative")
	ErrInvalidSensorBand = errors.New("sensor plausibility band is empty")
	ErrSetpointRange     = errors.New("setpoint outside allowed range")
)

// Config is fixed for a session except for the setpoint, which users may change.
type Config struct {
	Setpoint        float64
	UpperHysteresis float64
	LowerHysteresis float64
	MinDwell        time.Duration

	// FirstCycleOverride lets the first transition after boot skip the dwell
	// when no recent transition was persisted before the restart.
	FirstCycleOverride bool

	// Plateau detector: while cooling, the compressor is shut off once the room
	// has stopped dropping by at least PlateauDelta since activation.
	PlateauDelta           float64
	PlateauDwellMultiplier float64
	ReentryDwellMultiplier float64
	ShutoffDwellMultiplier float64

	SetpointMin float64
	SetpointMax float64

	// Readings outside [SensorMin, SensorMax] are treated as a sensor fault.
	SensorMin float64
	SensorMax float64
}

func DefaultConfig() Config {
	return Config{
		Setpoint:               24,
		UpperHysteresis:        0.85,
		LowerHysteresis:        1.35,
		MinDwell:               4 * time.Minute,
		FirstCycleOverride:     true,
		PlateauDelta:           0.4,
		PlateauDwellMultiplier: 4,
		ReentryDwellMultiplier: 1,
		ShutoffDwellMultiplier: 0.5,
		SetpointMin:            16,
		SetpointMax:            30,
		SensorMin:              -20,
		SensorMax:              60,
	}
}

func (c Config) Validate() error {
	if c.UpperHysteresis < 0 || c.LowerHysteresis < 0 {
		return ErrInvalidHysteresis
	}
	if c.MinDwell < 0 || c.PlateauDwellMultiplier < 0 || c.ReentryDwellMultiplier < 0 || c.ShutoffDwellMultiplier < 0 {
		return ErrInvalidDwell
	}
	if c.SensorMin >= c.SensorMax {
		return ErrInvalidSensorBand
	}
	if c.Setpoint < c.SetpointMin || c.Setpoint > c.SetpointMax {
		return ErrSetpointRange
	}
	return nil
}

// longestMultiplier is the largest dwell any rule waits for.
func (c Config) longestMultiplier() float64 {
	m := c.ReentryDwellMultiplier
	if c.PlateauDwellMultiplier > m {
		m = c.PlateauDwellMultiplier
	}
	if c.ShutoffDwellMultiplier > m {
		m = c.ShutoffDwellMultiplier
	}
	return m
}
