// Package gpio drives the appliance relays and reads the water level switch
// through the Linux GPIO character device.
package gpio

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

// Pin is a BCM line number and its active level.
type Pin struct {
	Number     int  `json:"pin"`
	ActiveHigh bool `json:"active_high"`
}

// InactiveLevel is the raw value that leaves the pin's load switched off.
func (p Pin) InactiveLevel() int {
	if p.ActiveHigh {
		return 0
	}
	return 1
}

func (p Pin) level(active bool) int {
	if active == p.ActiveHigh {
		return 1
	}
	return 0
}

// Lines is raw access to requested GPIO lines.
type Lines interface {
	SetValue(pin int, value int) error
	Value(pin int) (int, error)
	Close() error
}

var safeMode bool

// SetSafeMode disables every relay write system-wide. Writes are logged only.
func SetSafeMode(enabled bool) {
	safeMode = enabled
}

type Relay struct {
	Name  string
	Pin   Pin
	lines Lines
}

func NewRelay(name string, pin Pin, lines Lines) Relay {
	return Relay{Name: name, Pin: pin, lines: lines}
}

func (r Relay) Set(active bool) error {
	if safeMode {
		log.Debug().Str("relay", r.Name).Bool("active", active).Msg("Safe mode, relay write skipped")
		return nil
	}
	if err := r.lines.SetValue(r.Pin.Number, r.Pin.level(active)); err != nil {
		return fmt.Errorf("set relay %s (GPIO %d): %w", r.Name, r.Pin.Number, err)
	}
	return nil
}

func (r Relay) Active() (bool, error) {
	v, err := r.lines.Value(r.Pin.Number)
	if err != nil {
		return false, fmt.Errorf("read relay %s (GPIO %d): %w", r.Name, r.Pin.Number, err)
	}
	return (v == 1) == r.Pin.ActiveHigh, nil
}

// AirConditioner is the compressor and fan relay pair.
type AirConditioner struct {
	Compressor Relay
	Fan        Relay
}

func (a AirConditioner) SetCompressor(on bool) error {
	return a.Compressor.Set(on)
}

func (a AirConditioner) SetFan(on bool) error {
	return a.Fan.Set(on)
}

func (a AirConditioner) Relays() []Relay {
	return []Relay{a.Compressor, a.Fan}
}

// Washer holds the washer relays. The motor is powered through MotorPower;
// MotorReverse and MotorSpin select winding and speed and are only changed
// while power is off.
type Washer struct {
	Valve        Relay
	MotorPower   Relay
	MotorReverse Relay
	MotorSpin    Relay
	Pump         Relay
}

func (w Washer) SetValve(on bool) error {
	return w.Valve.Set(on)
}

func (w Washer) SetPump(on bool) error {
	return w.Pump.Set(on)
}

func (w Washer) SetMotor(on bool, dir model.MotorDirection) error {
	if !on {
		if err := w.MotorPower.Set(false); err != nil {
			return err
		}
		if err := w.MotorReverse.Set(false); err != nil {
			return err
		}
		return w.MotorSpin.Set(false)
	}

	if err := w.MotorReverse.Set(dir == model.MotorReverse); err != nil {
		return err
	}
	if err := w.MotorSpin.Set(dir == model.MotorSpin); err != nil {
		return err
	}
	return w.MotorPower.Set(true)
}

func (w Washer) Relays() []Relay {
	return []Relay{w.Valve, w.MotorPower, w.MotorReverse, w.MotorSpin, w.Pump}
}

// LevelSwitch is the pressure switch that closes once the drum is full.
type LevelSwitch struct {
	Pin   Pin
	lines Lines
}

func NewLevelSwitch(pin Pin, lines Lines) LevelSwitch {
	return LevelSwitch{Pin: pin, lines: lines}
}

func (l LevelSwitch) WaterLevelReached() (bool, error) {
	v, err := l.lines.Value(l.Pin.Number)
	if err != nil {
		return false, fmt.Errorf("read level switch (GPIO %d): %w", l.Pin.Number, err)
	}
	return (v == 1) == l.Pin.ActiveHigh, nil
}

// ValidateStartupPins checks that every relay was inactive when the lines were
// claimed. bootLevels maps pin numbers to the raw level read at that moment.
func ValidateStartupPins(bootLevels map[int]int, relays []Relay) error {
	for _, r := range relays {
		level, ok := bootLevels[r.Pin.Number]
		if !ok {
			return fmt.Errorf("no boot level recorded for %s (GPIO %d)", r.Name, r.Pin.Number)
		}
		if level != r.Pin.InactiveLevel() {
			return fmt.Errorf("pin %d (%s) is in wrong state at startup (expected inactive)", r.Pin.Number, r.Name)
		}
	}
	return nil
}

// AllOff drives every relay inactive and returns the first error.
func AllOff(relays []Relay) error {
	var first error
	for _, r := range relays {
		if err := r.Set(false); err != nil {
			log.Error().Err(err).Str("relay", r.Name).Msg("Failed to switch relay off")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
