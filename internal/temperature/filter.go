package temperature

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrSensorDisabled = errors.New("temperature sensor disabled after repeated anomalies")

type Reader interface {
	ReadCelsius() (float64, error)
}

// Notifier sends a push notification.
type Notifier interface {
	Send(title, message string) error
}

type FilterConfig struct {
	// MaxDelta is the largest jump from the last good reading accepted as real.
	MaxDelta float64
	// MaxAnomalies consecutive rejected readings disable the sensor; as many
	// consecutive good readings re-enable it.
	MaxAnomalies int
	// StableWindow readings within StableSpread of each other are accepted as a
	// new baseline even if they are far from the old one.
	StableWindow int
	StableSpread float64
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxDelta:     3.0,
		MaxAnomalies: 6,
		StableWindow: 3,
		StableSpread: 0.5,
	}
}

// Filter wraps a Reader and rejects implausible jumps. While a spike is being
// rejected the last good reading is returned; once the sensor is disabled
// ReadCelsius fails with ErrSensorDisabled.
type Filter struct {
	mu       sync.Mutex
	name     string
	source   Reader
	notifier Notifier
	cfg      FilterConfig

	lastGood    float64
	hasBaseline bool
	recent      []float64
	anomalies   int
	recovery    int
	disabled    bool
}

func NewFilter(name string, source Reader, notifier Notifier, cfg FilterConfig) *Filter {
	return &Filter{name: name, source: source, notifier: notifier, cfg: cfg}
}

func (f *Filter) ReadCelsius() (float64, error) {
	temp, err := f.source.ReadCelsius()
	if err != nil {
		return 0, err
	}
	return f.process(temp)
}

func (f *Filter) Disabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled
}

func (f *Filter) process(temp float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.remember(temp)

	if !f.hasBaseline {
		f.lastGood, f.hasBaseline = temp, true
		return temp, nil
	}

	good := math.Abs(temp-f.lastGood) <= f.cfg.MaxDelta

	if f.disabled {
		// A stable window counts too, so the sensor can recover at a
		// temperature far from the one it was disabled at.
		if !good && !f.stable() {
			f.recovery = 0
			return 0, ErrSensorDisabled
		}
		f.recovery++
		f.lastGood = temp
		if f.recovery < f.cfg.MaxAnomalies {
			return 0, ErrSensorDisabled
		}
		f.disabled = false
		f.anomalies, f.recovery = 0, 0
		log.Info().Str("sensor", f.name).Float64("temp", temp).Msg("Sensor recovered and re-enabled")
		f.notify("Sensor Recovery", fmt.Sprintf("[%s Recovered] %.1f°C (%d consecutive good readings)",
			f.name, temp, f.cfg.MaxAnomalies))
		return temp, nil
	}

	if good {
		f.anomalies = 0
		f.lastGood = temp
		return temp, nil
	}

	if f.stable() {
		log.Info().Str("sensor", f.name).Float64("temp", temp).Msg("Stable new baseline detected, accepting temperature")
		f.anomalies = 0
		f.lastGood = temp
		return temp, nil
	}

	f.anomalies++
	log.Warn().
		Str("sensor", f.name).
		Float64("temp", temp).
		Float64("last_good", f.lastGood).
		Int("anomalies", f.anomalies).
		Msg("Temperature reading rejected as anomalous")

	if f.anomalies >= f.cfg.MaxAnomalies {
		f.disabled = true
		f.recovery = 0
		f.notify("Sensor Failure", fmt.Sprintf("[%s Disabled] %.1f°C (%d anomalies, last good: %.1f°C)",
			f.name, temp, f.anomalies, f.lastGood))
		return 0, ErrSensorDisabled
	}
	return f.lastGood, nil
}

func (f *Filter) remember(temp float64) {
	if f.cfg.StableWindow <= 0 {
		return
	}
	f.recent = append(f.recent, temp)
	if len(f.recent) > f.cfg.StableWindow {
		f.recent = f.recent[1:]
	}
}

// stable reports whether the last StableWindow readings agree with each other.
func (f *Filter) stable() bool {
	if f.cfg.StableWindow <= 0 || len(f.recent) < f.cfg.StableWindow {
		return false
	}
	lo, hi := f.recent[0], f.recent[0]
	for _, t := range f.recent[1:] {
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}
	return hi-lo <= f.cfg.StableSpread
}

func (f *Filter) notify(title, message string) {
	if f.notifier == nil {
		return
	}
	if err := f.notifier.Send(title, message); err != nil {
		log.Error().Err(err).Str("sensor", f.name).Msg("Failed to send sensor notification")
	}
}
