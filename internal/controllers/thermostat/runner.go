package thermostat

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/datadog"
)

type TemperatureReader interface {
	ReadCelsius() (float64, error)
}

// DwellStore persists whether a transition happened recently, so a restart can
// decide whether the first-cycle override is safe to arm.
type DwellStore interface {
	SaveRecentDwell(recent bool) error
}

// Runner polls the sensor and feeds the controller.
type Runner struct {
	Controller *Controller
	Sensor     TemperatureReader
	Store      DwellStore
	Clock      clock.Source
	Interval   time.Duration

	persisted bool
	known     bool
}

func (r *Runner) Run(ctx context.Context) {
	log.Info().Dur("interval", r.Interval).Msg("Starting thermostat controller")

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Thermostat controller stopped")
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick runs one evaluation.
func (r *Runner) Tick() Result {
	now := r.Clock.Now()

	temp, err := r.Sensor.ReadCelsius()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read thermostat sensor")
		temp = math.NaN()
	}

	res := r.Controller.Evaluate(now, temp)

	if !math.IsNaN(temp) {
		datadog.Gauge("thermostat.temperature", temp, "component:sensor")
	}
	datadog.Gauge("thermostat.state", float64(res.To), "state:"+res.To.String())

	r.persistDwell(r.Controller.HasRecentDwell(now))
	return res
}

func (r *Runner) persistDwell(recent bool) {
	if r.Store == nil || (r.known && recent == r.persisted) {
		return
	}
	if err := r.Store.SaveRecentDwell(recent); err != nil {
		log.Error().Err(err).Bool("recent", recent).Msg("Failed to persist thermostat dwell")
		return
	}
	r.persisted, r.known = recent, true
}
