package washer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/datadog"
)

type LevelReader interface {
	WaterLevelReached() (bool, error)
}

// Runner polls the level sensor and feeds the sequencer.
type Runner struct {
	Sequencer *Sequencer
	Level     LevelReader
	Clock     clock.Source
	Interval  time.Duration
}

func (r *Runner) Run(ctx context.Context) {
	log.Info().Dur("interval", r.Interval).Msg("Starting washer controller")

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Washer controller stopped")
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick runs one evaluation. A failed level read skips the evaluation so a
// missing sample is never mistaken for an empty drum.
func (r *Runner) Tick() Result {
	now := r.Clock.Now()

	reached, err := r.Level.WaterLevelReached()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read water level sensor")
		datadog.Incr("washer.level_read_errors")
		stage := r.Sequencer.Stage()
		return Result{Outcome: OutcomeNoChange, From: stage, To: stage}
	}

	res := r.Sequencer.Evaluate(now, reached)

	snap := r.Sequencer.Snapshot(now)
	datadog.Gauge("washer.stage", float64(snap.Stage), "stage:"+snap.Stage.String())
	datadog.Gauge("washer.rinse_count", float64(snap.RinseCount))
	return res
}
