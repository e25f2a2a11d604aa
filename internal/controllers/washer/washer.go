package washer

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/debounce"
	"github.com/thatsimonsguy/appliance-controller/internal/events"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

var (
	ErrEmptyModeTable   = errors.New("washer mode table is empty")
	ErrReversalTooShort = errors.New("agitate reversal must be longer than the inrush delay")
)

type Config struct {
	Modes       model.ModeTable
	DefaultMode model.WashMode

	// InrushDelay separates switching one module off from energising the next.
	InrushDelay time.Duration
	// SettleDelay is how long the level sensor must hold before a fill or drain
	// stage is considered done.
	SettleDelay time.Duration
	// AgitateReversal flips the drum direction while agitating. Zero keeps it
	// turning one way.
	AgitateReversal time.Duration
	// FillTimeout and DrainTimeout abort the cycle when the level sensor never
	// settles. Zero disables them.
	FillTimeout  time.Duration
	DrainTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Modes:           model.DefaultModeTable(),
		DefaultMode:     model.WashNormal,
		InrushDelay:     500 * time.Millisecond,
		SettleDelay:     3 * time.Second,
		AgitateReversal: 20 * time.Second,
		FillTimeout:     10 * time.Minute,
		DrainTimeout:    5 * time.Minute,
	}
}

func (c Config) Validate() error {
	if len(c.Modes) == 0 {
		return ErrEmptyModeTable
	}
	if _, err := c.Modes.Lookup(c.DefaultMode); err != nil {
		return err
	}
	// A motor module must be energised before the next reversal requests the
	// other one, or the drum never turns.
	if c.AgitateReversal > 0 && c.AgitateReversal <= c.InrushDelay {
		return ErrReversalTooShort
	}
	return nil
}

// CycleOutcome is how a wash cycle ended.
type CycleOutcome string

const (
	CycleCompleted CycleOutcome = "completed"
	CycleAborted   CycleOutcome = "aborted"
	CycleStopped   CycleOutcome = "stopped"
	CyclePowerLoss CycleOutcome = "power_loss"
)

// Record is the state persisted after every stage transition.
type Record struct {
	Mode           model.WashMode `json:"mode"`
	Stage          model.Stage    `json:"stage"`
	RinseCount     uint8          `json:"rinse_count"`
	ElapsedMinutes uint32         `json:"elapsed_minutes"`
	CycleID        string         `json:"cycle_id,omitempty"`
}

// Store persists the running stage and the cycle history.
type Store interface {
	SaveWashState(rec Record) error
	StartCycle(id string, mode model.WashMode, startedAt time.Time) error
	FinishCycle(id string, outcome CycleOutcome, endedAt time.Time) error
}

type Outcome uint8

const (
	OutcomeNoChange Outcome = iota
	OutcomeTransition
	OutcomeCompleted
	OutcomeAborted
)

type Result struct {
	Outcome Outcome
	From    model.Stage
	To      model.Stage
}

type Snapshot struct {
	Mode           model.WashMode `json:"mode"`
	Stage          model.Stage    `json:"stage"`
	RinseCount     uint8          `json:"rinse_count"`
	RinseCycles    uint8          `json:"rinse_cycles"`
	StageElapsed   time.Duration  `json:"stage_elapsed_ns"`
	StageDuration  time.Duration  `json:"stage_duration_ns,omitempty"`
	ElapsedMinutes uint32         `json:"elapsed_minutes"`
	CycleID        string         `json:"cycle_id,omitempty"`
	Module         model.Module   `json:"-"`
	ModuleName     string         `json:"module"`
	ModuleState    string         `json:"module_state"`
	LevelSettling  bool           `json:"level_settling"`
}

// Sequencer runs a wash cycle through its stages. Evaluate is expected to be
// called from a single polling loop; every method is safe to call concurrently.
type Sequencer struct {
	mu    sync.Mutex
	cfg   Config
	sw    *Switcher
	store Store
	out   events.Sink

	mode     model.WashMode
	settings model.ModeSettings

	stage      model.Stage
	rinseCount uint8
	stageStart clock.Millis
	cycleStart clock.Millis
	cycleID    string
	minutes    uint32

	level *debounce.Settle

	direction    model.MotorDirection
	lastReversal clock.Millis
}

func New(cfg Config, act Actuators, store Store, out events.Sink) *Sequencer {
	if out == nil {
		out = events.Discard
	}
	settings, _ := cfg.Modes.Lookup(cfg.DefaultMode)
	return &Sequencer{
		cfg:      cfg,
		sw:       NewSwitcher(act, cfg.InrushDelay),
		store:    store,
		out:      out,
		mode:     cfg.DefaultMode,
		settings: settings,
		stage:    model.StageOff,
		level:    debounce.NewSettle(cfg.SettleDelay),
	}
}

// Restore applies the record persisted before the last shutdown. A cycle that
// was still running is not resumed: power loss is reported and the record is
// reset to Off.
func (s *Sequencer) Restore(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings, err := s.cfg.Modes.Lookup(rec.Mode); err == nil {
		s.mode, s.settings = rec.Mode, settings
	} else {
		log.Warn().Err(err).Msg("Persisted wash mode not in mode table, keeping default")
	}
	s.sw.AllOff()

	if rec.Stage == model.StageOff {
		return
	}

	log.Warn().
		Str("stage", rec.Stage.String()).
		Str("mode", rec.Mode.String()).
		Uint8("rinse_count", rec.RinseCount).
		Uint32("elapsed_minutes", rec.ElapsedMinutes).
		Msg("Wash cycle interrupted by power loss")

	e := s.event(events.TypePowerLossDetected)
	e.From = rec.Stage.String()
	e.To = model.StageOff.String()
	e.RinseCount = rec.RinseCount
	e.CycleID = rec.CycleID
	s.out.Publish(e)

	if rec.CycleID != "" {
		s.finishCycle(rec.CycleID, CyclePowerLoss)
	}
	s.persist()
}

// ChangeMode selects the mode for the next cycle. It is refused while a cycle
// runs or when the mode is not in the table.
func (s *Sequencer) ChangeMode(mode model.WashMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != model.StageOff {
		log.Info().
			Str("mode", mode.String()).
			Str("stage", s.stage.String()).
			Msg("Mode change refused while cycle running")
		return false
	}
	settings, err := s.cfg.Modes.Lookup(mode)
	if err != nil {
		log.Warn().Err(err).Msg("Mode change refused")
		return false
	}

	s.mode, s.settings = mode, settings
	log.Info().Str("mode", mode.String()).Msg("Wash mode changed")
	s.persist()
	return true
}

// Start begins a cycle in the current mode. It does nothing if a cycle runs.
func (s *Sequencer) Start(now clock.Millis) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != model.StageOff {
		return false
	}

	s.cycleID = uuid.NewString()
	s.cycleStart = now
	s.rinseCount = 0
	s.minutes = 0
	if s.store != nil {
		if err := s.store.StartCycle(s.cycleID, s.mode, time.Now()); err != nil {
			log.Error().Err(err).Str("cycle_id", s.cycleID).Msg("Failed to record cycle start")
		}
	}

	log.Info().
		Str("mode", s.mode.String()).
		Str("cycle_id", s.cycleID).
		Msg("Starting wash cycle")
	s.enter(now, model.StageWashFillingUp, "start")
	return true
}

// Stop drives every module off and ends the cycle. It is reachable from any stage.
func (s *Sequencer) Stop(now clock.Millis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage == model.StageOff {
		s.sw.AllOff()
		return
	}
	s.end(now, CycleStopped, "stop")
}

// SkipStage ends the current stage early. Only agitate, soak and spin stages can
// be skipped; anything else is ignored.
func (s *Sequencer) SkipStage(now clock.Millis) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stage.Interruptible() {
		log.Debug().Str("stage", s.stage.String()).Msg("Skip ignored in non-interruptible stage")
		return false
	}
	s.advance(now, "skip")
	s.sw.Poll(now)
	return true
}

// Evaluate advances the cycle against one water level sample.
func (s *Sequencer) Evaluate(now clock.Millis, levelReached bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.stage
	res := Result{Outcome: OutcomeNoChange, From: from, To: from}
	if from == model.StageOff {
		return res
	}

	elapsed := clock.Since(now, s.stageStart)

	switch {
	case from.Filling():
		if s.level.Observe(levelReached, now) {
			s.advance(now, "level_reached")
		} else if timedOut(elapsed, s.cfg.FillTimeout) {
			s.abort(now, "fill_timeout")
		}
	case from.Draining():
		if s.level.Observe(!levelReached, now) {
			s.advance(now, "drained")
		} else if timedOut(elapsed, s.cfg.DrainTimeout) {
			s.abort(now, "drain_timeout")
		}
	default:
		if elapsed > clock.FromDuration(s.settings.StageDuration(from)) {
			s.advance(now, "timer")
		} else if from.Agitating() {
			s.reverse(now)
		}
	}

	s.sw.Poll(now)

	res.To = s.stage
	switch {
	case res.To == from:
		s.persistMinutes(now)
	case res.To == model.StageOff && from == model.StageDrySpinning:
		res.Outcome = OutcomeCompleted
	case res.To == model.StageOff:
		res.Outcome = OutcomeAborted
	default:
		res.Outcome = OutcomeTransition
	}
	return res
}

func (s *Sequencer) Stage() model.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Sequencer) Mode() model.WashMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Sequencer) Snapshot(now clock.Millis) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Mode:          s.mode,
		Stage:         s.stage,
		RinseCount:    s.rinseCount,
		RinseCycles:   s.settings.RinseCycles,
		CycleID:       s.cycleID,
		Module:        s.sw.Module(),
		ModuleName:    s.sw.Module().String(),
		ModuleState:   s.sw.State().String(),
		LevelSettling: s.level.Holding(),
	}
	if s.stage != model.StageOff {
		snap.StageElapsed = clock.Since(now, s.stageStart).Duration()
		snap.StageDuration = s.settings.StageDuration(s.stage)
		snap.ElapsedMinutes = uint32(clock.Since(now, s.cycleStart) / 60_000)
	}
	return snap
}

// next returns the stage that follows the current one and updates the rinse
// counter on the way into and around the rinse loop.
func (s *Sequencer) next() model.Stage {
	switch s.stage {
	case model.StageOff:
		return model.StageWashFillingUp
	case model.StageWashFillingUp:
		return model.StageWashAgitating
	case model.StageWashAgitating:
		return model.StageWashDraining
	case model.StageWashDraining:
		if s.settings.RinseCycles == 0 {
			return model.StageDrySpinning
		}
		s.rinseCount = 1
		return model.StageRinseFillingUp
	case model.StageRinseFillingUp:
		if s.settings.RinseSoakMinutes == 0 {
			return model.StageRinseAgitating
		}
		return model.StageRinseSoaking
	case model.StageRinseSoaking:
		return model.StageRinseAgitating
	case model.StageRinseAgitating:
		return model.StageRinseDraining
	case model.StageRinseDraining:
		return model.StageRinseSpinning
	case model.StageRinseSpinning:
		if s.rinseCount < s.settings.RinseCycles {
			s.rinseCount++
			return model.StageRinseFillingUp
		}
		return model.StageDrySpinning
	case model.StageDrySpinning:
		return model.StageOff
	default:
		log.Error().Str("stage", s.stage.String()).Msg("Unknown wash stage, stopping")
		return model.StageOff
	}
}

func (s *Sequencer) advance(now clock.Millis, reason string) {
	to := s.next()
	if to == model.StageOff {
		s.end(now, CycleCompleted, reason)
		return
	}
	s.enter(now, to, reason)
}

func (s *Sequencer) abort(now clock.Millis, reason string) {
	log.Warn().
		Str("stage", s.stage.String()).
		Str("reason", reason).
		Msg("Aborting wash cycle")
	s.end(now, CycleAborted, reason)
}

// end switches everything off, closes the cycle record and returns to Off.
func (s *Sequencer) end(now clock.Millis, outcome CycleOutcome, reason string) {
	id := s.cycleID
	rinse := s.rinseCount
	s.enter(now, model.StageOff, reason)
	s.finishCycle(id, outcome)

	var t events.Type
	switch outcome {
	case CycleCompleted:
		t = events.TypeCycleEnded
	case CycleAborted:
		t = events.TypeCycleAborted
	default:
		return
	}
	e := s.event(t)
	e.Reason = reason
	e.RinseCount = rinse
	e.CycleID = id
	s.out.Publish(e)
}

func (s *Sequencer) enter(now clock.Millis, to model.Stage, reason string) {
	from := s.stage
	s.stage = to
	s.stageStart = now
	s.level.Reset()

	switch {
	case to == model.StageOff:
		s.sw.AllOff()
		s.rinseCount = 0
		s.cycleID = ""
		s.minutes = 0
	case to.Agitating():
		s.direction = model.MotorForward
		s.lastReversal = now
		s.sw.Request(model.ModuleMotorForward, now)
	default:
		s.sw.Request(moduleFor(to), now)
	}

	log.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Str("mode", s.mode.String()).
		Uint8("rinse_count", s.rinseCount).
		Msg("Wash stage transition")

	e := s.event(events.TypeStateChanged)
	e.From = from.String()
	e.To = to.String()
	e.Reason = reason
	e.RinseCount = s.rinseCount
	e.CycleID = s.cycleID
	s.out.Publish(e)

	if to != model.StageOff {
		s.minutes = uint32(clock.Since(now, s.cycleStart) / 60_000)
	}
	s.persist()
}

// reverse flips the drum direction once the reversal period has passed.
func (s *Sequencer) reverse(now clock.Millis) {
	period := clock.FromDuration(s.cfg.AgitateReversal)
	if period == 0 || clock.Since(now, s.lastReversal) < period {
		return
	}
	module := model.ModuleMotorReverse
	s.direction = model.MotorReverse
	if s.sw.Module() == model.ModuleMotorReverse {
		module = model.ModuleMotorForward
		s.direction = model.MotorForward
	}
	s.lastReversal = now
	s.sw.Request(module, now)
	log.Debug().Str("direction", s.direction.String()).Msg("Agitation reversed")
}

// persistMinutes writes the record again when the elapsed minute ticks over.
func (s *Sequencer) persistMinutes(now clock.Millis) {
	m := uint32(clock.Since(now, s.cycleStart) / 60_000)
	if m == s.minutes {
		return
	}
	s.minutes = m
	s.persist()
}

func (s *Sequencer) persist() {
	if s.store == nil {
		return
	}
	rec := Record{
		Mode:           s.mode,
		Stage:          s.stage,
		RinseCount:     s.rinseCount,
		ElapsedMinutes: s.minutes,
		CycleID:        s.cycleID,
	}
	if err := s.store.SaveWashState(rec); err != nil {
		log.Error().Err(err).Str("stage", rec.Stage.String()).Msg("Failed to persist wash state")
	}
}

func (s *Sequencer) finishCycle(id string, outcome CycleOutcome) {
	if s.store == nil || id == "" {
		return
	}
	if err := s.store.FinishCycle(id, outcome, time.Now()); err != nil {
		log.Error().Err(err).Str("cycle_id", id).Msg("Failed to record cycle end")
	}
}

func (s *Sequencer) event(t events.Type) events.Event {
	return events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceWasher,
		Type:      t,
		Mode:      s.mode.String(),
	}
}

func moduleFor(stage model.Stage) model.Module {
	switch stage {
	case model.StageWashFillingUp, model.StageRinseFillingUp:
		return model.ModuleInletValve
	case model.StageWashAgitating, model.StageRinseAgitating:
		return model.ModuleMotorForward
	case model.StageWashDraining, model.StageRinseDraining:
		return model.ModuleDrainPump
	case model.StageRinseSpinning, model.StageDrySpinning:
		return model.ModuleMotorSpin
	default:
		return model.ModuleNone
	}
}

func timedOut(elapsed clock.Millis, limit time.Duration) bool {
	return limit > 0 && elapsed > clock.FromDuration(limit)
}
