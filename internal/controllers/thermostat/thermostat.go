package thermostat

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/events"
	"github.com/thatsimonsguy/appliance-controller/internal/guard"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

// Actuators drives the air conditioner relays. Writes are idempotent.
type Actuators interface {
	SetCompressor(on bool) error
	SetFan(on bool) error
}

type Outcome uint8

const (
	OutcomeNoChange Outcome = iota
	OutcomeTransition
	OutcomeSensorFault
)

// Rule names the transition rule that fired during an evaluation.
type Rule string

const (
	RuleNone        Rule = ""
	RulePlateau     Rule = "plateau"
	RuleActivate    Rule = "above_setpoint"
	RuleShutoff     Rule = "setpoint_reached"
	RuleSensorFault Rule = "sensor_fault"
)

type Result struct {
	Outcome Outcome
	From    model.ThermostatState
	To      model.ThermostatState
	Rule    Rule
}

// Snapshot is a copy of the controller state safe to hand to other goroutines.
type Snapshot struct {
	State           model.ThermostatState `json:"state"`
	Setpoint        float64               `json:"setpoint"`
	UpperHysteresis float64               `json:"upper_hysteresis"`
	LowerHysteresis float64               `json:"lower_hysteresis"`
	LastTemp        *float64              `json:"last_temp,omitempty"`
	LastObserved    *float64              `json:"last_observed,omitempty"`
	SensorFault     bool                  `json:"sensor_fault"`
	SinceTransition time.Duration         `json:"since_transition_ns"`
	OverrideArmed   bool                  `json:"override_armed"`
}

// Controller is the air conditioner state machine. Evaluate is expected to be
// called from a single polling loop; every method is safe to call concurrently.
type Controller struct {
	mu  sync.Mutex
	cfg Config
	act Actuators
	out events.Sink

	dwell *guard.Dwell
	state model.ThermostatState

	observed    float64
	observedSet bool

	lastTemp    float64
	lastTempSet bool
	faulted     bool

	// transitioned is false until the first transition of this session.
	transitioned bool

	// restoredRecent carries the persisted flag until this session's own
	// dwell window, measured from bootAt, has passed.
	restoredRecent bool
	bootAt         clock.Millis
}

func New(cfg Config, act Actuators, out events.Sink) *Controller {
	if out == nil {
		out = events.Discard
	}
	return &Controller{
		cfg:   cfg,
		act:   act,
		out:   out,
		dwell: guard.NewDwell(cfg.MinDwell),
		state: model.ThermostatOff,
	}
}

// Restore applies what was persisted before the last shutdown. The first-cycle
// override is only armed when no transition happened recently, so a quick
// restart cannot be used to short-cycle the compressor. The restored flag is
// reported by HasRecentDwell until the longest dwell has passed since now.
func (c *Controller) Restore(now clock.Millis, hadRecentDwell bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	armed := c.cfg.FirstCycleOverride && !hadRecentDwell
	c.dwell.SetOverride(armed)
	c.restoredRecent, c.bootAt = hadRecentDwell, now
	log.Info().
		Bool("recent_dwell", hadRecentDwell).
		Bool("override_armed", armed).
		Msg("Restored thermostat dwell state")
}

// Start turns the fan on and, in cool mode, hands control of the compressor to
// the evaluator. Starting an already running controller only switches mode.
func (c *Controller) Start(now clock.Millis, mode model.ThermostatMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := model.ThermostatFanOnly
	if mode == model.ThermostatModeCool {
		target = model.ThermostatCoolingIdle
	}

	switch c.state {
	case model.ThermostatOff:
		c.setFan(true)
		c.transition(now, target, "start")
	case model.ThermostatCoolingActive:
		if target == model.ThermostatFanOnly {
			c.setCompressor(false)
			c.transition(now, target, "mode_change")
		}
	case model.ThermostatCoolingIdle, model.ThermostatFanOnly:
		if c.state != target {
			// Compressor is already off; the dwell timer keeps running.
			c.enter(target, "mode_change")
		}
	}
}

// Stop drives everything off. It is reachable from any state.
func (c *Controller) Stop(now clock.Millis) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == model.ThermostatOff {
		return
	}
	c.setCompressor(false)
	c.setFan(false)
	c.faulted = false
	c.transition(now, model.ThermostatOff, "stop")
}

func (c *Controller) SetSetpoint(setpoint float64) error {
	if math.IsNaN(setpoint) || setpoint < c.cfg.SetpointMin || setpoint > c.cfg.SetpointMax {
		return ErrSetpointRange
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log.Info().
		Float64("old", c.cfg.Setpoint).
		Float64("new", setpoint).
		Msg("Thermostat setpoint changed")
	c.cfg.Setpoint = setpoint
	return nil
}

// Evaluate runs the transition rules against one temperature reading, first
// match wins.
func (c *Controller) Evaluate(now clock.Millis, temp float64) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.state
	res := Result{Outcome: OutcomeNoChange, From: from, To: from}

	switch from {
	case model.ThermostatOff, model.ThermostatFanOnly:
		return res
	}

	if !c.plausible(temp) {
		return c.sensorFault(now, temp, res)
	}
	if c.faulted {
		c.faulted = false
		log.Info().Float64("temp", temp).Msg("Thermostat sensor recovered")
	}
	c.lastTemp, c.lastTempSet = temp, true

	switch from {
	case model.ThermostatCoolingActive:
		if c.observedSet && (temp > c.observed || c.observed-temp < c.cfg.PlateauDelta) &&
			c.dwell.Satisfied(now, c.cfg.PlateauDwellMultiplier) {
			c.setCompressor(false)
			c.transition(now, model.ThermostatCoolingIdle, string(RulePlateau))
			res.Rule = RulePlateau
			break
		}
		if temp <= c.cfg.Setpoint-c.cfg.LowerHysteresis &&
			c.dwell.Satisfied(now, c.cfg.ShutoffDwellMultiplier) {
			c.setCompressor(false)
			c.transition(now, model.ThermostatCoolingIdle, string(RuleShutoff))
			res.Rule = RuleShutoff
		}
	case model.ThermostatCoolingIdle:
		if temp > c.cfg.Setpoint+c.cfg.UpperHysteresis &&
			c.dwell.Satisfied(now, c.cfg.ReentryDwellMultiplier) {
			c.setCompressor(true)
			c.transition(now, model.ThermostatCoolingActive, string(RuleActivate))
			c.observed, c.observedSet = temp, true
			res.Rule = RuleActivate
		}
	default:
		log.Error().Str("state", from.String()).Msg("Thermostat in unknown state")
	}

	if res.Rule == RuleNone {
		log.Debug().
			Str("state", from.String()).
			Float64("temp", temp).
			Float64("setpoint", c.cfg.Setpoint).
			Msg("Thermostat check, no transition")
		return res
	}
	res.Outcome = OutcomeTransition
	res.To = c.state
	return res
}

// HasRecentDwell reports whether the longest dwell any rule waits for has not
// yet elapsed since the last transition. Before the first transition of this
// session the restored flag holds for one such window after boot.
func (c *Controller) HasRecentDwell(now clock.Millis) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	window := c.dwell.Threshold(c.cfg.longestMultiplier())
	if !c.transitioned {
		return c.restoredRecent && clock.Since(now, c.bootAt) < window
	}
	return c.dwell.Elapsed(now) < window
}

// LastObserved returns the temperature recorded at the last activation, if any.
func (c *Controller) LastObserved() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observed, c.observedSet
}

func (c *Controller) State() model.ThermostatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot(now clock.Millis) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:           c.state,
		Setpoint:        c.cfg.Setpoint,
		UpperHysteresis: c.cfg.UpperHysteresis,
		LowerHysteresis: c.cfg.LowerHysteresis,
		SensorFault:     c.faulted,
		SinceTransition: c.dwell.Elapsed(now).Duration(),
		OverrideArmed:   c.dwell.OverrideArmed(),
	}
	if c.lastTempSet {
		t := c.lastTemp
		s.LastTemp = &t
	}
	if c.observedSet {
		o := c.observed
		s.LastObserved = &o
	}
	return s
}

func (c *Controller) plausible(temp float64) bool {
	return !math.IsNaN(temp) && temp >= c.cfg.SensorMin && temp <= c.cfg.SensorMax
}

// sensorFault forces the compressor off without waiting for the dwell.
func (c *Controller) sensorFault(now clock.Millis, temp float64, res Result) Result {
	res.Outcome = OutcomeSensorFault
	res.Rule = RuleSensorFault

	first := !c.faulted
	c.faulted = true
	if c.state == model.ThermostatCoolingActive {
		c.setCompressor(false)
		c.transition(now, model.ThermostatCoolingIdle, string(RuleSensorFault))
	}
	res.To = c.state

	if first {
		log.Warn().Float64("temp", temp).Msg("Implausible thermostat reading, holding compressor off")
		e := c.event(events.TypeSensorFault)
		if !math.IsNaN(temp) {
			e.Temperature = &temp
		}
		c.out.Publish(e)
	}
	return res
}

// transition marks the dwell and enters the new state.
func (c *Controller) transition(now clock.Millis, to model.ThermostatState, reason string) {
	c.dwell.MarkTransition(now)
	c.transitioned = true
	c.enter(to, reason)
}

func (c *Controller) enter(to model.ThermostatState, reason string) {
	from := c.state
	c.state = to
	if to != model.ThermostatCoolingActive {
		c.observedSet = false
	}

	log.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Msg("Thermostat transition")

	e := c.event(events.TypeStateChanged)
	e.From = from.String()
	e.To = to.String()
	e.Reason = reason
	if c.lastTempSet {
		t := c.lastTemp
		e.Temperature = &t
	}
	c.out.Publish(e)
}

func (c *Controller) event(t events.Type) events.Event {
	return events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceThermostat,
		Type:      t,
	}
}

func (c *Controller) setCompressor(on bool) {
	if err := c.act.SetCompressor(on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("Failed to switch compressor")
	}
}

func (c *Controller) setFan(on bool) {
	if err := c.act.SetFan(on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("Failed to switch fan")
	}
}
