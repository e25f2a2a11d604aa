package washer

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

// Actuators drives the washer relays. Writes are idempotent.
type Actuators interface {
	SetValve(on bool) error
	SetMotor(on bool, dir model.MotorDirection) error
	SetPump(on bool) error
}

type SwitchState uint8

const (
	SwitchIdle SwitchState = iota
	SwitchPending
	SwitchActivated
)

func (s SwitchState) String() string {
	switch s {
	case SwitchIdle:
		return "idle"
	case SwitchPending:
		return "pending"
	case SwitchActivated:
		return "activated"
	default:
		return "unknown"
	}
}

// Switcher is the only writer of washer actuators. A request switches every
// module off, then energises the requested module once the inrush delay has
// passed, so two loads never start together.
type Switcher struct {
	act    Actuators
	inrush clock.Millis

	state       SwitchState
	module      model.Module
	requestedAt clock.Millis
}

func NewSwitcher(act Actuators, inrush time.Duration) *Switcher {
	return &Switcher{act: act, inrush: clock.FromDuration(inrush)}
}

// Request asks for module to become the single energised module. Asking for the
// module that is already pending or active does nothing.
func (s *Switcher) Request(module model.Module, now clock.Millis) {
	if module == model.ModuleNone {
		s.AllOff()
		return
	}
	if s.state != SwitchIdle && s.module == module {
		return
	}

	s.allOff()
	s.state = SwitchPending
	s.module = module
	s.requestedAt = now
	log.Debug().
		Str("module", module.String()).
		Uint64("ready_in_ms", uint64(s.inrush)).
		Msg("Washer module pending")
}

// Poll energises the pending module once the inrush delay is over. It reports
// whether a module was activated on this call.
func (s *Switcher) Poll(now clock.Millis) bool {
	if s.state != SwitchPending || clock.Since(now, s.requestedAt) < s.inrush {
		return false
	}

	if err := s.activate(s.module); err != nil {
		log.Error().Err(err).Str("module", s.module.String()).Msg("Failed to activate washer module")
		return false
	}
	s.state = SwitchActivated
	log.Debug().Str("module", s.module.String()).Msg("Washer module activated")
	return true
}

// AllOff drives every module off and drops any pending request.
func (s *Switcher) AllOff() {
	s.allOff()
	s.state = SwitchIdle
	s.module = model.ModuleNone
}

func (s *Switcher) State() SwitchState {
	return s.state
}

// Module returns the module that is pending or active.
func (s *Switcher) Module() model.Module {
	return s.module
}

// Active returns the energised module, or ModuleNone while idle or pending.
func (s *Switcher) Active() model.Module {
	if s.state != SwitchActivated {
		return model.ModuleNone
	}
	return s.module
}

func (s *Switcher) allOff() {
	if err := s.act.SetValve(false); err != nil {
		log.Error().Err(err).Msg("Failed to close inlet valve")
	}
	if err := s.act.SetMotor(false, model.MotorForward); err != nil {
		log.Error().Err(err).Msg("Failed to stop motor")
	}
	if err := s.act.SetPump(false); err != nil {
		log.Error().Err(err).Msg("Failed to stop drain pump")
	}
}

func (s *Switcher) activate(module model.Module) error {
	switch module {
	case model.ModuleInletValve:
		return s.act.SetValve(true)
	case model.ModuleMotorForward:
		return s.act.SetMotor(true, model.MotorForward)
	case model.ModuleMotorReverse:
		return s.act.SetMotor(true, model.MotorReverse)
	case model.ModuleMotorSpin:
		return s.act.SetMotor(true, model.MotorSpin)
	case model.ModuleDrainPump:
		return s.act.SetPump(true)
	default:
		return nil
	}
}
