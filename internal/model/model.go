package model

import "fmt"

// ThermostatState is the air conditioner controller state.
type ThermostatState uint8

const (
	ThermostatOff ThermostatState = iota
	ThermostatFanOnly
	ThermostatCoolingIdle   // fan on, compressor off
	ThermostatCoolingActive // fan and compressor on
)

func (s ThermostatState) String() string {
	switch s {
	case ThermostatOff:
		return "off"
	case ThermostatFanOnly:
		return "fan_only"
	case ThermostatCoolingIdle:
		return "cooling_idle"
	case ThermostatCoolingActive:
		return "cooling_active"
	default:
		return fmt.Sprintf("thermostat_state(%d)", uint8(s))
	}
}

func (s ThermostatState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ThermostatMode is what the user asked the air conditioner to do when started.
type ThermostatMode string

const (
	ThermostatModeCool ThermostatMode = "cool"
	ThermostatModeFan  ThermostatMode = "fan"
)

// Stage is one step of a wash cycle. Values are persisted, so new stages must be
// appended rather than inserted.
type Stage uint8

const (
	StageOff Stage = iota
	StageWashFillingUp
	StageWashAgitating
	StageWashDraining
	StageRinseFillingUp
	StageRinseSoaking
	StageRinseAgitating
	StageRinseDraining
	StageRinseSpinning
	StageDrySpinning
)

var stageNames = map[Stage]string{
	StageOff:            "off",
	StageWashFillingUp:  "wash_filling_up",
	StageWashAgitating:  "wash_agitating",
	StageWashDraining:   "wash_draining",
	StageRinseFillingUp: "rinse_filling_up",
	StageRinseSoaking:   "rinse_soaking",
	StageRinseAgitating: "rinse_agitating",
	StageRinseDraining:  "rinse_draining",
	StageRinseSpinning:  "rinse_spinning",
	StageDrySpinning:    "dry_spinning",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// Interruptible reports whether a skip request is honoured in this stage.
// Fill and drain stages are excluded so valves and pumps are never left half way.
func (s Stage) Interruptible() bool {
	switch s {
	case StageWashAgitating, StageRinseSoaking, StageRinseAgitating, StageRinseSpinning, StageDrySpinning:
		return true
	default:
		return false
	}
}

func (s Stage) Filling() bool {
	return s == StageWashFillingUp || s == StageRinseFillingUp
}

func (s Stage) Draining() bool {
	return s == StageWashDraining || s == StageRinseDraining
}

func (s Stage) Agitating() bool {
	return s == StageWashAgitating || s == StageRinseAgitating
}

// Module is a washer actuator group. At most one is energised at a time.
type Module uint8

const (
	ModuleNone Module = iota
	ModuleInletValve
	ModuleMotorForward
	ModuleMotorReverse
	ModuleMotorSpin
	ModuleDrainPump
)

func (m Module) String() string {
	switch m {
	case ModuleNone:
		return "none"
	case ModuleInletValve:
		return "inlet_valve"
	case ModuleMotorForward:
		return "motor_forward"
	case ModuleMotorReverse:
		return "motor_reverse"
	case ModuleMotorSpin:
		return "motor_spin"
	case ModuleDrainPump:
		return "drain_pump"
	default:
		return fmt.Sprintf("module(%d)", uint8(m))
	}
}

// MotorDirection selects the drum rotation when the motor is powered.
type MotorDirection uint8

const (
	MotorForward MotorDirection = iota
	MotorReverse
	MotorSpin
)

func (d MotorDirection) String() string {
	switch d {
	case MotorForward:
		return "forward"
	case MotorReverse:
		return "reverse"
	case MotorSpin:
		return "spin"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}
