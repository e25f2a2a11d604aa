package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrUnknownMode = errors.New("unknown wash mode")

// WashMode selects a row of the mode table. Values are persisted.
type WashMode uint8

const (
	WashNormal WashMode = iota
	WashQuick
	WashHeavy
	WashDelicate
)

var washModeNames = map[WashMode]string{
	WashNormal:   "normal",
	WashQuick:    "quick",
	WashHeavy:    "heavy",
	WashDelicate: "delicate",
}

func (m WashMode) String() string {
	if name, ok := washModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func (m WashMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *WashMode) UnmarshalText(text []byte) error {
	parsed, err := ParseWashMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func ParseWashMode(name string) (WashMode, error) {
	for mode, n := range washModeNames {
		if strings.EqualFold(n, name) {
			return mode, nil
		}
	}
	return WashNormal, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// WashModeNames lists the known modes in table order.
func WashModeNames() []string {
	modes := make([]int, 0, len(washModeNames))
	for m := range washModeNames {
		modes = append(modes, int(m))
	}
	sort.Ints(modes)
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, washModeNames[WashMode(m)])
	}
	return names
}

// ModeSettings holds the per-stage durations for one wash mode. Durations are
// whole minutes; a zero soak skips the soak stage.
type ModeSettings struct {
	WashAgitateMinutes  uint32 `yaml:"wash_agitate_minutes" json:"wash_agitate_minutes"`
	RinseSoakMinutes    uint32 `yaml:"rinse_soak_minutes" json:"rinse_soak_minutes"`
	RinseAgitateMinutes uint32 `yaml:"rinse_agitate_minutes" json:"rinse_agitate_minutes"`
	RinseSpinMinutes    uint32 `yaml:"rinse_spin_minutes" json:"rinse_spin_minutes"`
	DrySpinMinutes      uint32 `yaml:"dry_spin_minutes" json:"dry_spin_minutes"`
	RinseCycles         uint8  `yaml:"rinse_cycles" json:"rinse_cycles"`
}

// StageDuration returns how long a timed stage runs. Fill and drain stages end on
// the level sensor and report zero.
func (s ModeSettings) StageDuration(stage Stage) time.Duration {
	var minutes uint32
	switch stage {
	case StageWashAgitating:
		minutes = s.WashAgitateMinutes
	case StageRinseSoaking:
		minutes = s.RinseSoakMinutes
	case StageRinseAgitating:
		minutes = s.RinseAgitateMinutes
	case StageRinseSpinning:
		minutes = s.RinseSpinMinutes
	case StageDrySpinning:
		minutes = s.DrySpinMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// ModeTable maps each wash mode to its settings. It is configuration shared by
// every cycle, not per-cycle state.
type ModeTable map[WashMode]ModeSettings

func (t ModeTable) Lookup(mode WashMode) (ModeSettings, error) {
	s, ok := t[mode]
	if !ok {
		return ModeSettings{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	return s, nil
}

func DefaultModeTable() ModeTable {
	return ModeTable{
		WashNormal: {
			WashAgitateMinutes:  12,
			RinseSoakMinutes:    0,
			RinseAgitateMinutes: 4,
			RinseSpinMinutes:    3,
			DrySpinMinutes:      6,
			RinseCycles:         2,
		},
		WashQuick: {
			WashAgitateMinutes:  6,
			RinseSoakMinutes:    0,
			RinseAgitateMinutes: 2,
			RinseSpinMinutes:    2,
			DrySpinMinutes:      4,
			RinseCycles:         1,
		},
		WashHeavy: {
			WashAgitateMinutes:  18,
			RinseSoakMinutes:    10,
			RinseAgitateMinutes: 5,
			RinseSpinMinutes:    3,
			DrySpinMinutes:      8,
			RinseCycles:         3,
		},
		WashDelicate: {
			WashAgitateMinutes:  8,
			RinseSoakMinutes:    5,
			RinseAgitateMinutes: 3,
			RinseSpinMinutes:    1,
			DrySpinMinutes:      2,
			RinseCycles:         2,
		},
	}
}
