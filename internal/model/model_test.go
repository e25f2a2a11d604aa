package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageInterruptible(t *testing.T) {
	interruptible := map[Stage]bool{
		StageWashAgitating:  true,
		StageRinseSoaking:   true,
		StageRinseAgitating: true,
		StageRinseSpinning:  true,
		StageDrySpinning:    true,
	}
	for stage := range stageNames {
		assert.Equal(t, interruptible[stage], stage.Interruptible(), stage.String())
	}
}

func TestStageStringUnknown(t *testing.T) {
	assert.Equal(t, "stage(200)", Stage(200).String())
	assert.False(t, Stage(200).Valid())
	assert.True(t, StageDrySpinning.Valid())
}

func TestParseWashMode(t *testing.T) {
	mode, err := ParseWashMode("Heavy")
	require.NoError(t, err)
	assert.Equal(t, WashHeavy, mode)

	_, err = ParseWashMode("turbo")
	assert.True(t, errors.Is(err, ErrUnknownMode))
}

func TestWashModeNamesOrdered(t *testing.T) {
	assert.Equal(t, []string{"normal", "quick", "heavy", "delicate"}, WashModeNames())
}

func TestModeSettingsStageDuration(t *testing.T) {
	s := DefaultModeTable()[WashHeavy]

	assert.Equal(t, 18*time.Minute, s.StageDuration(StageWashAgitating))
	assert.Equal(t, 10*time.Minute, s.StageDuration(StageRinseSoaking))
	assert.Equal(t, 8*time.Minute, s.StageDuration(StageDrySpinning))
	assert.Equal(t, time.Duration(0), s.StageDuration(StageWashFillingUp))
}

func TestModeTableLookupMissing(t *testing.T) {
	table := ModeTable{WashNormal: {}}
	_, err := table.Lookup(WashDelicate)
	assert.ErrorIs(t, err, ErrUnknownMode)
}
