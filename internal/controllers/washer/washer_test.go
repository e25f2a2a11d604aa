package washer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/events"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

type fakeDrum struct {
	valve   bool
	motor   bool
	dir     model.MotorDirection
	pump    bool
	maxLive int
}

func (f *fakeDrum) check() {
	live := 0
	for _, on := range []bool{f.valve, f.motor, f.pump} {
		if on {
			live++
		}
	}
	if live > f.maxLive {
		f.maxLive = live
	}
}

func (f *fakeDrum) SetValve(on bool) error {
	f.valve = on
	f.check()
	return nil
}

func (f *fakeDrum) SetMotor(on bool, dir model.MotorDirection) error {
	f.motor, f.dir = on, dir
	f.check()
	return nil
}

func (f *fakeDrum) SetPump(on bool) error {
	f.pump = on
	f.check()
	return nil
}

func (f *fakeDrum) anyOn() bool {
	return f.valve || f.motor || f.pump
}

type fakeStore struct {
	saved    []Record
	started  []string
	finished map[string]CycleOutcome
}

func newFakeStore() *fakeStore {
	return &fakeStore{finished: map[string]CycleOutcome{}}
}

func (f *fakeStore) SaveWashState(rec Record) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) StartCycle(id string, mode model.WashMode, startedAt time.Time) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeStore) FinishCycle(id string, outcome CycleOutcome, endedAt time.Time) error {
	f.finished[id] = outcome
	return nil
}

func (f *fakeStore) last() Record {
	return f.saved[len(f.saved)-1]
}

const sec = clock.Millis(1000)

func testConfig() Config {
	return Config{
		Modes: model.ModeTable{
			model.WashNormal: {
				WashAgitateMinutes:  1,
				RinseAgitateMinutes: 1,
				RinseSpinMinutes:    1,
				DrySpinMinutes:      1,
				RinseCycles:         2,
			},
			model.WashHeavy: {
				WashAgitateMinutes:  1,
				RinseSoakMinutes:    1,
				RinseAgitateMinutes: 1,
				RinseSpinMinutes:    1,
				DrySpinMinutes:      1,
				RinseCycles:         1,
			},
			model.WashQuick: {
				WashAgitateMinutes: 1,
				DrySpinMinutes:     1,
			},
		},
		DefaultMode: model.WashNormal,
		InrushDelay: 500 * time.Millisecond,
		SettleDelay: 2 * time.Second,
	}
}

func newTestSequencer(t *testing.T, cfg Config) (*Sequencer, *fakeDrum, *fakeStore, *events.Recorder) {
	drum := &fakeDrum{}
	store := newFakeStore()
	rec := &events.Recorder{}
	return New(cfg, drum, store, rec), drum, store, rec
}

// runCycle drives the sequencer with a level sensor that reads full while water
// is wanted in the drum and empty otherwise, one sample per second.
func runCycle(s *Sequencer, start clock.Millis) clock.Millis {
	now := start
	for i := 0; i < 3600 && s.Stage() != model.StageOff; i++ {
		now += sec
		stage := s.Stage()
		full := stage.Filling() || stage.Agitating() || stage == model.StageRinseSoaking
		s.Evaluate(now, full)
	}
	return now
}

func stagesEntered(rec *events.Recorder) []string {
	var out []string
	for _, e := range rec.OfType(events.TypeStateChanged) {
		out = append(out, e.To)
	}
	return out
}

func TestFillWaitsForSettledLevel(t *testing.T) {
	s, drum, store, _ := newTestSequencer(t, testConfig())
	require.True(t, s.Start(0))
	assert.Equal(t, model.StageWashFillingUp, s.Stage())

	s.Evaluate(sec, true)
	assert.True(t, drum.valve)

	s.Evaluate(1500, false)
	s.Evaluate(2*sec, true)
	s.Evaluate(4*sec-1, true)
	assert.Equal(t, model.StageWashFillingUp, s.Stage())

	res := s.Evaluate(4*sec, true)
	assert.Equal(t, OutcomeTransition, res.Outcome)
	assert.Equal(t, model.StageWashAgitating, res.To)
	assert.False(t, drum.valve)

	assert.Equal(t, model.StageWashAgitating, store.last().Stage)
	assert.Equal(t, model.WashNormal, store.last().Mode)
}

func TestFullCycleCountsRinses(t *testing.T) {
	s, drum, store, rec := newTestSequencer(t, testConfig())
	require.True(t, s.Start(0))
	runCycle(s, 0)

	assert.Equal(t, []string{
		"wash_filling_up", "wash_agitating", "wash_draining",
		"rinse_filling_up", "rinse_agitating", "rinse_draining", "rinse_spinning",
		"rinse_filling_up", "rinse_agitating", "rinse_draining", "rinse_spinning",
		"dry_spinning", "off",
	}, stagesEntered(rec))

	var rinses []uint8
	for _, e := range rec.OfType(events.TypeStateChanged) {
		if e.To == "rinse_filling_up" {
			rinses = append(rinses, e.RinseCount)
		}
	}
	assert.Equal(t, []uint8{1, 2}, rinses)

	ended := rec.OfType(events.TypeCycleEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, uint8(2), ended[0].RinseCount)

	require.Len(t, store.started, 1)
	assert.Equal(t, CycleCompleted, store.finished[store.started[0]])
	assert.Equal(t, model.StageOff, store.last().Stage)
	assert.Empty(t, store.last().CycleID)

	assert.False(t, drum.anyOn())
	assert.Equal(t, 1, drum.maxLive)
}

func TestSoakAndRinseCountFollowMode(t *testing.T) {
	tests := []struct {
		name string
		mode model.WashMode
		want []string
	}{
		{
			name: "soak runs when configured",
			mode: model.WashHeavy,
			want: []string{
				"wash_filling_up", "wash_agitating", "wash_draining",
				"rinse_filling_up", "rinse_soaking", "rinse_agitating", "rinse_draining", "rinse_spinning",
				"dry_spinning", "off",
			},
		},
		{
			name: "no rinse goes straight to dry spin",
			mode: model.WashQuick,
			want: []string{"wash_filling_up", "wash_agitating", "wash_draining", "dry_spinning", "off"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, rec := newTestSequencer(t, testConfig())
			require.True(t, s.ChangeMode(tt.mode))
			require.True(t, s.Start(0))
			runCycle(s, 0)
			assert.Equal(t, tt.want, stagesEntered(rec))
		})
	}
}

func TestTimedStageExitsAfterDuration(t *testing.T) {
	s, _, _, _ := newTestSequencer(t, testConfig())
	s.Start(0)
	s.Evaluate(sec, true)
	s.Evaluate(3*sec, true)
	require.Equal(t, model.StageWashAgitating, s.Stage())

	s.Evaluate(3*sec+60*sec, true)
	assert.Equal(t, model.StageWashAgitating, s.Stage())
	s.Evaluate(3*sec+60*sec+1, true)
	assert.Equal(t, model.StageWashDraining, s.Stage())
}

func TestChangeModeOnlyWhenOff(t *testing.T) {
	s, _, store, _ := newTestSequencer(t, testConfig())

	assert.True(t, s.ChangeMode(model.WashHeavy))
	assert.Equal(t, model.WashHeavy, store.last().Mode)
	assert.False(t, s.ChangeMode(model.WashDelicate), "mode missing from table")

	s.Start(0)
	assert.False(t, s.ChangeMode(model.WashNormal))
	assert.Equal(t, model.WashHeavy, s.Mode())

	s.Stop(sec)
	assert.True(t, s.ChangeMode(model.WashNormal))
}

func TestSkipStageAllowList(t *testing.T) {
	s, _, _, _ := newTestSequencer(t, testConfig())
	assert.False(t, s.SkipStage(0))

	s.Start(0)
	assert.False(t, s.SkipStage(sec))
	assert.Equal(t, model.StageWashFillingUp, s.Stage())

	s.Evaluate(sec, true)
	s.Evaluate(3*sec, true)
	require.Equal(t, model.StageWashAgitating, s.Stage())

	assert.True(t, s.SkipStage(4*sec))
	assert.Equal(t, model.StageWashDraining, s.Stage())
	assert.False(t, s.SkipStage(5*sec))
	assert.Equal(t, model.StageWashDraining, s.Stage())
}

func TestSkipFromDrySpinCompletesCycle(t *testing.T) {
	s, _, store, rec := newTestSequencer(t, testConfig())
	require.True(t, s.ChangeMode(model.WashQuick))
	s.Start(0)
	s.Evaluate(sec, true)
	s.Evaluate(3*sec, true)
	s.SkipStage(4 * sec)
	s.Evaluate(5*sec, false)
	s.Evaluate(7*sec, false)
	require.Equal(t, model.StageDrySpinning, s.Stage())

	assert.True(t, s.SkipStage(8*sec))
	assert.Equal(t, model.StageOff, s.Stage())
	assert.Len(t, rec.OfType(events.TypeCycleEnded), 1)
	assert.Equal(t, CycleCompleted, store.finished[store.started[0]])
}

func TestStopEndsCycle(t *testing.T) {
	s, drum, store, rec := newTestSequencer(t, testConfig())
	s.Start(0)
	s.Evaluate(sec, true)
	require.True(t, drum.valve)

	s.Stop(2 * sec)
	assert.Equal(t, model.StageOff, s.Stage())
	assert.False(t, drum.anyOn())
	assert.Equal(t, CycleStopped, store.finished[store.started[0]])
	assert.Empty(t, rec.OfType(events.TypeCycleEnded))

	res := s.Evaluate(3*sec, true)
	assert.Equal(t, OutcomeNoChange, res.Outcome)
	assert.False(t, drum.anyOn())
}

func TestStartIgnoredWhileRunning(t *testing.T) {
	s, _, store, _ := newTestSequencer(t, testConfig())
	assert.True(t, s.Start(0))
	assert.False(t, s.Start(sec))
	assert.Len(t, store.started, 1)
}

func TestFillTimeoutAbortsCycle(t *testing.T) {
	cfg := testConfig()
	cfg.FillTimeout = 30 * time.Second
	s, drum, store, rec := newTestSequencer(t, cfg)
	s.Start(0)

	s.Evaluate(30*sec, false)
	assert.Equal(t, model.StageWashFillingUp, s.Stage())

	res := s.Evaluate(31*sec, false)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Equal(t, model.StageOff, s.Stage())
	assert.False(t, drum.anyOn())

	aborted := rec.OfType(events.TypeCycleAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, "fill_timeout", aborted[0].Reason)
	assert.Equal(t, CycleAborted, store.finished[store.started[0]])
}

func TestAgitationReverses(t *testing.T) {
	cfg := testConfig()
	cfg.AgitateReversal = 10 * time.Second
	s, drum, _, _ := newTestSequencer(t, cfg)
	s.Start(0)
	s.Evaluate(sec, true)
	s.Evaluate(3*sec, true)
	require.Equal(t, model.StageWashAgitating, s.Stage())

	s.Evaluate(4*sec, true)
	assert.True(t, drum.motor)
	assert.Equal(t, model.MotorForward, drum.dir)

	s.Evaluate(13*sec, true)
	assert.False(t, drum.motor, "motor is off during inrush gap")
	s.Evaluate(13*sec+500, true)
	assert.True(t, drum.motor)
	assert.Equal(t, model.MotorReverse, drum.dir)

	s.Evaluate(23*sec, true)
	s.Evaluate(24*sec, true)
	assert.Equal(t, model.MotorForward, drum.dir)
	assert.Equal(t, 1, drum.maxLive)
}

func TestRestoreAfterPowerLoss(t *testing.T) {
	s, drum, store, rec := newTestSequencer(t, testConfig())
	s.Restore(Record{
		Mode:           model.WashHeavy,
		Stage:          model.StageRinseAgitating,
		RinseCount:     1,
		ElapsedMinutes: 23,
		CycleID:        "cycle-1",
	})

	assert.Equal(t, model.StageOff, s.Stage())
	assert.Equal(t, model.WashHeavy, s.Mode())
	assert.False(t, drum.anyOn())

	lost := rec.OfType(events.TypePowerLossDetected)
	require.Len(t, lost, 1)
	assert.Equal(t, "rinse_agitating", lost[0].From)
	assert.Equal(t, "cycle-1", lost[0].CycleID)
	assert.Equal(t, CyclePowerLoss, store.finished["cycle-1"])
	assert.Equal(t, Record{Mode: model.WashHeavy, Stage: model.StageOff}, store.last())

	// Nothing resumes on the next tick.
	s.Evaluate(sec, true)
	assert.Equal(t, model.StageOff, s.Stage())
}

func TestRestoreIdleRecord(t *testing.T) {
	s, _, store, rec := newTestSequencer(t, testConfig())
	s.Restore(Record{Mode: model.WashQuick, Stage: model.StageOff})

	assert.Equal(t, model.WashQuick, s.Mode())
	assert.Empty(t, rec.Events())
	assert.Empty(t, store.saved)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Modes = nil
	assert.ErrorIs(t, cfg.Validate(), ErrEmptyModeTable)

	cfg = testConfig()
	cfg.DefaultMode = model.WashDelicate
	assert.ErrorIs(t, cfg.Validate(), model.ErrUnknownMode)

	cfg = testConfig()
	cfg.AgitateReversal = cfg.InrushDelay
	assert.ErrorIs(t, cfg.Validate(), ErrReversalTooShort)

	cfg.AgitateReversal = cfg.InrushDelay + time.Millisecond
	assert.NoError(t, cfg.Validate())

	cfg.AgitateReversal = 0
	assert.NoError(t, cfg.Validate())
}
