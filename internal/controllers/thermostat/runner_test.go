package thermostat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

type fakeSensor struct {
	temp float64
	err  error
}

func (f *fakeSensor) ReadCelsius() (float64, error) {
	return f.temp, f.err
}

type fakeDwellStore struct {
	saved []bool
}

func (f *fakeDwellStore) SaveRecentDwell(recent bool) error {
	f.saved = append(f.saved, recent)
	return nil
}

func TestRunnerTickPersistsDwellChanges(t *testing.T) {
	c, _, _ := newTestController(testConfig())
	clk := &clock.Manual{}
	store := &fakeDwellStore{}
	r := &Runner{Controller: c, Sensor: &fakeSensor{temp: 23}, Store: store, Clock: clk}

	r.Tick()
	c.Start(clk.Now(), model.ThermostatModeCool)
	clk.Advance(time.Second)
	r.Tick()
	r.Tick()
	clk.Advance(5 * time.Minute)
	r.Tick()

	assert.Equal(t, []bool{false, true, false}, store.saved)
}

func (f *fakeDwellStore) last() bool {
	return len(f.saved) > 0 && f.saved[len(f.saved)-1]
}

// Each boot restores what the previous one saved. A quick second restart must
// not lose the flag written before the first one.
func TestRunnerKeepsRecentDwellAcrossRestarts(t *testing.T) {
	cfg := testConfig()
	cfg.FirstCycleOverride = true
	store := &fakeDwellStore{}

	// First boot: the compressor starts, then power drops.
	c, _, _ := newTestController(cfg)
	clk := &clock.Manual{}
	r := &Runner{Controller: c, Sensor: &fakeSensor{temp: 26}, Store: store, Clock: clk}
	c.Restore(clk.Now(), store.last())
	c.Start(clk.Now(), model.ThermostatModeCool)
	clk.Advance(time.Second)
	assert.Equal(t, RuleActivate, r.Tick().Rule)
	assert.True(t, store.last())

	// Second boot ticks once before stopping again.
	c, _, _ = newTestController(cfg)
	clk = &clock.Manual{}
	r = &Runner{Controller: c, Sensor: &fakeSensor{temp: 26}, Store: store, Clock: clk}
	c.Restore(clk.Now(), store.last())
	clk.Advance(time.Second)
	r.Tick()
	assert.True(t, store.last())

	// Third boot must not bypass the dwell.
	c, relays, _ := newTestController(cfg)
	c.Restore(0, store.last())
	assert.False(t, c.Snapshot(0).OverrideArmed)
	c.Start(0, model.ThermostatModeCool)
	assert.Equal(t, RuleNone, c.Evaluate(1000, 26).Rule)
	assert.False(t, relays.compressor)
}

func TestRunnerClearsRestoredDwellAfterWindow(t *testing.T) {
	c, _, _ := newTestController(testConfig())
	clk := &clock.Manual{}
	store := &fakeDwellStore{}
	r := &Runner{Controller: c, Sensor: &fakeSensor{temp: 23}, Store: store, Clock: clk}

	c.Restore(clk.Now(), true)
	r.Tick()
	clk.Advance(4*time.Minute - time.Millisecond)
	r.Tick()
	clk.Advance(time.Millisecond)
	r.Tick()

	assert.Equal(t, []bool{true, false}, store.saved)
}

func TestRunnerTickTreatsReadErrorAsFault(t *testing.T) {
	c, relays, _ := newTestController(testConfig())
	clk := &clock.Manual{}
	sensor := &fakeSensor{temp: 25}
	r := &Runner{Controller: c, Sensor: sensor, Clock: clk}

	c.Start(0, model.ThermostatModeCool)
	clk.Advance(time.Minute)
	assert.Equal(t, RuleActivate, r.Tick().Rule)

	sensor.err = errors.New("crc check failed")
	res := r.Tick()
	assert.Equal(t, OutcomeSensorFault, res.Outcome)
	assert.False(t, relays.compressor)
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	c, _, _ := newTestController(testConfig())
	r := &Runner{Controller: c, Sensor: &fakeSensor{temp: 23}, Clock: clock.NewMonotonic(), Interval: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
