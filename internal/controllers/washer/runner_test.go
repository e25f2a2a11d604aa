package washer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/appliance-controller/internal/clock"
	"github.com/thatsimonsguy/appliance-controller/internal/model"
)

type fakeLevel struct {
	reached bool
	err     error
}

func (f *fakeLevel) WaterLevelReached() (bool, error) {
	return f.reached, f.err
}

func TestRunnerSkipsTickOnReadError(t *testing.T) {
	s, _, _, _ := newTestSequencer(t, testConfig())
	clk := &clock.Manual{}
	level := &fakeLevel{reached: true}
	r := &Runner{Sequencer: s, Level: level, Clock: clk}

	s.Start(clk.Now())
	clk.Advance(time.Second)
	r.Tick()

	level.err = errors.New("line request closed")
	clk.Advance(5 * time.Second)
	res := r.Tick()
	assert.Equal(t, OutcomeNoChange, res.Outcome)
	assert.Equal(t, model.StageWashFillingUp, s.Stage())

	level.err = nil
	res = r.Tick()
	assert.Equal(t, model.StageWashAgitating, res.To)
}
