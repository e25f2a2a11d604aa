package gpio

import (
	"fmt"
	"sync"
)

// FakeLines is an in-memory Lines for tests and for running without hardware.
type FakeLines struct {
	mu     sync.Mutex
	values map[int]int
	writes int

	// ReadError and WriteError, if set, are returned by Value and SetValue.
	ReadError  error
	WriteError error
	Closed     bool
}

func NewFakeLines(initial map[int]int) *FakeLines {
	values := make(map[int]int, len(initial))
	for pin, v := range initial {
		values[pin] = v
	}
	return &FakeLines{values: values}
}

func (f *FakeLines) SetValue(pin int, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	f.values[pin] = value
	f.writes++
	return nil
}

func (f *FakeLines) Value(pin int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return 0, f.ReadError
	}
	v, ok := f.values[pin]
	if !ok {
		return 0, fmt.Errorf("line %d not requested", pin)
	}
	return v, nil
}

func (f *FakeLines) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakeLines) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// BootLevels returns a copy of the current values.
func (f *FakeLines) BootLevels() map[int]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]int, len(f.values))
	for pin, v := range f.values {
		out[pin] = v
	}
	return out
}
