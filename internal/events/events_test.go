package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiPublishesToEverySink(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b}

	m.Publish(Event{Type: TypeCycleEnded, Source: SourceWasher})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestAsyncDeliversInOrder(t *testing.T) {
	rec := &Recorder{}
	async := NewAsync("test", rec, 8)

	async.Publish(Event{Type: TypeStateChanged, To: "a"})
	async.Publish(Event{Type: TypeStateChanged, To: "b"})
	async.Close()

	got := rec.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].To)
	assert.Equal(t, "b", got[1].To)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	rec := &Recorder{}
	blocking := SinkFunc(func(e Event) {
		<-release
		rec.Publish(e)
	})
	async := NewAsync("blocking", blocking, 1)

	async.Publish(Event{To: "first"})
	// wait until the worker has taken the first event off the queue
	require.Eventually(t, func() bool { return len(async.queue) == 0 }, time.Second, time.Millisecond)
	async.Publish(Event{To: "second"})
	async.Publish(Event{To: "dropped"})

	close(release)
	async.Close()

	got := rec.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].To)
	assert.Equal(t, "second", got[1].To)
}

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	rec.Publish(Event{Type: TypeSensorFault})
	rec.Publish(Event{Type: TypeStateChanged})
	rec.Publish(Event{Type: TypeSensorFault})

	assert.Len(t, rec.OfType(TypeSensorFault), 2)
	rec.Reset()
	assert.Empty(t, rec.Events())
}
