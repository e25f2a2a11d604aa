package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/appliance-controller/internal/events"
)

func TestFormatPayload(t *testing.T) {
	temp := 24.9
	e := events.Event{
		Timestamp:   time.Date(2026, 7, 1, 14, 30, 0, 0, time.FixedZone("CEST", 7200)),
		Source:      events.SourceThermostat,
		Type:        events.TypeStateChanged,
		From:        "cooling_active",
		To:          "cooling_idle",
		Reason:      "plateau",
		Temperature: &temp,
	}

	raw, err := FormatPayload(e)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "2026-07-01T12:30:00Z", got["timestamp"])
	assert.Equal(t, "thermostat", got["source"])
	assert.Equal(t, "STATE_CHANGED", got["event"])
	assert.Equal(t, "plateau", got["reason"])
	assert.Equal(t, 24.9, got["temperature"])
	assert.NotContains(t, got, "cycle_id")
	assert.NotContains(t, got, "rinse_count")
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "home/laundry/washer/events", EventTopic("home/laundry", events.SourceWasher))
	assert.Equal(t, "home/laundry/status", StatusTopic("home/laundry"))
}

func TestSinkForwardsEvents(t *testing.T) {
	fake := NewFakePublisher()
	sink := Sink{Publisher: fake}

	sink.Publish(events.Event{Source: events.SourceWasher, Type: events.TypeCycleEnded, CycleID: "c1"})
	require.Equal(t, 1, fake.Count())
	assert.Contains(t, string(fake.Payloads[0]), `"cycle_id":"c1"`)

	fake.PublishError = errors.New("not connected")
	assert.NotPanics(t, func() {
		sink.Publish(events.Event{Source: events.SourceWasher, Type: events.TypeCycleEnded})
	})
	assert.Equal(t, 1, fake.Count())
}
