// Package events carries controller notifications (state changes, cycle ends,
// power loss) to whatever collaborators want them: logs, MQTT, metrics, push.
package events

import (
	"time"

	"github.com/rs/zerolog/log"
)

type Type string

const (
	TypeStateChanged      Type = "STATE_CHANGED"
	TypeCycleEnded        Type = "CYCLE_ENDED"
	TypeCycleAborted      Type = "CYCLE_ABORTED"
	TypePowerLossDetected Type = "POWER_LOSS_DETECTED"
	TypeSensorFault       Type = "SENSOR_FAULT"
)

type Source string

const (
	SourceThermostat Source = "thermostat"
	SourceWasher     Source = "washer"
)

// Event is a single notification. From/To are state or stage names; the other
// fields are filled when they apply to the source.
type Event struct {
	Timestamp   time.Time
	Source      Source
	Type        Type
	From        string
	To          string
	Reason      string
	Mode        string
	RinseCount  uint8
	CycleID     string
	Temperature *float64
}

// Sink receives events. Publish is called from the controller's evaluator and
// must not block for long; wrap slow sinks in Async.
type Sink interface {
	Publish(e Event)
}

type SinkFunc func(e Event)

func (f SinkFunc) Publish(e Event) {
	f(e)
}

// Multi publishes every event to each sink in order.
type Multi []Sink

func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// LogSink writes events to the global zerolog logger.
type LogSink struct{}

func (LogSink) Publish(e Event) {
	entry := log.Info()
	switch e.Type {
	case TypeSensorFault, TypeCycleAborted, TypePowerLossDetected:
		entry = log.Warn()
	}
	entry = entry.
		Str("source", string(e.Source)).
		Str("event", string(e.Type))
	if e.From != "" || e.To != "" {
		entry = entry.Str("from", e.From).Str("to", e.To)
	}
	if e.Reason != "" {
		entry = entry.Str("reason", e.Reason)
	}
	if e.Mode != "" {
		entry = entry.Str("mode", e.Mode)
	}
	if e.CycleID != "" {
		entry = entry.Str("cycle_id", e.CycleID)
	}
	if e.Temperature != nil {
		entry = entry.Float64("temp", *e.Temperature)
	}
	entry.Msg("Controller event")
}
