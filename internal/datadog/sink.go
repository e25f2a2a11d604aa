package datadog

import (
	"github.com/thatsimonsguy/appliance-controller/internal/events"
)

// EventSink counts controller events by source and type.
type EventSink struct{}

func (EventSink) Publish(e events.Event) {
	tags := []string{"source:" + string(e.Source), "type:" + string(e.Type)}
	if e.To != "" {
		tags = append(tags, "to:"+e.To)
	}
	Incr("controller.events", tags...)
}
