// Package mqtt publishes controller events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/events"
)

type Config struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// Publisher sends controller events to a broker.
type Publisher interface {
	// Publish returns an error if the event could not be delivered; callers log
	// it and carry on.
	Publish(e events.Event) error
	Close() error
}

// EventTopic returns the topic events from source are published on.
func EventTopic(prefix string, source events.Source) string {
	return fmt.Sprintf("%s/%s/events", prefix, source)
}

// StatusTopic carries the retained online/offline status of the controller.
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

type Payload struct {
	Timestamp   string   `json:"timestamp"`
	Source      string   `json:"source"`
	Event       string   `json:"event"`
	From        string   `json:"from,omitempty"`
	To          string   `json:"to,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	RinseCount  uint8    `json:"rinse_count,omitempty"`
	CycleID     string   `json:"cycle_id,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func FormatPayload(e events.Event) ([]byte, error) {
	return json.Marshal(Payload{
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
		Source:      string(e.Source),
		Event:       string(e.Type),
		From:        e.From,
		To:          e.To,
		Reason:      e.Reason,
		Mode:        e.Mode,
		RinseCount:  e.RinseCount,
		CycleID:     e.CycleID,
		Temperature: e.Temperature,
	})
}

// Sink adapts a Publisher to events.Sink. Publishing blocks on the broker, so
// wrap it in events.Async before handing it to a controller.
type Sink struct {
	Publisher Publisher
}

func (s Sink) Publish(e events.Event) {
	if err := s.Publisher.Publish(e); err != nil {
		log.Warn().
			Err(err).
			Str("source", string(e.Source)).
			Str("event", string(e.Type)).
			Msg("Failed to publish event to MQTT")
	}
}
