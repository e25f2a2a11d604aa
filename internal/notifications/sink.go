package notifications

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/events"
)

// EventSink pushes the events a person should act on. State changes are not
// pushed. Send blocks on HTTP, so wrap the sink in events.Async.
type EventSink struct {
	Send func(title, message string) error
}

func NewEventSink() EventSink {
	return EventSink{Send: Send}
}

func (s EventSink) Publish(e events.Event) {
	title, message, ok := Describe(e)
	if !ok {
		return
	}
	if err := s.Send(title, message); err != nil {
		log.Error().Err(err).Str("event", string(e.Type)).Msg("Failed to send notification")
	}
}

// Describe returns the notification text for e, or false if e is not pushed.
func Describe(e events.Event) (string, string, bool) {
	switch e.Type {
	case events.TypeCycleEnded:
		return "Wash Finished", fmt.Sprintf("%s cycle finished after %d rinse(s)", e.Mode, e.RinseCount), true
	case events.TypeCycleAborted:
		return "Wash Aborted", fmt.Sprintf("%s cycle aborted: %s", e.Mode, e.Reason), true
	case events.TypePowerLossDetected:
		return "Power Loss", fmt.Sprintf("%s cycle interrupted during %s and was not resumed", e.Mode, e.From), true
	case events.TypeSensorFault:
		msg := "Temperature sensor fault, compressor held off"
		if e.Temperature != nil {
			msg = fmt.Sprintf("%s (read %.1f°C)", msg, *e.Temperature)
		}
		return "Thermostat Sensor Fault", msg, true
	default:
		return "", "", false
	}
}
