package main

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/config"
	"github.com/thatsimonsguy/appliance-controller/internal/datadog"
	"github.com/thatsimonsguy/appliance-controller/internal/events"
	"github.com/thatsimonsguy/appliance-controller/internal/gpio"
	"github.com/thatsimonsguy/appliance-controller/internal/mqtt"
	"github.com/thatsimonsguy/appliance-controller/internal/notifications"
)

type hardware struct {
	chip   *gpio.Chip
	ac     gpio.AirConditioner
	washer gpio.Washer
	level  gpio.LevelSwitch

	thermostat bool
	washerOn   bool
}

func openHardware(cfg config.Config) (*hardware, error) {
	var outputs, inputs []gpio.Pin
	p := cfg.GPIO

	if cfg.Thermostat.Enabled {
		outputs = append(outputs, *p.Compressor, *p.Fan)
	}
	if cfg.Washer.Enabled {
		outputs = append(outputs, *p.InletValve, *p.MotorPower, *p.MotorReverse, *p.MotorSpin, *p.DrainPump)
		inputs = append(inputs, *p.LevelSwitch)
	}

	chip, err := gpio.OpenChip(p.Chip, outputs, inputs)
	if err != nil {
		return nil, err
	}

	hw := &hardware{chip: chip, thermostat: cfg.Thermostat.Enabled, washerOn: cfg.Washer.Enabled}
	if hw.thermostat {
		hw.ac = gpio.AirConditioner{
			Compressor: gpio.NewRelay("compressor", *p.Compressor, chip),
			Fan:        gpio.NewRelay("fan", *p.Fan, chip),
		}
	}
	if hw.washerOn {
		hw.washer = gpio.Washer{
			Valve:        gpio.NewRelay("inlet_valve", *p.InletValve, chip),
			MotorPower:   gpio.NewRelay("motor_power", *p.MotorPower, chip),
			MotorReverse: gpio.NewRelay("motor_reverse", *p.MotorReverse, chip),
			MotorSpin:    gpio.NewRelay("motor_spin", *p.MotorSpin, chip),
			Pump:         gpio.NewRelay("drain_pump", *p.DrainPump, chip),
		}
		hw.level = gpio.NewLevelSwitch(*p.LevelSwitch, chip)
	}
	return hw, nil
}

func (hw *hardware) relays() []gpio.Relay {
	var relays []gpio.Relay
	if hw.thermostat {
		relays = append(relays, hw.ac.Relays()...)
	}
	if hw.washerOn {
		relays = append(relays, hw.washer.Relays()...)
	}
	return relays
}

// sinkSet fans events out to the log, metrics, MQTT and push notifications.
// Slow sinks run behind events.Async.
type sinkSet struct {
	events.Multi
	async []*events.Async
	mqtt  mqtt.Publisher
}

func buildSinks(cfg config.Config) *sinkSet {
	s := &sinkSet{Multi: events.Multi{events.LogSink{}, datadog.EventSink{}}}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT)
		if err != nil {
			log.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("Failed to connect to MQTT broker, events will not be published")
		} else {
			s.mqtt = pub
			s.add(events.NewAsync("mqtt", mqtt.Sink{Publisher: pub}, 64))
		}
	}

	if cfg.NtfyTopic != "" {
		s.add(events.NewAsync("ntfy", notifications.NewEventSink(), 16))
	}
	return s
}

func (s *sinkSet) add(a *events.Async) {
	s.async = append(s.async, a)
	s.Multi = append(s.Multi, a)
}

// Close drains the async sinks and disconnects from the broker.
func (s *sinkSet) Close() {
	for _, a := range s.async {
		a.Close()
	}
	if s.mqtt != nil {
		if err := s.mqtt.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close MQTT connection")
		}
	}
}
