package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/appliance-controller/internal/events"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	prefix string
}

func NewRealPublisher(cfg Config) (*RealPublisher, error) {
	status := StatusTopic(cfg.TopicPrefix)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(status, "offline", 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
			c.Publish(status, 1, true, "online")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("Lost MQTT connection")
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{client: client, prefix: cfg.TopicPrefix}, nil
}

// Publish sends a controller event. Power loss, faults and aborts use QoS 1 so
// the broker acknowledges them.
func (p *RealPublisher) Publish(e events.Event) error {
	payload, err := FormatPayload(e)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	qos := byte(0)
	switch e.Type {
	case events.TypePowerLossDetected, events.TypeSensorFault, events.TypeCycleAborted:
		qos = 1
	}

	token := p.client.Publish(EventTopic(p.prefix, e.Source), qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close marks the controller offline and disconnects.
func (p *RealPublisher) Close() error {
	token := p.client.Publish(StatusTopic(p.prefix), 1, true, "offline")
	token.WaitTimeout(time.Second)
	p.client.Disconnect(1000)
	return nil
}
