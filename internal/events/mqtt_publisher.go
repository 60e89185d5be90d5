package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// mqttClient the subset of the common MQTT client used here
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	QoS() byte
}

// MQTTPublisher publishes to <prefix>/<type with dots as slashes>/<aggregate id>
type MQTTPublisher struct {
	client mqttClient
	prefix string
}

// NewMQTTPublisher creates a publisher under topic prefix
func NewMQTTPublisher(client mqttClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

// Topic for event
func (p *MQTTPublisher) Topic(event *Event) string {
	topic := p.prefix + "/" + strings.ReplaceAll(event.Type, ".", "/")
	if event.AggregateID != "" {
		topic += "/" + event.AggregateID
	}
	return topic
}

// Publish implements Publisher
func (p *MQTTPublisher) Publish(_ context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.Publish(p.Topic(event), p.client.QoS(), false, payload)
}
