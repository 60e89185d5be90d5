package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashharzawarsyed/alertx-sub004/internal/common/mqtt"
	"github.com/ashharzawarsyed/alertx-sub004/internal/config"
	"github.com/ashharzawarsyed/alertx-sub004/internal/events"

	"go.uber.org/zap"
)

// PositionHandler applies one position fix
type PositionHandler interface {
	HandlePositionFix(ctx context.Context, fix *events.PositionFix) error
}

// MQTTSubscriber subset of the MQTT client used here
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	QoS() byte
}

// PositionConsumer receives driver position fixes over MQTT. The "+" segment
// of the subscription names the transport; a payload naming another unit
// is rejected so one unit cannot move another.
type PositionConsumer struct {
	config  *config.Config
	client  MQTTSubscriber
	handler PositionHandler
	logger  *zap.Logger
}

// NewPositionConsumer creates the MQTT consumer
func NewPositionConsumer(
	cfg *config.Config,
	client MQTTSubscriber,
	handler PositionHandler,
	logger *zap.Logger,
) *PositionConsumer {
	return &PositionConsumer{
		config:  cfg,
		client:  client,
		handler: handler,
		logger:  logger,
	}
}

// Start subscribes and blocks until ctx is cancelled
func (c *PositionConsumer) Start(ctx context.Context) error {
	topic := c.config.Topics.Positions

	err := c.client.Subscribe(topic, c.client.QoS(), func(msgTopic string, payload []byte) error {
		return c.processMessage(ctx, msgTopic, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to positions: %w", err)
	}

	c.logger.Info("Position consumer started", zap.String("topic", topic))

	<-ctx.Done()

	if err := c.client.Unsubscribe(topic); err != nil {
		c.logger.Warn("Failed to unsubscribe from positions", zap.Error(err))
	}
	c.logger.Info("Position consumer stopped")
	return nil
}

func (c *PositionConsumer) processMessage(ctx context.Context, topic string, payload []byte) error {
	var fix events.PositionFix
	if err := json.Unmarshal(payload, &fix); err != nil {
		return fmt.Errorf("failed to decode position fix: %w", err)
	}

	if fromTopic := transportFromTopic(c.config.Topics.Positions, topic); fromTopic != "" {
		if fix.TransportID != "" && fix.TransportID != fromTopic {
			return fmt.Errorf("position fix on %s names transport %s", topic, fix.TransportID)
		}
		fix.TransportID = fromTopic
	}
	if fix.TransportID == "" {
		return fmt.Errorf("position fix on %s has no transport_id", topic)
	}

	return c.handler.HandlePositionFix(ctx, &fix)
}

// transportFromTopic segment of topic under the last "+" of the subscription
func transportFromTopic(subscription, topic string) string {
	pattern := strings.Split(subscription, "/")
	parts := strings.Split(topic, "/")
	if len(pattern) != len(parts) {
		return ""
	}
	for i := len(pattern) - 1; i >= 0; i-- {
		if pattern[i] != "+" {
			continue
		}
		id := parts[i]
		if id == "+" || id == "#" {
			return ""
		}
		return id
	}
	return ""
}
