package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/common/redis"
	"github.com/ashharzawarsyed/alertx-sub004/internal/config"

	"go.uber.org/zap"
)

// CommandHandler handles one inbound message by type
type CommandHandler interface {
	HandleMessage(ctx context.Context, msgType string, data []byte) error
}

// CommandConsumer reads commands (and position fixes) from a Redis Stream
// consumer group. Every message is acknowledged once handled, failed or not;
// the handler reports failures as command_rejected events.
type CommandConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	handler     CommandHandler
	logger      *zap.Logger
}

// NewCommandConsumer creates the stream consumer
func NewCommandConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	handler CommandHandler,
	logger *zap.Logger,
) *CommandConsumer {
	return &CommandConsumer{
		config:      cfg,
		redisClient: redisClient,
		handler:     handler,
		logger:      logger,
	}
}

// Start consumes until ctx is cancelled
func (c *CommandConsumer) Start(ctx context.Context) error {
	stream := c.config.Streams.Commands
	group := c.config.Streams.Group
	consumerName := c.config.Streams.Consumer

	if err := redis.CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Command consumer started",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", consumerName),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Command consumer stopped")
			return nil
		default:
		}

		messages, err := redis.ReadFromStream(ctx, c.redisClient, stream, group, consumerName,
			c.config.Streams.BatchSize, c.config.Streams.Block)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Command consumer stopped")
				return nil
			}
			c.logger.Error("Failed to read from stream",
				zap.String("stream", stream),
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}

		backoffDuration = time.Second

		for _, msg := range messages {
			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("Failed to process message",
					zap.String("stream", stream),
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}

			if err := redis.AckMessage(ctx, c.redisClient, stream, group, msg.ID); err != nil {
				c.logger.Error("Failed to ack message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *CommandConsumer) processMessage(ctx context.Context, msg redis.StreamMessage) error {
	msgType, ok := msg.Values["type"].(string)
	if !ok || msgType == "" {
		return fmt.Errorf("message %s has no type field", msg.ID)
	}
	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("message %s has no data field", msg.ID)
	}

	c.logger.Debug("Processing message",
		zap.String("message_id", msg.ID),
		zap.String("type", msgType),
	)

	if err := c.handler.HandleMessage(ctx, msgType, []byte(data)); err != nil {
		return fmt.Errorf("failed to handle %s: %w", msgType, err)
	}
	return nil
}
