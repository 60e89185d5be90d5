package events

import (
	"context"
	"fmt"

	rediscommon "github.com/ashharzawarsyed/alertx-sub004/internal/common/redis"
)

// StreamPublisher appends events to a Redis Stream (fields type, data, timestamp)
type StreamPublisher struct {
	client *rediscommon.Client
	stream string
}

// NewStreamPublisher creates a publisher on stream
func NewStreamPublisher(client *rediscommon.Client, stream string) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
	}
}

// Publish implements Publisher
func (p *StreamPublisher) Publish(ctx context.Context, event *Event) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, event.Type, event); err != nil {
		return fmt.Errorf("failed to publish %s to stream %s: %w", event.Type, p.stream, err)
	}
	return nil
}
