package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashharzawarsyed/alertx-sub004/internal/common/config"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// natsConn the subset of *nats.Conn used here
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes to <prefix>.<type>
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSConn connects with reconnect handlers that log
func NewNATSConn(cfg *config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewNATSPublisher creates a publisher under subject prefix
func NewNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
	}
}

// Subject for event
func (p *NATSPublisher) Subject(event *Event) string {
	if p.prefix == "" {
		return event.Type
	}
	return p.prefix + "." + event.Type
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(_ context.Context, event *Event) error {
	if p.conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(p.Subject(event), payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}
