package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ashharzawarsyed/alertx-sub004/internal/common/mqtt"
	"github.com/ashharzawarsyed/alertx-sub004/internal/events"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	subscribeErr error
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeSubscriber) QoS() byte { return 1 }

func (f *fakeSubscriber) handler(topic string) mqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

type recordingPositions struct {
	mu    sync.Mutex
	fixes []events.PositionFix
}

func (r *recordingPositions) HandlePositionFix(_ context.Context, fix *events.PositionFix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixes = append(r.fixes, *fix)
	return nil
}

func TestPositionConsumer_DeliversFixes(t *testing.T) {
	cfg := testConfig()
	sub := &fakeSubscriber{}
	positions := &recordingPositions{}
	c := NewPositionConsumer(cfg, sub, positions, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		return sub.handler(cfg.Topics.Positions) != nil
	}, time.Second, 5*time.Millisecond)
	h := sub.handler(cfg.Topics.Positions)

	require.NoError(t, h("alertx/transport/t-9/position",
		[]byte(`{"lat":21.02,"lng":105.85,"speed":40,"timestamp":"2026-05-04T08:00:00Z"}`)))
	require.NoError(t, h("alertx/transport/t-9/position",
		[]byte(`{"transport_id":"t-9","lat":21.03,"lng":105.86}`)))

	// a unit cannot report for another one
	err := h("alertx/transport/t-9/position", []byte(`{"transport_id":"t-3","lat":21.03,"lng":105.86}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names transport t-3")

	assert.Error(t, h("alertx/transport/t-9/position", []byte(`not json`)))
	assert.Error(t, h("alertx/position", []byte(`{"lat":1,"lng":2}`)))

	cancel()
	require.NoError(t, <-done)

	require.Len(t, positions.fixes, 2)
	assert.Equal(t, "t-9", positions.fixes[0].TransportID)
	require.NotNil(t, positions.fixes[0].Speed)
	assert.Equal(t, 40.0, *positions.fixes[0].Speed)
	assert.Equal(t, "t-9", positions.fixes[1].TransportID)
	assert.Equal(t, []string{cfg.Topics.Positions}, sub.unsubscribed)
}

func TestPositionConsumer_SubscribeFailure(t *testing.T) {
	sub := &fakeSubscriber{subscribeErr: errors.New("not connected")}
	c := NewPositionConsumer(testConfig(), sub, &recordingPositions{}, zap.NewNop())

	err := c.Start(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
}

func TestTransportFromTopic(t *testing.T) {
	tests := []struct {
		subscription string
		topic        string
		want         string
	}{
		{"alertx/transport/+/position", "alertx/transport/t-1/position", "t-1"},
		{"fleet/+/units/+/gps", "fleet/north/units/t-2/gps", "t-2"},
		{"alertx/transport/+/position", "alertx/transport/+/position", ""},
		{"alertx/transport/+/position", "alertx/position", ""},
		{"alertx/positions", "alertx/positions", ""},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, transportFromTopic(tt.subscription, tt.topic))
		})
	}
}

func TestPositionConsumer_SharedTopicUsesPayloadID(t *testing.T) {
	cfg := testConfig()
	cfg.Topics.Positions = "alertx/positions"
	positions := &recordingPositions{}
	c := NewPositionConsumer(cfg, &fakeSubscriber{}, positions, zap.NewNop())

	require.NoError(t, c.processMessage(context.Background(), "alertx/positions",
		[]byte(`{"transport_id":"t-4","lat":21.03,"lng":105.86}`)))
	assert.Error(t, c.processMessage(context.Background(), "alertx/positions", []byte(`{"lat":21.03,"lng":105.86}`)))

	require.Len(t, positions.fixes, 1)
	assert.Equal(t, "t-4", positions.fixes[0].TransportID)
}
