package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	id, err := PublishToStream(ctx, client, "test:stream", map[string]interface{}{
		"name":  "unit-7",
		"count": 3,
		"speed": 42.5,
		"ok":    true,
		"path":  []float64{1, 2},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := client.XRange(ctx, "test:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "unit-7", entries[0].Values["name"])
	assert.Equal(t, "3", entries[0].Values["count"])
	assert.Equal(t, "42.5", entries[0].Values["speed"])
	assert.Equal(t, "true", entries[0].Values["ok"])
	assert.Equal(t, "[1,2]", entries[0].Values["path"])
}

func TestConsumerGroup_ReadAndAck(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "dispatch:commands", "core"))
	// existing group is tolerated
	require.NoError(t, CreateConsumerGroup(ctx, client, "dispatch:commands", "core"))

	_, err := PublishJSONToStream(ctx, client, "dispatch:commands", "emergency.cancel_requested",
		map[string]string{"emergency_id": "e-1", "reason": "duplicate call"})
	require.NoError(t, err)

	messages, err := ReadFromStream(ctx, client, "dispatch:commands", "core", "worker-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "emergency.cancel_requested", messages[0].Values["type"])

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["data"].(string)), &payload))
	assert.Equal(t, "e-1", payload["emergency_id"])

	require.NoError(t, AckMessage(ctx, client, "dispatch:commands", "core", messages[0].ID))

	pending, err := client.XPending(ctx, "dispatch:commands", "core").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}
