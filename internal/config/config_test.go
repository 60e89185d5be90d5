package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "alertx-dispatch", cfg.ServiceName)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "alertx", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)

	assert.Equal(t, BackendMemory, cfg.Dispatch.EmergencyStore)
	assert.Equal(t, BackendMemory, cfg.Dispatch.BedStore)
	assert.Equal(t, []string{"general", "icu", "emergency"}, cfg.Dispatch.BedCategories)
	assert.Equal(t, 45*time.Minute, cfg.Dispatch.StuckThreshold)
	assert.Equal(t, time.Minute, cfg.Dispatch.StuckCheckInterval)

	assert.Equal(t, 2, cfg.Route.LookBack)
	assert.Equal(t, 25, cfg.Route.LookAhead)
	assert.Equal(t, 40.0, cfg.Route.AverageSpeedKmh)
	assert.Equal(t, 5.0, cfg.Route.MinLiveSpeedKmh)

	assert.Equal(t, "alertx:commands", cfg.Streams.Commands)
	assert.Equal(t, int64(10), cfg.Streams.BatchSize)
	assert.Equal(t, []string{PublisherBroker}, cfg.Publishers)
	assert.Empty(t, cfg.Inbound)

	assert.False(t, cfg.UsesRedis())
	assert.False(t, cfg.UsesPostgres())
	assert.False(t, cfg.UsesMQTT())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "test-db")
	t.Setenv("REDIS_ADDR", "test-redis:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MQTT_QOS", "0")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("BED_STORE", "redis")
	t.Setenv("BED_CATEGORIES", "general, icu ,maternity")
	t.Setenv("STUCK_THRESHOLD", "20m")
	t.Setenv("ROUTE_AVERAGE_SPEED_KMH", "55.5")
	t.Setenv("ROUTE_LOOK_AHEAD", "40")
	t.Setenv("PUBLISHERS", "stream,nats")
	t.Setenv("INBOUND", "stream,mqtt")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)

	assert.Equal(t, BackendPostgres, cfg.Dispatch.EmergencyStore)
	assert.Equal(t, BackendRedis, cfg.Dispatch.BedStore)
	assert.Equal(t, []string{"general", "icu", "maternity"}, cfg.Dispatch.BedCategories)
	assert.Equal(t, 20*time.Minute, cfg.Dispatch.StuckThreshold)
	assert.Equal(t, 55.5, cfg.Route.AverageSpeedKmh)
	assert.Equal(t, 40, cfg.Route.LookAhead)

	assert.True(t, cfg.HasPublisher(PublisherNATS))
	assert.False(t, cfg.HasPublisher(PublisherMQTT))
	assert.True(t, cfg.UsesRedis())
	assert.True(t, cfg.UsesPostgres())
	assert.True(t, cfg.UsesMQTT())

	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestUsesPostgres_EventLogPublisher(t *testing.T) {
	cfg := &Config{}
	cfg.Dispatch.EmergencyStore = BackendMemory
	cfg.Dispatch.BedStore = BackendMemory
	assert.False(t, cfg.UsesPostgres())

	cfg.Publishers = []string{PublisherBroker, PublisherLog}
	assert.True(t, cfg.UsesPostgres())
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"store backend", "STORE_BACKEND", "mongo"},
		{"bed store", "BED_STORE", "sqlite"},
		{"publisher", "PUBLISHERS", "stream,pigeon"},
		{"inbound", "INBOUND", "carrier"},
		{"stuck threshold", "STUCK_THRESHOLD", "-1m"},
		{"average speed", "ROUTE_AVERAGE_SPEED_KMH", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("ROUTE_LOOK_BACK", "many")
	t.Setenv("STUCK_CHECK_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Route.LookBack)
	assert.Equal(t, time.Minute, cfg.Dispatch.StuckCheckInterval)
}

func TestGetEnv(t *testing.T) {
	assert.Equal(t, "default-value", getEnv("ALERTX_TEST_KEY", "default-value"))

	t.Setenv("ALERTX_TEST_KEY", "env-value")
	assert.Equal(t, "env-value", getEnv("ALERTX_TEST_KEY", "default-value"))
}

func TestGetEnvList(t *testing.T) {
	assert.Equal(t, []string{"a"}, getEnvList("ALERTX_TEST_LIST", []string{"a"}))

	t.Setenv("ALERTX_TEST_LIST", " x , ,y,")
	assert.Equal(t, []string{"x", "y"}, getEnvList("ALERTX_TEST_LIST", nil))
}
