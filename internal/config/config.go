package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/common/config"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Inbound transports
const (
	InboundStream = "stream"
	InboundMQTT   = "mqtt"
)

// Publisher transports
const (
	PublisherStream = "stream"
	PublisherMQTT   = "mqtt"
	PublisherNATS   = "nats"
	PublisherBroker = "broker"
	// PublisherLog appends every event to the PostgreSQL event log
	PublisherLog = "eventlog"
)

// Config dispatch service configuration
type Config struct {
	ServiceName string

	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	NATS     config.NATSConfig

	Dispatch struct {
		EmergencyStore string   // memory | postgres
		BedStore       string   // memory | redis | postgres
		BedCategories  []string // validated bed category set
		SeedFile       string   // optional JSON of facilities and transport units seeded at startup

		StuckThreshold     time.Duration // accepted / in_progress age that flags a case
		StuckCheckInterval time.Duration
	}

	Route struct {
		LookBack        int
		LookAhead       int
		AverageSpeedKmh float64
		MinLiveSpeedKmh float64
		// segments of the straight-line path used when a leg starts without one
		FallbackSegments int
	}

	Streams struct {
		Commands  string // inbound command stream
		Group     string
		Consumer  string
		Events    string // outbound event stream
		BatchSize int64
		Block     time.Duration
	}

	Topics struct {
		Positions   string // MQTT subscription for position fixes
		EventPrefix string // MQTT topic prefix for outbound events
		NATSPrefix  string // NATS subject prefix for outbound events
	}

	Publishers []string
	Inbound    []string

	Cache struct {
		KeyPrefix   string
		ProgressTTL time.Duration
		PositionTTL time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the environment; defaults suit a single local process
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServiceName = getEnv("SERVICE_NAME", "alertx-dispatch")

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "alertx",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "alertx-dispatch",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.NATS = config.NATSConfig{
		URL:            "nats://localhost:4222",
		Name:           "alertx-dispatch",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 5 * time.Second,
	}
	cfg.NATS.LoadFromEnv("NATS")

	cfg.Dispatch.EmergencyStore = getEnv("STORE_BACKEND", BackendMemory)
	cfg.Dispatch.BedStore = getEnv("BED_STORE", BackendMemory)
	cfg.Dispatch.BedCategories = getEnvList("BED_CATEGORIES", []string{"general", "icu", "emergency"})
	cfg.Dispatch.SeedFile = getEnv("SEED_FILE", "")
	cfg.Dispatch.StuckThreshold = getEnvDuration("STUCK_THRESHOLD", 45*time.Minute)
	cfg.Dispatch.StuckCheckInterval = getEnvDuration("STUCK_CHECK_INTERVAL", time.Minute)

	cfg.Route.LookBack = getEnvInt("ROUTE_LOOK_BACK", 2)
	cfg.Route.LookAhead = getEnvInt("ROUTE_LOOK_AHEAD", 25)
	cfg.Route.AverageSpeedKmh = getEnvFloat("ROUTE_AVERAGE_SPEED_KMH", 40)
	cfg.Route.MinLiveSpeedKmh = getEnvFloat("ROUTE_MIN_LIVE_SPEED_KMH", 5)
	cfg.Route.FallbackSegments = getEnvInt("ROUTE_FALLBACK_SEGMENTS", 20)

	cfg.Streams.Commands = getEnv("STREAM_COMMANDS", "alertx:commands")
	cfg.Streams.Group = getEnv("STREAM_GROUP", "dispatch")
	cfg.Streams.Consumer = getEnv("STREAM_CONSUMER", hostnameOr("dispatch-1"))
	cfg.Streams.Events = getEnv("STREAM_EVENTS", "alertx:events")
	cfg.Streams.BatchSize = int64(getEnvInt("STREAM_BATCH_SIZE", 10))
	cfg.Streams.Block = getEnvDuration("STREAM_BLOCK", 5*time.Second)

	cfg.Topics.Positions = getEnv("MQTT_POSITION_TOPIC", "alertx/transport/+/position")
	cfg.Topics.EventPrefix = getEnv("MQTT_EVENT_PREFIX", "alertx/events")
	cfg.Topics.NATSPrefix = getEnv("NATS_SUBJECT_PREFIX", "alertx")

	cfg.Publishers = getEnvList("PUBLISHERS", []string{PublisherBroker})
	cfg.Inbound = getEnvList("INBOUND", nil)

	cfg.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", "alertx:")
	cfg.Cache.ProgressTTL = getEnvDuration("CACHE_PROGRESS_TTL", 10*time.Minute)
	cfg.Cache.PositionTTL = getEnvDuration("CACHE_POSITION_TTL", 2*time.Minute)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and non-positive intervals
func (c *Config) Validate() error {
	switch c.Dispatch.EmergencyStore {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.Dispatch.EmergencyStore)
	}
	switch c.Dispatch.BedStore {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("invalid BED_STORE %q", c.Dispatch.BedStore)
	}
	for _, p := range c.Publishers {
		switch p {
		case PublisherStream, PublisherMQTT, PublisherNATS, PublisherBroker, PublisherLog:
		default:
			return fmt.Errorf("invalid publisher %q in PUBLISHERS", p)
		}
	}
	for _, in := range c.Inbound {
		switch in {
		case InboundStream, InboundMQTT:
		default:
			return fmt.Errorf("invalid transport %q in INBOUND", in)
		}
	}
	if len(c.Dispatch.BedCategories) == 0 {
		return fmt.Errorf("BED_CATEGORIES must not be empty")
	}
	if c.Dispatch.StuckThreshold <= 0 || c.Dispatch.StuckCheckInterval <= 0 {
		return fmt.Errorf("stuck threshold and check interval must be positive")
	}
	if c.Route.AverageSpeedKmh <= 0 {
		return fmt.Errorf("ROUTE_AVERAGE_SPEED_KMH must be positive")
	}
	return nil
}

// UsesRedis any configured component needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Dispatch.BedStore == BackendRedis || c.HasPublisher(PublisherStream) || c.HasInbound(InboundStream)
}

// UsesMQTT MQTT is needed for position fixes or event publishing
func (c *Config) UsesMQTT() bool {
	return c.HasPublisher(PublisherMQTT) || c.HasInbound(InboundMQTT)
}

// UsesPostgres any configured component needs a database
func (c *Config) UsesPostgres() bool {
	return c.Dispatch.EmergencyStore == BackendPostgres || c.Dispatch.BedStore == BackendPostgres || c.HasPublisher(PublisherLog)
}

// HasPublisher reports whether name is in Publishers
func (c *Config) HasPublisher(name string) bool {
	for _, p := range c.Publishers {
		if p == name {
			return true
		}
	}
	return false
}

// HasInbound reports whether name is in Inbound
func (c *Config) HasInbound(name string) bool {
	for _, in := range c.Inbound {
		if in == name {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
