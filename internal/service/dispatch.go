package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ashharzawarsyed/alertx-sub004/internal/common/database"
	mqttcommon "github.com/ashharzawarsyed/alertx-sub004/internal/common/mqtt"
	rediscommon "github.com/ashharzawarsyed/alertx-sub004/internal/common/redis"
	"github.com/ashharzawarsyed/alertx-sub004/internal/config"
	"github.com/ashharzawarsyed/alertx-sub004/internal/consumer"
	"github.com/ashharzawarsyed/alertx-sub004/internal/dispatch"
	"github.com/ashharzawarsyed/alertx-sub004/internal/events"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
	"github.com/ashharzawarsyed/alertx-sub004/internal/repository"
	"github.com/ashharzawarsyed/alertx-sub004/internal/reservation"
	"github.com/ashharzawarsyed/alertx-sub004/internal/tracking"
	"github.com/ashharzawarsyed/alertx-sub004/internal/triage"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// transportRepository both transport backends
type transportRepository interface {
	TransportStore
	Upsert(ctx context.Context, unit *models.TransportUnit) error
	SetStatus(ctx context.Context, transportID string, status models.TransportStatus) error
}

// emergencyRepository both emergency backends
type emergencyRepository interface {
	dispatch.Store
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]*models.Emergency, error)
}

// SeedData startup facilities and transport units
type SeedData struct {
	Facilities []models.Facility      `json:"facilities"`
	Transports []models.TransportUnit `json:"transports"`
}

// DispatchService wires stores, the state machine, route tracking,
// publishers and inbound consumers
type DispatchService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	natsConn    *nats.Conn
	logger      *zap.Logger

	broker       *events.Broker
	emergencies  emergencyRepository
	transports   transportRepository
	reservations *reservation.Manager
	machine      *dispatch.Machine
	routes       *tracking.Registry
	handler      *EventHandler
	cacheManager *consumer.CacheManager
	eventLog     *repository.EventLogRepository

	commandConsumer  *consumer.CommandConsumer
	positionConsumer *consumer.PositionConsumer
	stuckDetector    *consumer.StuckDetector
}

// NewDispatchService connects what the config needs and builds every layer
func NewDispatchService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DispatchService, error) {
	s := &DispatchService{
		config: cfg,
		logger: logger,
		broker: events.NewBroker(),
	}

	if err := s.connect(ctx); err != nil {
		s.Stop()
		return nil, err
	}
	if err := s.build(); err != nil {
		s.Stop()
		return nil, err
	}
	if cfg.Dispatch.SeedFile != "" {
		seed, err := LoadSeedFile(cfg.Dispatch.SeedFile)
		if err != nil {
			s.Stop()
			return nil, err
		}
		if err := s.Seed(ctx, seed); err != nil {
			s.Stop()
			return nil, err
		}
	}

	return s, nil
}

// connect opens only the connections the config needs
func (s *DispatchService) connect(ctx context.Context) error {
	cfg := s.config

	if cfg.UsesPostgres() {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		s.db = db
		s.logger.Info("Connected to PostgreSQL", zap.String("host", cfg.Database.Host))
	}

	if cfg.UsesRedis() {
		client := rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, client); err != nil {
			client.Close()
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		s.redisClient = client
		s.logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.UsesMQTT() {
		client, err := mqttcommon.NewClient(&cfg.MQTT, s.logger)
		if err != nil {
			return err
		}
		s.mqttClient = client
		s.logger.Info("Connected to MQTT", zap.String("broker", cfg.MQTT.Broker))
	}

	if cfg.HasPublisher(config.PublisherNATS) {
		conn, err := events.NewNATSConn(&cfg.NATS, s.logger)
		if err != nil {
			return err
		}
		s.natsConn = conn
		s.logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
	}

	return nil
}

func (s *DispatchService) build() error {
	cfg := s.config

	// 1. Repository layer
	if cfg.Dispatch.EmergencyStore == config.BackendPostgres {
		s.emergencies = repository.NewEmergencyRepository(s.db, s.logger)
		s.transports = repository.NewTransportRepository(s.db, s.logger)
	} else {
		s.emergencies = repository.NewMemoryEmergencyStore()
		s.transports = repository.NewMemoryTransportStore()
	}

	var beds reservation.BedStore
	switch cfg.Dispatch.BedStore {
	case config.BackendRedis:
		beds = reservation.NewRedisStore(s.redisClient)
	case config.BackendPostgres:
		beds = reservation.NewPostgresStore(s.db, s.logger)
	default:
		beds = reservation.NewMemoryStore()
	}
	s.reservations = reservation.NewManager(beds, cfg.Dispatch.BedCategories, s.logger)

	// 2. Outbound
	publisher := s.buildPublisher()

	// 3. Core
	s.machine = dispatch.NewMachine(
		dispatch.Config{StuckThreshold: cfg.Dispatch.StuckThreshold},
		s.emergencies,
		s.reservations,
		triage.NewScorer(nil),
		s.transports,
		publisher,
		s.logger,
	)
	s.routes = tracking.NewRegistry(tracking.Config{
		LookBack:        cfg.Route.LookBack,
		LookAhead:       cfg.Route.LookAhead,
		AverageSpeedKmh: cfg.Route.AverageSpeedKmh,
		MinLiveSpeedKmh: cfg.Route.MinLiveSpeedKmh,
	})

	var cache ProgressCache
	if s.redisClient != nil {
		s.cacheManager = consumer.NewCacheManager(cfg, s.redisClient, s.logger)
		cache = s.cacheManager
	}
	s.handler = NewEventHandler(s.machine, s.routes, s.transports, cache, publisher, cfg.Route.FallbackSegments, s.logger)

	// 4. Consumer layer
	s.stuckDetector = consumer.NewStuckDetector(cfg, s.machine, publisher, s.logger)
	if cfg.HasInbound(config.InboundStream) {
		s.commandConsumer = consumer.NewCommandConsumer(cfg, s.redisClient, s.handler, s.logger)
	}
	if cfg.HasInbound(config.InboundMQTT) {
		s.positionConsumer = consumer.NewPositionConsumer(cfg, s.mqttClient, s.handler, s.logger)
	}

	return nil
}

func (s *DispatchService) buildPublisher() events.Publisher {
	var publishers events.Multi
	for _, name := range s.config.Publishers {
		switch name {
		case config.PublisherStream:
			publishers = append(publishers, events.NewStreamPublisher(s.redisClient, s.config.Streams.Events))
		case config.PublisherMQTT:
			publishers = append(publishers, events.NewMQTTPublisher(s.mqttClient, s.config.Topics.EventPrefix))
		case config.PublisherNATS:
			publishers = append(publishers, events.NewNATSPublisher(s.natsConn, s.config.Topics.NATSPrefix))
		case config.PublisherBroker:
			publishers = append(publishers, s.broker)
		case config.PublisherLog:
			s.eventLog = repository.NewEventLogRepository(s.db, s.logger)
			publishers = append(publishers, s.eventLog)
		}
	}
	s.logger.Info("Event publishers configured", zap.Strings("publishers", s.config.Publishers))
	return publishers
}

// LoadSeedFile reads a SeedData JSON file
func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed SeedData
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Seed sets facility capacity and registers transport units. Capacity in
// the seed overwrites whatever the bed store holds.
func (s *DispatchService) Seed(ctx context.Context, seed *SeedData) error {
	for _, facility := range seed.Facilities {
		if err := s.reservations.Seed(ctx, facility); err != nil {
			return fmt.Errorf("failed to seed facility %s: %w", facility.ID, err)
		}
		s.handler.RegisterFacility(facility)
	}

	for i := range seed.Transports {
		unit := seed.Transports[i]
		if unit.Status == "" {
			// a unit already on a case stays busy across restarts
			unit.Status = models.TransportAvailable
			if existing, err := s.transports.Get(ctx, unit.ID); err == nil {
				unit.Status = existing.Status
			}
		}
		if err := s.transports.Upsert(ctx, &unit); err != nil {
			return fmt.Errorf("failed to seed transport %s: %w", unit.ID, err)
		}
		if unit.Position != nil {
			if _, err := s.transports.UpdatePosition(ctx, unit.ID, *unit.Position); err != nil {
				return fmt.Errorf("failed to seed transport position %s: %w", unit.ID, err)
			}
		}
	}

	s.logger.Info("Seeded dispatch data",
		zap.Int("facilities", len(seed.Facilities)),
		zap.Int("transports", len(seed.Transports)),
	)
	return nil
}

// Start runs the consumers and the stuck detector until ctx is cancelled
// or one of them fails
func (s *DispatchService) Start(ctx context.Context) error {
	s.logger.Info("Starting dispatch service",
		zap.String("emergency_store", s.config.Dispatch.EmergencyStore),
		zap.String("bed_store", s.config.Dispatch.BedStore),
		zap.Strings("inbound", s.config.Inbound),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.stuckDetector.Start(gctx)
	})
	if s.commandConsumer != nil {
		g.Go(func() error {
			if err := s.commandConsumer.Start(gctx); err != nil {
				return fmt.Errorf("command consumer: %w", err)
			}
			return nil
		})
	}
	if s.positionConsumer != nil {
		g.Go(func() error {
			if err := s.positionConsumer.Start(gctx); err != nil {
				return fmt.Errorf("position consumer: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Stop closes connections
func (s *DispatchService) Stop() error {
	s.logger.Info("Stopping dispatch service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.natsConn != nil {
		if err := s.natsConn.Drain(); err != nil {
			s.logger.Error("Failed to drain NATS", zap.Error(err))
			s.natsConn.Close()
		}
	}

	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	return nil
}

// Machine emergency state machine
func (s *DispatchService) Machine() *dispatch.Machine { return s.machine }

// Handler inbound message handler
func (s *DispatchService) Handler() *EventHandler { return s.handler }

// Broker in-process subscriptions
func (s *DispatchService) Broker() *events.Broker { return s.broker }

// Reservations bed reservation manager
func (s *DispatchService) Reservations() *reservation.Manager { return s.reservations }

// Routes active route legs
func (s *DispatchService) Routes() *tracking.Registry { return s.routes }

// Emergencies emergency history of one requester, newest first
func (s *DispatchService) Emergencies(ctx context.Context, requesterID string, limit int) ([]*models.Emergency, error) {
	if requesterID == "" {
		return nil, fmt.Errorf("requester_id is required: %w", dispatch.ErrInvalidRequest)
	}
	return s.emergencies.ListByRequester(ctx, requesterID, limit)
}

// Timeline recorded events of one emergency, oldest first
func (s *DispatchService) Timeline(ctx context.Context, emergencyID string, page, size int) ([]*events.Event, int, error) {
	if s.eventLog == nil {
		return nil, 0, fmt.Errorf("event log publisher is not configured")
	}
	return s.eventLog.EmergencyTimeline(ctx, emergencyID, page, size)
}

// Transport one transport unit
func (s *DispatchService) Transport(ctx context.Context, transportID string) (*models.TransportUnit, error) {
	return s.transports.Get(ctx, transportID)
}
