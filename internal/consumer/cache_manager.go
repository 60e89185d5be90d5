package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashharzawarsyed/alertx-sub004/internal/config"
	"github.com/ashharzawarsyed/alertx-sub004/internal/events"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	progressSegment = "trip:"
	progressSuffix  = ":progress"
	positionSegment = "transport:"
	positionSuffix  = ":position"
)

// CacheManager Redis cache of the latest route progress per trip and the
// latest position per transport unit, for readers that do not subscribe
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager creates the cache manager
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *CacheManager) progressKey(tripID string) string {
	return c.config.Cache.KeyPrefix + progressSegment + tripID + progressSuffix
}

func (c *CacheManager) positionKey(transportID string) string {
	return c.config.Cache.KeyPrefix + positionSegment + transportID + positionSuffix
}

// SetProgress stores progress with the configured TTL
func (c *CacheManager) SetProgress(ctx context.Context, progress *events.RouteProgress) error {
	jsonData, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	key := c.progressKey(progress.TripID)
	if err := c.redisClient.Set(ctx, key, jsonData, c.config.Cache.ProgressTTL).Err(); err != nil {
		return fmt.Errorf("failed to set progress cache: %w", err)
	}

	c.logger.Debug("Updated progress cache",
		zap.String("trip_id", progress.TripID),
		zap.String("key", key),
		zap.Float64("progress_pct", progress.ProgressPct),
	)
	return nil
}

// GetProgress latest cached progress of a trip
func (c *CacheManager) GetProgress(ctx context.Context, tripID string) (*events.RouteProgress, error) {
	val, err := c.redisClient.Get(ctx, c.progressKey(tripID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("progress not found for trip: %s: %w", tripID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var progress events.RouteProgress
	if err := json.Unmarshal([]byte(val), &progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &progress, nil
}

// DeleteProgress drops cached progress for ended trips
func (c *CacheManager) DeleteProgress(ctx context.Context, tripIDs ...string) error {
	if len(tripIDs) == 0 {
		return nil
	}
	keys := make([]string, len(tripIDs))
	for i, id := range tripIDs {
		keys[i] = c.progressKey(id)
	}
	if err := c.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete progress cache: %w", err)
	}
	return nil
}

// SetPosition stores the latest fix of a transport unit
func (c *CacheManager) SetPosition(ctx context.Context, transportID string, fix models.Fix) error {
	jsonData, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	if err := c.redisClient.Set(ctx, c.positionKey(transportID), jsonData, c.config.Cache.PositionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set position cache: %w", err)
	}
	return nil
}

// GetPosition latest cached fix of a transport unit
func (c *CacheManager) GetPosition(ctx context.Context, transportID string) (*models.Fix, error) {
	val, err := c.redisClient.Get(ctx, c.positionKey(transportID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("position not found for transport: %s: %w", transportID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var fix models.Fix
	if err := json.Unmarshal([]byte(val), &fix); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return &fix, nil
}

// GetTrackedTripIDs trips with cached progress (SCAN, use sparingly)
func (c *CacheManager) GetTrackedTripIDs(ctx context.Context) ([]string, error) {
	prefix := c.config.Cache.KeyPrefix + progressSegment
	pattern := prefix + "*" + progressSuffix

	var tripIDs []string
	iter := c.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		tripIDs = append(tripIDs, strings.TrimSuffix(strings.TrimPrefix(key, prefix), progressSuffix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return tripIDs, nil
}
