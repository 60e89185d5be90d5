package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/config"
	"github.com/ashharzawarsyed/alertx-sub004/internal/dispatch"
	"github.com/ashharzawarsyed/alertx-sub004/internal/events"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"

	"go.uber.org/zap"
)

// StuckFinder lists accepted / in_progress cases past the threshold
type StuckFinder interface {
	FindStuck(ctx context.Context, now time.Time) ([]*models.Emergency, error)
}

// StuckDetector polls for stuck emergencies and reports each one once per
// status entry. It never transitions anything.
type StuckDetector struct {
	config    *config.Config
	finder    StuckFinder
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	flagged map[string]time.Time // emergency id -> since, already reported
}

// NewStuckDetector creates the detector
func NewStuckDetector(
	cfg *config.Config,
	finder StuckFinder,
	publisher events.Publisher,
	logger *zap.Logger,
) *StuckDetector {
	if publisher == nil {
		publisher = events.Nop
	}
	return &StuckDetector{
		config:    cfg,
		finder:    finder,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		flagged:   make(map[string]time.Time),
	}
}

// Start polls until ctx is cancelled
func (d *StuckDetector) Start(ctx context.Context) error {
	d.logger.Info("Stuck detector started",
		zap.Duration("interval", d.config.Dispatch.StuckCheckInterval),
		zap.Duration("threshold", d.config.Dispatch.StuckThreshold),
	)

	ticker := time.NewTicker(d.config.Dispatch.StuckCheckInterval)
	defer ticker.Stop()

	// run once immediately
	if _, err := d.Check(ctx); err != nil {
		d.logger.Error("Failed to check stuck emergencies on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Stuck detector stopped")
			return nil
		case <-ticker.C:
			if _, err := d.Check(ctx); err != nil {
				d.logger.Error("Failed to check stuck emergencies", zap.Error(err))
			}
		}
	}
}

// Check runs one pass and returns the newly reported cases
func (d *StuckDetector) Check(ctx context.Context) ([]*events.StuckDetected, error) {
	now := d.now()
	stuck, err := d.finder.FindStuck(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck emergencies: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool, len(stuck))
	var reported []*events.StuckDetected
	for _, e := range stuck {
		since, ok := dispatch.StuckSince(e)
		if !ok {
			continue
		}
		seen[e.ID] = true
		if prev, ok := d.flagged[e.ID]; ok && prev.Equal(since) {
			continue
		}

		payload := &events.StuckDetected{
			EmergencyID: e.ID,
			Status:      e.Status,
			TransportID: e.AssignedTransportID,
			Since:       since,
			AgeSeconds:  int64(now.Sub(since) / time.Second),
		}
		ev, err := events.New(events.TypeStuckDetected, e.ID, payload, now)
		if err != nil {
			d.logger.Error("Failed to build stuck event", zap.String("emergency_id", e.ID), zap.Error(err))
			continue
		}
		if err := d.publisher.Publish(ctx, ev); err != nil {
			// not marked, retried next pass
			d.logger.Warn("Failed to publish stuck event",
				zap.String("emergency_id", e.ID),
				zap.Error(err),
			)
			continue
		}

		d.flagged[e.ID] = since
		reported = append(reported, payload)
		d.logger.Warn("Emergency stuck",
			zap.String("emergency_id", e.ID),
			zap.String("status", string(e.Status)),
			zap.Int64("age_seconds", payload.AgeSeconds),
		)
	}

	for id := range d.flagged {
		if !seen[id] {
			delete(d.flagged, id)
		}
	}
	return reported, nil
}
