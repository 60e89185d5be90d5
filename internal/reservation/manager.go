package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"

	"go.uber.org/zap"
)

// Manager bed reservations against a BedStore
type Manager struct {
	store      BedStore
	categories map[string]bool
	logger     *zap.Logger
}

// NewManager categories is the validated set; empty uses models.DefaultBedCategories
func NewManager(store BedStore, categories []string, logger *zap.Logger) *Manager {
	if len(categories) == 0 {
		categories = models.DefaultBedCategories
	}
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return &Manager{
		store:      store,
		categories: set,
		logger:     logger,
	}
}

// Categories the validated category set, sorted
func (m *Manager) Categories() []string {
	out := make([]string, 0, len(m.categories))
	for c := range m.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Reserve takes one bed. Losers of a race for the last bed get *FacilityFullError.
func (m *Manager) Reserve(ctx context.Context, facilityID, category string) error {
	if err := m.validate(facilityID, category); err != nil {
		return err
	}

	remaining, err := m.store.Decrement(ctx, facilityID, category)
	if err != nil {
		if errors.Is(err, errNoCapacity) {
			m.logger.Info("Facility full",
				zap.String("facility_id", facilityID),
				zap.String("category", category),
			)
			return &FacilityFullError{FacilityID: facilityID, Category: category}
		}
		if errors.Is(err, ErrUnknownFacility) {
			return fmt.Errorf("facility %s: %w", facilityID, ErrUnknownFacility)
		}
		return fmt.Errorf("failed to reserve bed: %w", err)
	}

	m.logger.Debug("Bed reserved",
		zap.String("facility_id", facilityID),
		zap.String("category", category),
		zap.Int("remaining", remaining),
	)
	return nil
}

// Release returns one bed, clamped at total
func (m *Manager) Release(ctx context.Context, facilityID, category string) error {
	if err := m.validate(facilityID, category); err != nil {
		return err
	}

	available, released, err := m.store.Increment(ctx, facilityID, category)
	if err != nil {
		if errors.Is(err, ErrUnknownFacility) {
			return fmt.Errorf("facility %s: %w", facilityID, ErrUnknownFacility)
		}
		return fmt.Errorf("failed to release bed: %w", err)
	}

	if !released {
		m.logger.Warn("Release ignored, category already at capacity",
			zap.String("facility_id", facilityID),
			zap.String("category", category),
		)
		return nil
	}

	m.logger.Debug("Bed released",
		zap.String("facility_id", facilityID),
		zap.String("category", category),
		zap.Int("available", available),
	)
	return nil
}

// Availability bed counts of a facility
func (m *Manager) Availability(ctx context.Context, facilityID string) (map[string]models.BedCount, error) {
	if facilityID == "" {
		return nil, fmt.Errorf("facility_id is required: %w", ErrUnknownFacility)
	}
	beds, err := m.store.Get(ctx, facilityID)
	if err != nil {
		if errors.Is(err, ErrUnknownFacility) {
			return nil, fmt.Errorf("facility %s: %w", facilityID, ErrUnknownFacility)
		}
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	return beds, nil
}

// Seed sets the capacity of a facility
func (m *Manager) Seed(ctx context.Context, facility models.Facility) error {
	if facility.ID == "" {
		return fmt.Errorf("facility id is required")
	}
	for category, count := range facility.Beds {
		if !m.categories[category] {
			return fmt.Errorf("facility %s category %q: %w", facility.ID, category, ErrUnknownCategory)
		}
		if count.Total < 0 || count.Available < 0 || count.Available > count.Total {
			return fmt.Errorf("facility %s category %s: invalid bed count %d/%d",
				facility.ID, category, count.Available, count.Total)
		}
	}

	if err := m.store.Put(ctx, facility); err != nil {
		return fmt.Errorf("failed to seed facility: %w", err)
	}

	m.logger.Info("Facility seeded",
		zap.String("facility_id", facility.ID),
		zap.Int("categories", len(facility.Beds)),
	)
	return nil
}

func (m *Manager) validate(facilityID, category string) error {
	if facilityID == "" {
		return fmt.Errorf("facility_id is required: %w", ErrUnknownFacility)
	}
	if !m.categories[category] {
		return fmt.Errorf("category %q: %w", category, ErrUnknownCategory)
	}
	return nil
}
