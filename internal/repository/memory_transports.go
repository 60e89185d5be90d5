package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

// MemoryTransportStore in-process transport units
type MemoryTransportStore struct {
	mu    sync.RWMutex
	units map[string]models.TransportUnit
}

// NewMemoryTransportStore creates an empty store
func NewMemoryTransportStore() *MemoryTransportStore {
	return &MemoryTransportStore{units: map[string]models.TransportUnit{}}
}

// Upsert registers or updates a unit's driver and status
func (s *MemoryTransportStore) Upsert(_ context.Context, unit *models.TransportUnit) error {
	if unit == nil || unit.ID == "" {
		return fmt.Errorf("transport id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.units[unit.ID]
	current.ID = unit.ID
	current.DriverID = unit.DriverID
	current.Status = unit.Status
	current.UpdatedAt = time.Now()
	s.units[unit.ID] = current
	return nil
}

// SetStatus implements dispatch.Transports
func (s *MemoryTransportStore) SetStatus(_ context.Context, transportID string, status models.TransportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[transportID]
	if !ok {
		return fmt.Errorf("transport unit not found: id=%s: %w", transportID, models.ErrNotFound)
	}
	unit.Status = status
	unit.UpdatedAt = time.Now()
	s.units[transportID] = unit
	return nil
}

// UpdatePosition stores fix unless a newer position is already recorded
func (s *MemoryTransportStore) UpdatePosition(_ context.Context, transportID string, fix models.Fix) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[transportID]
	if !ok {
		return false, fmt.Errorf("transport unit not found: id=%s: %w", transportID, models.ErrNotFound)
	}
	if unit.Position != nil && !fix.Timestamp.After(unit.Position.Timestamp) {
		return false, nil
	}

	f := fix
	unit.Position = &f
	unit.UpdatedAt = time.Now()
	s.units[transportID] = unit
	return true, nil
}

// Get one unit
func (s *MemoryTransportStore) Get(_ context.Context, transportID string) (*models.TransportUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.units[transportID]
	if !ok {
		return nil, fmt.Errorf("transport unit not found: id=%s: %w", transportID, models.ErrNotFound)
	}
	if unit.Position != nil {
		p := *unit.Position
		unit.Position = &p
	}
	return &unit, nil
}
