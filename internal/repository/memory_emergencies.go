package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

// MemoryEmergencyStore in-process emergency store for local runs and tests.
// Records are cloned on the way in and out.
type MemoryEmergencyStore struct {
	mu          sync.RWMutex
	emergencies map[string]*models.Emergency
}

// NewMemoryEmergencyStore creates an empty store
func NewMemoryEmergencyStore() *MemoryEmergencyStore {
	return &MemoryEmergencyStore{emergencies: map[string]*models.Emergency{}}
}

// Load implements dispatch.Store
func (s *MemoryEmergencyStore) Load(_ context.Context, id string) (*models.Emergency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.emergencies[id]
	if !ok {
		return nil, fmt.Errorf("emergency not found: id=%s: %w", id, models.ErrNotFound)
	}
	return e.Clone(), nil
}

// Save implements dispatch.Store
func (s *MemoryEmergencyStore) Save(_ context.Context, e *models.Emergency) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("emergency id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.emergencies[e.ID] = e.Clone()
	return nil
}

// Transition implements dispatch.Store
func (s *MemoryEmergencyStore) Transition(_ context.Context, e *models.Emergency, from models.Status) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("emergency id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.emergencies[e.ID]
	if !ok {
		return fmt.Errorf("emergency not found: id=%s: %w", e.ID, models.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("emergency %s is %s, not %s: %w", e.ID, current.Status, from, models.ErrConflict)
	}
	s.emergencies[e.ID] = e.Clone()
	return nil
}

// ListByStatus implements dispatch.Store
func (s *MemoryEmergencyStore) ListByStatus(_ context.Context, statuses ...models.Status) ([]*models.Emergency, error) {
	want := make(map[models.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	out := make([]*models.Emergency, 0)
	for _, e := range s.emergencies {
		if want[e.Status] {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListByRequester a requester's emergencies, newest first
func (s *MemoryEmergencyStore) ListByRequester(_ context.Context, requesterID string, limit int) ([]*models.Emergency, error) {
	if requesterID == "" {
		return nil, fmt.Errorf("requester_id is required")
	}

	s.mu.RLock()
	out := make([]*models.Emergency, 0)
	for _, e := range s.emergencies {
		if e.RequesterID == requesterID {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
