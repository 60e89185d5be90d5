package reservation

import (
	"context"
	"sync"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

type memoryFacility struct {
	mu   sync.Mutex
	beds map[string]models.BedCount
}

// MemoryStore in-process BedStore, one lock per facility
type MemoryStore struct {
	mu         sync.RWMutex
	facilities map[string]*memoryFacility
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{facilities: make(map[string]*memoryFacility)}
}

func (s *MemoryStore) facility(id string) *memoryFacility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facilities[id]
}

// Decrement implements BedStore
func (s *MemoryStore) Decrement(_ context.Context, facilityID, category string) (int, error) {
	f := s.facility(facilityID)
	if f == nil {
		return 0, ErrUnknownFacility
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.beds[category]
	if count.Available <= 0 {
		return 0, errNoCapacity
	}
	count.Available--
	f.beds[category] = count
	return count.Available, nil
}

// Increment implements BedStore
func (s *MemoryStore) Increment(_ context.Context, facilityID, category string) (int, bool, error) {
	f := s.facility(facilityID)
	if f == nil {
		return 0, false, ErrUnknownFacility
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	count, ok := f.beds[category]
	if !ok || count.Available >= count.Total {
		return count.Available, false, nil
	}
	count.Available++
	f.beds[category] = count
	return count.Available, true, nil
}

// Get implements BedStore
func (s *MemoryStore) Get(_ context.Context, facilityID string) (map[string]models.BedCount, error) {
	f := s.facility(facilityID)
	if f == nil {
		return nil, ErrUnknownFacility
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]models.BedCount, len(f.beds))
	for k, v := range f.beds {
		out[k] = v
	}
	return out, nil
}

// Put implements BedStore
func (s *MemoryStore) Put(_ context.Context, facility models.Facility) error {
	beds := make(map[string]models.BedCount, len(facility.Beds))
	for k, v := range facility.Beds {
		beds[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.facilities[facility.ID]
	if !ok {
		s.facilities[facility.ID] = &memoryFacility{beds: beds}
		return nil
	}

	f.mu.Lock()
	for category, count := range beds {
		if old, ok := f.beds[category]; ok {
			count.Available = keepHeld(old, count.Total)
			beds[category] = count
		}
	}
	f.beds = beds
	f.mu.Unlock()
	return nil
}

// keepHeld available count after total changes, with the held beds of old kept
func keepHeld(old models.BedCount, total int) int {
	available := old.Available + total - old.Total
	if available < 0 {
		return 0
	}
	if available > total {
		return total
	}
	return available
}
