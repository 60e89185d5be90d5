package reservation

import (
	"context"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

// BedStore capacity storage. Decrement and Increment must be atomic per
// (facility, category) and keep 0 <= available <= total.
type BedStore interface {
	// Decrement takes one bed; errNoCapacity when none left, ErrUnknownFacility when not seeded
	Decrement(ctx context.Context, facilityID, category string) (remaining int, err error)
	// Increment returns one bed; released is false when already at total
	Increment(ctx context.Context, facilityID, category string) (available int, released bool, err error)
	// Get bed counts of a facility
	Get(ctx context.Context, facilityID string) (map[string]models.BedCount, error)
	// Put sets the categories of a facility and drops the ones it omits. A
	// category already stored keeps its held beds: total is replaced and
	// available moves by the change in total, clamped to [0, total].
	Put(ctx context.Context, facility models.Facility) error
}
