package reservation

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFacility facility has never been seeded
	ErrUnknownFacility = errors.New("unknown facility")
	// ErrUnknownCategory category outside the configured set
	ErrUnknownCategory = errors.New("unknown bed category")

	// errNoCapacity store-level signal, surfaced as *FacilityFullError
	errNoCapacity = errors.New("no capacity")
)

// FacilityFullError no bed of the category is available
type FacilityFullError struct {
	FacilityID string
	Category   string
}

func (e *FacilityFullError) Error() string {
	return fmt.Sprintf("facility %s has no available %s beds", e.FacilityID, e.Category)
}
