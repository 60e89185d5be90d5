package dispatch

import (
	"errors"
	"fmt"

	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
)

var (
	// ErrNotFound emergency does not exist
	ErrNotFound = models.ErrNotFound
	// ErrInvalidRequest missing or malformed command fields
	ErrInvalidRequest = errors.New("invalid request")
	// ErrForbidden caller is not the requester or assigned driver
	ErrForbidden = errors.New("forbidden")
)

// InvalidTransitionError action not allowed from the current status
type InvalidTransitionError struct {
	EmergencyID string
	From        models.Status
	Action      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s emergency %s in status %s", e.Action, e.EmergencyID, e.From)
}
