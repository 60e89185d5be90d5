package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashharzawarsyed/alertx-sub004/internal/dispatch"
	"github.com/ashharzawarsyed/alertx-sub004/internal/events"
	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
	"github.com/ashharzawarsyed/alertx-sub004/internal/reservation"
	"github.com/ashharzawarsyed/alertx-sub004/internal/tracking"

	"go.uber.org/zap"
)

// TransportStore transport units as seen by the handler
type TransportStore interface {
	Get(ctx context.Context, transportID string) (*models.TransportUnit, error)
	UpdatePosition(ctx context.Context, transportID string, fix models.Fix) (bool, error)
}

// ProgressCache optional read-side cache
type ProgressCache interface {
	SetProgress(ctx context.Context, progress *events.RouteProgress) error
	DeleteProgress(ctx context.Context, tripIDs ...string) error
	SetPosition(ctx context.Context, transportID string, fix models.Fix) error
}

// EventHandler turns inbound messages into state machine transitions and
// route leg updates. Failed commands are answered with command_rejected.
// A transition and the leg changes that follow it run under one
// per-emergency lock, so a cancel cannot slip between accept and its leg.
type EventHandler struct {
	machine          *dispatch.Machine
	routes           *tracking.Registry
	transports       TransportStore
	cache            ProgressCache
	publisher        events.Publisher
	fallbackSegments int
	now              func() time.Time
	logger           *zap.Logger
	locks            *dispatch.KeyedMutex

	mu         sync.Mutex
	facilities map[string]geo.Point // facility id -> location
	onTrip     map[string]string    // transport id -> active trip id
}

// NewEventHandler cache and publisher may be nil
func NewEventHandler(
	machine *dispatch.Machine,
	routes *tracking.Registry,
	transports TransportStore,
	cache ProgressCache,
	publisher events.Publisher,
	fallbackSegments int,
	logger *zap.Logger,
) *EventHandler {
	if publisher == nil {
		publisher = events.Nop
	}
	if fallbackSegments < 1 {
		fallbackSegments = 1
	}
	return &EventHandler{
		machine:          machine,
		routes:           routes,
		transports:       transports,
		cache:            cache,
		publisher:        publisher,
		fallbackSegments: fallbackSegments,
		now:              time.Now,
		logger:           logger,
		locks:            dispatch.NewKeyedMutex(),
		facilities:       make(map[string]geo.Point),
		onTrip:           make(map[string]string),
	}
}

// RegisterFacility records a facility location for fallback paths
func (h *EventHandler) RegisterFacility(facility models.Facility) {
	if facility.Location == nil || !facility.Location.Valid() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.facilities[facility.ID] = *facility.Location
}

// HandleMessage decodes and dispatches one inbound message
func (h *EventHandler) HandleMessage(ctx context.Context, msgType string, data []byte) error {
	msg, err := events.DecodeInbound(msgType, data)
	if err != nil {
		h.reject(ctx, msgType, "", err)
		return err
	}

	switch m := msg.(type) {
	case *events.PositionFix:
		return h.HandlePositionFix(ctx, m)
	case *events.CreateRequested:
		_, err = h.handleCreate(ctx, m)
		if err != nil {
			h.rejectCorrelated(ctx, msgType, "", m.RequestID, err)
		}
	case *events.AcceptRequested:
		err = h.locked(m.EmergencyID, func() error { return h.handleAccept(ctx, m) })
		if err != nil {
			h.reject(ctx, msgType, m.EmergencyID, err)
		}
	case *events.PickupRequested:
		err = h.locked(m.EmergencyID, func() error { return h.handlePickup(ctx, m) })
		if err != nil {
			h.reject(ctx, msgType, m.EmergencyID, err)
		}
	case *events.CompleteRequested:
		err = h.locked(m.EmergencyID, func() error {
			if _, err := h.machine.Complete(ctx, m.EmergencyID, m.DriverID); err != nil {
				return err
			}
			h.endLegs(ctx, m.EmergencyID)
			return nil
		})
		if err != nil {
			h.reject(ctx, msgType, m.EmergencyID, err)
		}
	case *events.CancelRequested:
		err = h.locked(m.EmergencyID, func() error {
			if _, err := h.machine.Cancel(ctx, m.EmergencyID, m.RequesterID, m.Reason); err != nil {
				return err
			}
			h.endLegs(ctx, m.EmergencyID)
			return nil
		})
		if err != nil {
			h.reject(ctx, msgType, m.EmergencyID, err)
		}
	case *events.LegStarted:
		err = h.locked(m.EmergencyID, func() error { return h.handleLegStarted(ctx, m) })
		if err != nil {
			h.reject(ctx, msgType, m.EmergencyID, err)
		}
	default:
		err = fmt.Errorf("unhandled message type %q", msgType)
	}
	return err
}

// ============================================
// Commands
// ============================================

func (h *EventHandler) locked(emergencyID string, fn func() error) error {
	unlock := h.locks.Lock(emergencyID)
	defer unlock()
	return fn()
}

func (h *EventHandler) handleCreate(ctx context.Context, m *events.CreateRequested) (*models.Emergency, error) {
	if m.Panic {
		return h.machine.CreatePanic(ctx, m.RequesterID, m.Location)
	}
	return h.machine.Create(ctx, dispatch.CreateRequest{
		RequesterID: m.RequesterID,
		SymptomText: m.SymptomText,
		Keywords:    m.Keywords,
		Location:    m.Location,
	})
}

func (h *EventHandler) handleAccept(ctx context.Context, m *events.AcceptRequested) error {
	e, err := h.machine.Accept(ctx, m.EmergencyID, dispatch.AcceptRequest{
		DriverID:    m.DriverID,
		TransportID: m.TransportID,
		FacilityID:  m.FacilityID,
		BedCategory: m.BedCategory,
	})
	if err != nil {
		return err
	}

	path := m.Path
	if len(path) == 0 && e.Location != nil {
		if from, ok := h.transportPosition(ctx, m.TransportID); ok {
			path = geo.StraightLine(from, *e.Location, h.fallbackSegments)
		}
	}
	h.beginLeg(ctx, e, tracking.LegToPatient, path)
	return nil
}

func (h *EventHandler) handlePickup(ctx context.Context, m *events.PickupRequested) error {
	e, err := h.machine.Pickup(ctx, m.EmergencyID, m.DriverID)
	if err != nil {
		return err
	}

	h.endLeg(ctx, tracking.TripID(e.ID, tracking.LegToPatient))

	path := m.Path
	if len(path) == 0 && e.AssignedFacilityID != nil {
		h.mu.Lock()
		to, ok := h.facilities[*e.AssignedFacilityID]
		h.mu.Unlock()

		from, haveFrom := geo.Point{}, false
		if e.AssignedTransportID != nil {
			from, haveFrom = h.transportPosition(ctx, *e.AssignedTransportID)
		}
		if !haveFrom && e.Location != nil {
			from, haveFrom = *e.Location, true
		}
		if ok && haveFrom {
			path = geo.StraightLine(from, to, h.fallbackSegments)
		}
	}
	h.beginLeg(ctx, e, tracking.LegToFacility, path)
	return nil
}

func (h *EventHandler) handleLegStarted(ctx context.Context, m *events.LegStarted) error {
	leg := tracking.Leg(m.Leg)
	want := map[tracking.Leg]models.Status{
		tracking.LegToPatient:  models.StatusAccepted,
		tracking.LegToFacility: models.StatusInProgress,
	}
	status, ok := want[leg]
	if !ok {
		return fmt.Errorf("unknown leg %q: %w", m.Leg, dispatch.ErrInvalidRequest)
	}

	e, err := h.machine.Get(ctx, m.EmergencyID)
	if err != nil {
		return err
	}
	if e.Status != status {
		return &tracking.InvalidRouteStateError{
			TripID: tracking.TripID(e.ID, leg),
			Reason: fmt.Sprintf("emergency is %s", e.Status),
		}
	}

	h.beginLeg(ctx, e, leg, m.Path)
	return nil
}

// ============================================
// Position fixes
// ============================================

// HandlePositionFix records the transport position and advances its active leg
func (h *EventHandler) HandlePositionFix(ctx context.Context, m *events.PositionFix) error {
	if m.TransportID == "" {
		return fmt.Errorf("transport_id is required: %w", dispatch.ErrInvalidRequest)
	}

	fix := m.Fix()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = h.now().UTC()
	}
	if !fix.Point().Valid() {
		return fmt.Errorf("transport %s: %w", m.TransportID, tracking.ErrInvalidFix)
	}

	stored, err := h.transports.UpdatePosition(ctx, m.TransportID, fix)
	if err != nil {
		return fmt.Errorf("failed to update transport position: %w", err)
	}
	if !stored {
		h.logger.Debug("Dropped stale position fix",
			zap.String("transport_id", m.TransportID),
			zap.Time("timestamp", fix.Timestamp),
		)
		return nil
	}
	if h.cache != nil {
		if err := h.cache.SetPosition(ctx, m.TransportID, fix); err != nil {
			h.logger.Warn("Failed to cache position", zap.String("transport_id", m.TransportID), zap.Error(err))
		}
	}

	tripID := m.TripID
	if tripID == "" {
		h.mu.Lock()
		tripID = h.onTrip[m.TransportID]
		h.mu.Unlock()
	}
	if tripID == "" || !h.routes.Active(tripID) {
		return nil
	}

	progress, applied, err := h.routes.Update(tripID, fix)
	if err != nil {
		return fmt.Errorf("failed to update route %s: %w", tripID, err)
	}
	if !applied {
		return nil
	}

	h.publishProgress(ctx, tripID, m.TransportID, progress)
	return nil
}

// ============================================
// Route legs
// ============================================

func (h *EventHandler) beginLeg(ctx context.Context, e *models.Emergency, leg tracking.Leg, path []geo.Point) {
	tripID := tracking.TripID(e.ID, leg)
	if len(path) == 0 {
		h.logger.Warn("Route leg has no path",
			zap.String("trip_id", tripID),
			zap.String("emergency_id", e.ID),
		)
	}

	progress := h.routes.Begin(tripID, path)

	transportID := ""
	if e.AssignedTransportID != nil {
		transportID = *e.AssignedTransportID
		h.mu.Lock()
		h.onTrip[transportID] = tripID
		h.mu.Unlock()
	}

	h.logger.Info("Route leg started",
		zap.String("trip_id", tripID),
		zap.String("transport_id", transportID),
		zap.Int("path_points", len(path)),
	)
	h.publishProgress(ctx, tripID, transportID, progress)
}

func (h *EventHandler) endLeg(ctx context.Context, tripID string) {
	if !h.routes.End(tripID) {
		return
	}
	h.forgetTrips(ctx, tripID)
}

func (h *EventHandler) endLegs(ctx context.Context, emergencyID string) {
	ended := h.routes.EndEmergency(emergencyID)
	if len(ended) == 0 {
		return
	}
	h.forgetTrips(ctx, ended...)
}

func (h *EventHandler) forgetTrips(ctx context.Context, tripIDs ...string) {
	h.mu.Lock()
	for _, tripID := range tripIDs {
		for transportID, active := range h.onTrip {
			if active == tripID {
				delete(h.onTrip, transportID)
			}
		}
	}
	h.mu.Unlock()

	if h.cache != nil {
		if err := h.cache.DeleteProgress(ctx, tripIDs...); err != nil {
			h.logger.Warn("Failed to drop cached progress", zap.Strings("trip_ids", tripIDs), zap.Error(err))
		}
	}
	h.logger.Info("Route legs ended", zap.Strings("trip_ids", tripIDs))
}

func (h *EventHandler) transportPosition(ctx context.Context, transportID string) (geo.Point, bool) {
	unit, err := h.transports.Get(ctx, transportID)
	if err != nil || unit.Position == nil {
		return geo.Point{}, false
	}
	p := unit.Position.Point()
	return p, p.Valid()
}

// ============================================
// Outbound
// ============================================

func (h *EventHandler) publishProgress(ctx context.Context, tripID, transportID string, p tracking.Progress) {
	emergencyID, leg, _ := tracking.ParseTripID(tripID)
	payload := &events.RouteProgress{
		TripID:              tripID,
		EmergencyID:         emergencyID,
		Leg:                 string(leg),
		TransportID:         transportID,
		CursorIndex:         p.CursorIndex,
		Traveled:            p.Traveled,
		Remaining:           p.Remaining,
		DistanceRemainingKm: p.DistanceRemainingKm,
		ETAMinutes:          p.ETAMinutes,
		ProgressPct:         p.ProgressPct,
		At:                  h.now().UTC(),
	}

	if h.cache != nil {
		if err := h.cache.SetProgress(ctx, payload); err != nil {
			h.logger.Warn("Failed to cache progress", zap.String("trip_id", tripID), zap.Error(err))
		}
	}

	ev, err := events.New(events.TypeRouteProgress, emergencyID, payload, payload.At)
	if err != nil {
		h.logger.Error("Failed to build progress event", zap.String("trip_id", tripID), zap.Error(err))
		return
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish progress", zap.String("trip_id", tripID), zap.Error(err))
	}
}

func (h *EventHandler) reject(ctx context.Context, cmdType, emergencyID string, cause error) {
	h.rejectCorrelated(ctx, cmdType, emergencyID, "", cause)
}

func (h *EventHandler) rejectCorrelated(ctx context.Context, cmdType, emergencyID, correlationID string, cause error) {
	h.logger.Warn("Command rejected",
		zap.String("type", cmdType),
		zap.String("emergency_id", emergencyID),
		zap.String("reason_code", reasonCode(cause)),
		zap.Error(cause),
	)

	ev, err := events.New(events.TypeCommandRejected, emergencyID, events.CommandRejected{
		CommandType: cmdType,
		EmergencyID: emergencyID,
		Code:        reasonCode(cause),
		Reason:      cause.Error(),
	}, h.now())
	if err != nil {
		h.logger.Error("Failed to build rejection event", zap.Error(err))
		return
	}
	if correlationID != "" {
		ev.WithCorrelation(correlationID)
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish rejection", zap.Error(err))
	}
}

// reasonCode stable classification carried by command_rejected
func reasonCode(err error) string {
	var transition *dispatch.InvalidTransitionError
	var routeState *tracking.InvalidRouteStateError
	var full *reservation.FacilityFullError
	switch {
	case errors.As(err, &transition):
		return events.CodeInvalidTransition
	case errors.As(err, &routeState):
		return events.CodeInvalidRouteState
	case errors.As(err, &full):
		return events.CodeFacilityFull
	case errors.Is(err, reservation.ErrUnknownFacility), errors.Is(err, reservation.ErrUnknownCategory):
		return events.CodeUnknownFacility
	case errors.Is(err, dispatch.ErrNotFound):
		return events.CodeNotFound
	case errors.Is(err, dispatch.ErrForbidden):
		return events.CodeForbidden
	case errors.Is(err, dispatch.ErrInvalidRequest):
		return events.CodeInvalidRequest
	default:
		return events.CodeError
	}
}
