package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ashharzawarsyed/alertx-sub004/internal/events"
	"github.com/ashharzawarsyed/alertx-sub004/internal/geo"
	"github.com/ashharzawarsyed/alertx-sub004/internal/models"
	"github.com/ashharzawarsyed/alertx-sub004/internal/triage"
)

// Store emergency persistence. Transition writes e only while the stored
// status is still from, and wraps models.ErrConflict otherwise.
type Store interface {
	Load(ctx context.Context, id string) (*models.Emergency, error)
	Save(ctx context.Context, e *models.Emergency) error
	Transition(ctx context.Context, e *models.Emergency, from models.Status) error
	ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Emergency, error)
}

// Reserver bed reservations
type Reserver interface {
	Reserve(ctx context.Context, facilityID, category string) error
	Release(ctx context.Context, facilityID, category string) error
}

// Transports transport unit availability
type Transports interface {
	SetStatus(ctx context.Context, transportID string, status models.TransportStatus) error
}

// Scorer severity triage
type Scorer interface {
	Score(symptomText string, keywords []string) triage.Assessment
}

// Config state machine settings
type Config struct {
	// StuckThreshold age after which an accepted / in_progress case is flagged
	StuckThreshold time.Duration
}

// CreateRequest report from a requester
type CreateRequest struct {
	RequesterID string
	SymptomText string
	Keywords    []string
	Location    *geo.Point
}

// AcceptRequest driver takes the case and a bed is reserved
type AcceptRequest struct {
	DriverID    string
	TransportID string
	FacilityID  string
	BedCategory string
}

// Machine emergency state machine. Transitions on one emergency are
// serialized; the held bed is released exactly once.
type Machine struct {
	cfg        Config
	store      Store
	reserver   Reserver
	scorer     Scorer
	transports Transports
	publisher  events.Publisher
	locks      *KeyedMutex
	now        func() time.Time
	logger     *zap.Logger
}

// NewMachine transports and publisher may be nil
func NewMachine(cfg Config, store Store, reserver Reserver, scorer Scorer, transports Transports, publisher events.Publisher, logger *zap.Logger) *Machine {
	if publisher == nil {
		publisher = events.Nop
	}
	return &Machine{
		cfg:        cfg,
		store:      store,
		reserver:   reserver,
		scorer:     scorer,
		transports: transports,
		publisher:  publisher,
		locks:      NewKeyedMutex(),
		now:        time.Now,
		logger:     logger,
	}
}

// SetClock replaces the time source
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Create scores the report and stores a pending emergency
func (m *Machine) Create(ctx context.Context, req CreateRequest) (*models.Emergency, error) {
	if strings.TrimSpace(req.RequesterID) == "" {
		return nil, fmt.Errorf("requester_id is required: %w", ErrInvalidRequest)
	}
	if req.Location != nil && !req.Location.Valid() {
		return nil, fmt.Errorf("location out of range: %w", ErrInvalidRequest)
	}

	assessment := m.scorer.Score(req.SymptomText, req.Keywords)
	return m.create(ctx, req, false, assessment)
}

// CreatePanic stores a critical pending emergency without consulting the scorer
func (m *Machine) CreatePanic(ctx context.Context, requesterID string, location *geo.Point) (*models.Emergency, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("requester_id is required: %w", ErrInvalidRequest)
	}
	if location != nil && !location.Valid() {
		return nil, fmt.Errorf("location out of range: %w", ErrInvalidRequest)
	}

	return m.create(ctx, CreateRequest{RequesterID: requesterID, Location: location}, true, triage.Bypass())
}

func (m *Machine) create(ctx context.Context, req CreateRequest, isPanic bool, a triage.Assessment) (*models.Emergency, error) {
	var location *geo.Point
	if req.Location != nil {
		loc := *req.Location
		location = &loc
	}

	now := m.now()
	e := &models.Emergency{
		ID:               uuid.NewString(),
		RequesterID:      req.RequesterID,
		SymptomText:      req.SymptomText,
		SymptomKeywords:  append([]string{}, req.Keywords...),
		Location:         location,
		Panic:            isPanic,
		SeverityTier:     a.Tier,
		TriageScore:      a.Score,
		TriageConfidence: a.Confidence,
		MatchedKeywords:  append([]string{}, a.MatchedKeywords...),
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := m.store.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to save emergency: %w", err)
	}

	m.logger.Info("Emergency created",
		zap.String("emergency_id", e.ID),
		zap.String("requester_id", e.RequesterID),
		zap.String("tier", string(e.SeverityTier)),
		zap.Float64("score", e.TriageScore),
		zap.Int("confidence", e.TriageConfidence),
		zap.Bool("panic", isPanic),
	)

	m.publishStatus(ctx, e, nil)
	return e.Clone(), nil
}

// Accept pending → accepted. The bed is reserved first; if that fails the
// emergency stays pending and *reservation.FacilityFullError is returned.
func (m *Machine) Accept(ctx context.Context, id string, req AcceptRequest) (*models.Emergency, error) {
	if req.TransportID == "" || req.FacilityID == "" || req.BedCategory == "" {
		return nil, fmt.Errorf("transport_id, facility_id and bed_category are required: %w", ErrInvalidRequest)
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	e, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.StatusPending {
		return nil, &InvalidTransitionError{EmergencyID: id, From: e.Status, Action: "accept"}
	}

	if err := m.reserver.Reserve(ctx, req.FacilityID, req.BedCategory); err != nil {
		m.logger.Info("Accept rejected, no bed reserved",
			zap.String("emergency_id", id),
			zap.String("facility_id", req.FacilityID),
			zap.String("category", req.BedCategory),
			zap.Error(err),
		)
		return nil, err
	}

	now := m.now()
	next := e.Clone()
	next.Status = models.StatusAccepted
	next.AssignedTransportID = stringPtr(req.TransportID)
	next.AssignedFacilityID = stringPtr(req.FacilityID)
	next.ReservedBedCategory = stringPtr(req.BedCategory)
	if req.DriverID != "" {
		next.AssignedDriverID = stringPtr(req.DriverID)
	}
	next.AcceptedAt = &now
	next.UpdatedAt = now

	if err := m.store.Transition(ctx, next, e.Status); err != nil {
		// the bed was taken for a transition that never happened
		if relErr := m.reserver.Release(ctx, req.FacilityID, req.BedCategory); relErr != nil {
			m.logger.Error("Failed to release bed after failed accept",
				zap.String("emergency_id", id),
				zap.String("facility_id", req.FacilityID),
				zap.String("category", req.BedCategory),
				zap.Error(relErr),
			)
		}
		return nil, m.saveError(ctx, id, "accept", e.Status, err)
	}

	m.setTransport(ctx, req.TransportID, models.TransportBusy)

	m.logger.Info("Emergency accepted",
		zap.String("emergency_id", id),
		zap.String("transport_id", req.TransportID),
		zap.String("facility_id", req.FacilityID),
		zap.String("category", req.BedCategory),
	)

	m.publishStatus(ctx, next, e)
	return next.Clone(), nil
}

// Pickup accepted → in_progress. driverID, when set, must be the assigned driver.
func (m *Machine) Pickup(ctx context.Context, id, driverID string) (*models.Emergency, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	e, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.StatusAccepted {
		return nil, &InvalidTransitionError{EmergencyID: id, From: e.Status, Action: "pickup"}
	}
	if err := checkDriver(e, driverID); err != nil {
		return nil, err
	}

	now := m.now()
	next := e.Clone()
	next.Status = models.StatusInProgress
	next.PickedUpAt = &now
	next.UpdatedAt = now

	if err := m.store.Transition(ctx, next, e.Status); err != nil {
		return nil, m.saveError(ctx, id, "pickup", e.Status, err)
	}

	m.logger.Info("Patient picked up", zap.String("emergency_id", id))

	m.publishStatus(ctx, next, e)
	return next.Clone(), nil
}

// Complete in_progress → completed, releasing the bed
func (m *Machine) Complete(ctx context.Context, id, driverID string) (*models.Emergency, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	e, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != models.StatusInProgress {
		return nil, &InvalidTransitionError{EmergencyID: id, From: e.Status, Action: "complete"}
	}
	if err := checkDriver(e, driverID); err != nil {
		return nil, err
	}

	now := m.now()
	next := e.Clone()
	next.Status = models.StatusCompleted
	next.CompletedAt = &now

	if err := m.finish(ctx, "complete", e, next, now); err != nil {
		return nil, err
	}

	m.logger.Info("Emergency completed", zap.String("emergency_id", id))

	m.publishStatus(ctx, next, e)
	return next.Clone(), nil
}

// Cancel any non-terminal status → cancelled, releasing the bed if one is
// held. requesterID, when set, must own the emergency; empty means operator.
func (m *Machine) Cancel(ctx context.Context, id, requesterID, reason string) (*models.Emergency, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	e, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status.IsTerminal() {
		return nil, &InvalidTransitionError{EmergencyID: id, From: e.Status, Action: "cancel"}
	}
	if requesterID != "" && requesterID != e.RequesterID {
		return nil, fmt.Errorf("requester %s does not own emergency %s: %w", requesterID, id, ErrForbidden)
	}

	now := m.now()
	next := e.Clone()
	next.Status = models.StatusCancelled
	next.CancelledAt = &now
	if reason != "" {
		next.CancellationReason = stringPtr(reason)
	}

	if err := m.finish(ctx, "cancel", e, next, now); err != nil {
		return nil, err
	}

	m.logger.Info("Emergency cancelled",
		zap.String("emergency_id", id),
		zap.String("from", string(e.Status)),
		zap.String("reason", reason),
	)

	m.publishStatus(ctx, next, e)
	return next.Clone(), nil
}

// finish releases the held bed, clears the assignment and persists a terminal
// record. A failed release aborts with the stored record untouched.
func (m *Machine) finish(ctx context.Context, action string, prev, next *models.Emergency, now time.Time) error {
	held := prev.HoldsReservation() && prev.AssignedFacilityID != nil
	if held {
		if err := m.reserver.Release(ctx, *prev.AssignedFacilityID, *prev.ReservedBedCategory); err != nil {
			return fmt.Errorf("failed to release bed: %w", err)
		}
	}

	next.AssignedTransportID = nil
	next.AssignedDriverID = nil
	next.AssignedFacilityID = nil
	next.ReservedBedCategory = nil
	next.UpdatedAt = now

	if err := m.store.Transition(ctx, next, prev.Status); err != nil {
		if held {
			// the stored record, or whoever moved it on, owns the release
			if resErr := m.reserver.Reserve(ctx, *prev.AssignedFacilityID, *prev.ReservedBedCategory); resErr != nil {
				m.logger.Error("Failed to restore bed after failed terminal save",
					zap.String("emergency_id", prev.ID),
					zap.String("facility_id", *prev.AssignedFacilityID),
					zap.Error(resErr),
				)
			}
		}
		return m.saveError(ctx, prev.ID, action, prev.Status, err)
	}

	if prev.AssignedTransportID != nil {
		m.setTransport(ctx, *prev.AssignedTransportID, models.TransportAvailable)
	}
	return nil
}

// FindStuck accepted or in_progress emergencies older than the threshold at now.
// Read-only; nothing is transitioned.
func (m *Machine) FindStuck(ctx context.Context, now time.Time) ([]*models.Emergency, error) {
	candidates, err := m.store.ListByStatus(ctx, models.StatusAccepted, models.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list active emergencies: %w", err)
	}

	var stuck []*models.Emergency
	for _, e := range candidates {
		since, ok := StuckSince(e)
		if !ok {
			continue
		}
		if now.Sub(since) > m.cfg.StuckThreshold {
			stuck = append(stuck, e)
		}
	}
	return stuck, nil
}

// StuckSince time the emergency entered its current active status
func StuckSince(e *models.Emergency) (time.Time, bool) {
	switch e.Status {
	case models.StatusAccepted:
		if e.AcceptedAt != nil {
			return *e.AcceptedAt, true
		}
	case models.StatusInProgress:
		if e.PickedUpAt != nil {
			return *e.PickedUpAt, true
		}
	}
	return time.Time{}, false
}

// Get loads one emergency
func (m *Machine) Get(ctx context.Context, id string) (*models.Emergency, error) {
	return m.load(ctx, id)
}

func (m *Machine) load(ctx context.Context, id string) (*models.Emergency, error) {
	if id == "" {
		return nil, fmt.Errorf("emergency_id is required: %w", ErrInvalidRequest)
	}
	e, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("emergency %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load emergency: %w", err)
	}
	return e, nil
}

// saveError turns a lost write race into the transition error the caller
// would have seen had it loaded the record a moment later
func (m *Machine) saveError(ctx context.Context, id, action string, from models.Status, err error) error {
	if !errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("failed to save emergency: %w", err)
	}
	if current, loadErr := m.store.Load(ctx, id); loadErr == nil {
		from = current.Status
	}
	m.logger.Info("Transition lost to a concurrent writer",
		zap.String("emergency_id", id),
		zap.String("action", action),
		zap.String("status", string(from)),
	)
	return &InvalidTransitionError{EmergencyID: id, From: from, Action: action}
}

func (m *Machine) setTransport(ctx context.Context, transportID string, status models.TransportStatus) {
	if m.transports == nil {
		return
	}
	if err := m.transports.SetStatus(ctx, transportID, status); err != nil {
		m.logger.Warn("Failed to update transport status",
			zap.String("transport_id", transportID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// publishStatus emits status_changed. Terminal records carry no assignment,
// so the event reports the one prev held.
func (m *Machine) publishStatus(ctx context.Context, e, prev *models.Emergency) {
	payload := events.StatusChanged{
		EmergencyID: e.ID,
		RequesterID: e.RequesterID,
		To:          e.Status,
		Tier:        e.SeverityTier,
		Score:       e.TriageScore,
		Panic:       e.Panic,
		TransportID: e.AssignedTransportID,
		FacilityID:  e.AssignedFacilityID,
		BedCategory: e.ReservedBedCategory,
		Reason:      e.CancellationReason,
		At:          e.UpdatedAt,
	}
	if prev != nil {
		payload.From = prev.Status
		if e.Status.IsTerminal() {
			payload.TransportID = prev.AssignedTransportID
			payload.FacilityID = prev.AssignedFacilityID
			payload.BedCategory = prev.ReservedBedCategory
		}
	}

	ev, err := events.New(events.TypeStatusChanged, e.ID, payload, m.now())
	if err != nil {
		m.logger.Error("Failed to build status event", zap.String("emergency_id", e.ID), zap.Error(err))
		return
	}

	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("Failed to publish status event",
			zap.String("emergency_id", e.ID),
			zap.String("status", string(e.Status)),
			zap.Error(err),
		)
	}
}

func checkDriver(e *models.Emergency, driverID string) error {
	if driverID == "" || e.AssignedDriverID == nil {
		return nil
	}
	if *e.AssignedDriverID != driverID {
		return fmt.Errorf("driver %s is not assigned to emergency %s: %w", driverID, e.ID, ErrForbidden)
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
