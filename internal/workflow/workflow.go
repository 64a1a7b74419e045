package workflow

import (
	"log/slog"
	"time"

	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/notify"
	"github.com/example/uniride/internal/observability"
	"github.com/example/uniride/internal/storage"
)

// Publisher emits ride lifecycle events for downstream consumers; nil-safe
// through the service's publish helper.
type Publisher interface {
	Publish(ev models.RideEvent) error
}

// FareHolder is the optional payments hook. Holds and settlements are
// best-effort; the workflow never fails a mutation over them.
type FareHolder interface {
	HoldShare(rideID int64, userID string, t models.RideType)
	SettleRide(rideID int64)
	ReleaseRide(rideID int64)
}

// Service owns every mutation of ride state: creation, the join-request
// workflow and the owner-driven lifecycle transitions. A per-ride mutex
// brackets each read-decide-write sequence so concurrent approvals can never
// overbook a ride.
type Service struct {
	Store  storage.Store
	Events Publisher
	Notify notify.Notifier
	Fares  FareHolder
	Logger *slog.Logger
	locks  *rideLocks
}

func NewService(store storage.Store, logger *slog.Logger) *Service {
	return &Service{Store: store, Logger: logger, locks: newRideLocks()}
}

// OfferRide creates an owner-led ride offer and persists it as a match
// candidate. Rickshaw rides are leaderless by definition and cannot be
// offered this way.
func (s *Service) OfferRide(ownerID, from, to, departure, mode string, t models.RideType, femalesOnly bool, genderPref string) (*models.Ride, error) {
	if ownerID == "" {
		return nil, models.Validationf(models.ReasonBadRoute, "owner id required for a ride offer")
	}
	if err := validateRoute(from, to); err != nil {
		return nil, err
	}
	if !t.HasOwner() {
		return nil, models.Validationf(models.ReasonBadRideType, "rickshaw rides cannot have owners")
	}
	if departure == "" {
		departure = "now"
	}
	r := models.NewRide(ownerID, from, to, departure, mode, t, femalesOnly, genderPref)
	if _, err := s.Store.SaveRide(r); err != nil {
		return nil, models.StorageErr("save ride", err)
	}
	observability.RidesCreatedTotal.Inc()
	s.publish(models.RideEventCreated, r)
	s.Logger.Info("ride offered", "ride", r.ID, "owner", ownerID, "type", t, "from", from, "to", to)
	return r, nil
}

// LeadNewRide is the no-match fallback: the searcher becomes the ad-hoc lead
// of a fresh aggregation ride. Rickshaw aggregations stay leaderless; the
// requester just takes the first seat.
func (s *Service) LeadNewRide(userID, from, to string, t models.RideType) (*models.Ride, error) {
	if err := validateRoute(from, to); err != nil {
		return nil, err
	}
	var r *models.Ride
	if t.HasOwner() {
		r = models.NewRide(userID, from, to, "flexible", "request", t, false, models.GenderAny)
	} else {
		r = models.NewRide("", from, to, "flexible", "request", t, false, models.GenderAny)
		r.CurrentCapacity = 1
		r.Participants = []string{userID}
	}
	if _, err := s.Store.SaveRide(r); err != nil {
		return nil, models.StorageErr("save ride", err)
	}
	observability.RidesCreatedTotal.Inc()
	s.publish(models.RideEventCreated, r)
	s.Logger.Info("aggregation ride created", "ride", r.ID, "lead", userID, "type", t)
	return r, nil
}

// SubmitJoinRequest records userID's pending bid against a ride. A user may
// hold only one pending request across the whole system. Submission is
// allowed while a seat might still free up, so it checks joinability but not
// final approvability.
func (s *Service) SubmitJoinRequest(rideID int64, userID string) error {
	if userID == "" {
		return models.Validationf(models.ReasonBadRoute, "user id required")
	}
	mu := s.locks.forRide(rideID)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Store.LoadRide(rideID)
	if err != nil {
		return err
	}
	if r.OwnerID == userID {
		return models.Conflictf(models.ReasonRideNotJoinable, "owner cannot join own ride %d", rideID)
	}
	if r.HasParticipant(userID) {
		return models.Conflictf(models.ReasonRideNotJoinable, "user %s already holds a seat on ride %d", userID, rideID)
	}
	if r.HasPendingRequest(userID) {
		return nil // duplicate submission against the same ride is a no-op
	}
	active, err := s.Store.HasActivePendingRequest(userID)
	if err != nil {
		return models.StorageErr("check active request", err)
	}
	if active {
		return models.Conflictf(models.ReasonAlreadyActive, "user %s already has a pending request", userID)
	}
	// capacity is deliberately not checked here: a pending bid on a full ride
	// is allowed and only fails at approval time if no seat freed up
	if r.Status == models.RideStarted || r.Status == models.RideCompleted {
		return models.Conflictf(models.ReasonRideNotJoinable, "ride %d is %s", rideID, r.Status)
	}
	if err := s.Store.SaveJoinRequest(rideID, userID); err != nil {
		return models.StorageErr("save join request", err)
	}
	observability.JoinRequestsTotal.Inc()
	s.notify(r.OwnerID, notify.Event{Kind: notify.EventJoinRequested, RideID: rideID, UserID: userID})
	s.Logger.Info("join request submitted", "ride", rideID, "user", userID)
	return nil
}

// Respond resolves a pending request. On accept it bumps capacity, recomputes
// status and only then marks the request accepted, so a failed write can
// never leave an accepted request that was not counted. On reject only the
// request status changes.
func (s *Service) Respond(rideID int64, userID string, accept bool) (*models.Ride, error) {
	mu := s.locks.forRide(rideID)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Store.LoadRide(rideID)
	if err != nil {
		return nil, err
	}
	if !r.HasPendingRequest(userID) {
		return nil, models.NotFoundf(models.ReasonRequestNotFound, "no pending request for %s on ride %d", userID, rideID)
	}

	if !accept {
		if err := s.Store.UpdateJoinRequestStatus(rideID, userID, models.RequestRejected); err != nil {
			return nil, models.StorageErr("reject request", err)
		}
		r.RejectRequest(userID)
		observability.RequestsRejectedTotal.Inc()
		s.notify(userID, notify.Event{Kind: notify.EventRequestResolved, RideID: rideID, UserID: userID})
		s.Logger.Info("join request rejected", "ride", rideID, "user", userID)
		return r, nil
	}

	if !r.ApproveRequest(userID) {
		observability.OverbookRefusedTotal.Inc()
		return nil, models.Conflictf(models.ReasonNotApprovable, "ride %d cannot seat %s now", rideID, userID)
	}
	// capacity first: a crash after this write leaves a counted seat with a
	// still-pending request, which the owner can resolve again; the reverse
	// order could overbook
	if err := s.Store.UpdateRideCapacity(rideID, r.CurrentCapacity); err != nil {
		return nil, models.StorageErr("update capacity", err)
	}
	if r.Status == models.RideFull {
		if err := s.Store.UpdateRideStatus(rideID, models.RideFull); err != nil {
			return nil, models.StorageErr("update status", err)
		}
	}
	if err := s.Store.UpdateJoinRequestStatus(rideID, userID, models.RequestAccepted); err != nil {
		return nil, models.StorageErr("accept request", err)
	}
	observability.RequestsApprovedTotal.Inc()
	if s.Fares != nil {
		s.Fares.HoldShare(rideID, userID, r.Type)
	}
	s.publish(models.RideEventUpdated, r)
	s.notify(userID, notify.Event{Kind: notify.EventRequestResolved, RideID: rideID, UserID: userID, Accepted: true, RideState: string(r.Status)})
	s.Logger.Info("join request approved", "ride", rideID, "user", userID, "capacity", r.CurrentCapacity, "status", r.Status)
	return r, nil
}

// StartRide is the explicit owner action taking a ride out of the joinable
// states.
func (s *Service) StartRide(rideID int64, actorID string) (*models.Ride, error) {
	return s.transition(rideID, actorID, notify.EventRideStarted, (*models.Ride).Start)
}

// CompleteRide moves a started ride to its terminal state and settles any
// outstanding fare holds.
func (s *Service) CompleteRide(rideID int64, actorID string) (*models.Ride, error) {
	r, err := s.transition(rideID, actorID, notify.EventRideCompleted, (*models.Ride).Complete)
	if err == nil && s.Fares != nil {
		s.Fares.SettleRide(rideID)
	}
	return r, err
}

func (s *Service) transition(rideID int64, actorID string, kind string, step func(*models.Ride) error) (*models.Ride, error) {
	mu := s.locks.forRide(rideID)
	mu.Lock()
	defer mu.Unlock()

	r, err := s.Store.LoadRide(rideID)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != "" && r.OwnerID != actorID {
		return nil, models.Conflictf(models.ReasonBadTransition, "only the owner may change ride %d", rideID)
	}
	if err := step(r); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateRideStatus(rideID, r.Status); err != nil {
		return nil, models.StorageErr("update status", err)
	}
	s.publish(models.RideEventUpdated, r)
	for _, p := range r.Participants {
		if p != actorID {
			s.notify(p, notify.Event{Kind: kind, RideID: rideID, RideState: string(r.Status)})
		}
	}
	s.Logger.Info("ride transitioned", "ride", rideID, "status", r.Status)
	return r, nil
}

func (s *Service) publish(kind string, r *models.Ride) {
	if s.Events == nil {
		return
	}
	ev := models.RideEvent{Kind: kind, Ride: *r, At: time.Now().Unix(), Source: "workflow"}
	ev.Ride.Pending = nil
	if err := s.Events.Publish(ev); err != nil {
		s.Logger.Warn("event publish failed", "ride", r.ID, "kind", kind, "error", err)
	}
}

func (s *Service) notify(userID string, ev notify.Event) {
	if s.Notify == nil || userID == "" {
		return
	}
	_ = s.Notify.Notify(userID, ev)
}

func validateRoute(from, to string) error {
	if from == "" || to == "" {
		return models.Validationf(models.ReasonBadRoute, "from and to are required")
	}
	if from == to {
		return models.Validationf(models.ReasonBadRoute, "from and to must differ")
	}
	return nil
}
