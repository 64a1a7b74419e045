package models

import "time"

// Ride is the aggregate the whole system revolves around: a capacity-bounded
// set of participants travelling between two named areas. The entity owns its
// own invariants; callers mutate it only through the methods below and persist
// the result through storage.
//
// A ride with an empty OwnerID is a leaderless aggregation created when a
// search found nothing and the requester became the ad-hoc lead.
type Ride struct {
	ID              int64         `json:"ride_id"`
	OwnerID         string        `json:"owner_id,omitempty"`
	From            string        `json:"from"`
	To              string        `json:"to"`
	Departure       string        `json:"time"` // free text, "now" / "flexible"
	Mode            string        `json:"mode"`
	Type            RideType      `json:"ride_type"`
	CurrentCapacity int           `json:"current_capacity"`
	MaxCapacity     int           `json:"max_capacity"`
	Status          RideStatus    `json:"status"`
	FemalesOnly     bool          `json:"females_only"`
	GenderPref      string        `json:"gender_preference"`
	Participants    []string      `json:"participants,omitempty"`
	Pending         []JoinRequest `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewRide builds an unpersisted ride (ID zero until storage assigns one).
// The owner, when present, occupies the first seat.
func NewRide(ownerID, from, to, departure, mode string, t RideType, femalesOnly bool, genderPref string) *Ride {
	if genderPref == "" {
		genderPref = GenderAny
	}
	r := &Ride{
		OwnerID:     ownerID,
		From:        from,
		To:          to,
		Departure:   departure,
		Mode:        mode,
		Type:        t,
		MaxCapacity: t.MaxCapacity(),
		Status:      RideOpen,
		FemalesOnly: femalesOnly,
		GenderPref:  genderPref,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if ownerID != "" {
		r.CurrentCapacity = 1
		r.Participants = []string{ownerID}
	}
	return r
}

// CanAcceptMore reports whether a join could currently be approved.
func (r *Ride) CanAcceptMore() bool {
	return r.Status == RideOpen && r.CurrentCapacity < r.MaxCapacity
}

// AvailableSlots is safe to call in any state; listing endpoints use it for
// display even on full or started rides.
func (r *Ride) AvailableSlots() int { return r.MaxCapacity - r.CurrentCapacity }

// HasParticipant reports whether userID already holds a seat, either in the
// participant list or through an accepted request entry.
func (r *Ride) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	for _, jr := range r.Pending {
		if jr.UserID == userID && jr.Status == RequestAccepted {
			return true
		}
	}
	return false
}

// HasPendingRequest reports whether userID holds a pending entry on this ride.
func (r *Ride) HasPendingRequest(userID string) bool {
	for _, jr := range r.Pending {
		if jr.UserID == userID && jr.Status == RequestPending {
			return true
		}
	}
	return false
}

// AddJoinRequest appends a pending entry for userID. It is a no-op when a
// pending entry already exists or the ride cannot accept more; it never
// touches capacity.
func (r *Ride) AddJoinRequest(userID string) bool {
	if r.HasPendingRequest(userID) || !r.CanAcceptMore() {
		return false
	}
	r.Pending = append(r.Pending, JoinRequest{
		RideID:    r.ID,
		UserID:    userID,
		Status:    RequestPending,
		CreatedAt: time.Now(),
	})
	return true
}

// ApproveRequest marks userID's pending entry accepted, seats the user and
// bumps capacity. A false return means "not approvable now" (no pending entry,
// or no seat left), not a fatal error.
func (r *Ride) ApproveRequest(userID string) bool {
	if !r.CanAcceptMore() {
		return false
	}
	for i := range r.Pending {
		if r.Pending[i].UserID == userID && r.Pending[i].Status == RequestPending {
			r.Pending[i].Status = RequestAccepted
			r.Participants = append(r.Participants, userID)
			r.CurrentCapacity++
			r.UpdateStatus()
			r.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// RejectRequest marks userID's pending entry rejected. No capacity effect.
func (r *Ride) RejectRequest(userID string) bool {
	for i := range r.Pending {
		if r.Pending[i].UserID == userID && r.Pending[i].Status == RequestPending {
			r.Pending[i].Status = RequestRejected
			r.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// UpdateStatus recomputes the capacity-driven half of the state machine.
// Idempotent: open flips to full at capacity, full reverts to open when a seat
// frees up, started and completed are never touched.
func (r *Ride) UpdateStatus() {
	switch r.Status {
	case RideOpen:
		if r.CurrentCapacity >= r.MaxCapacity {
			r.Status = RideFull
		}
	case RideFull:
		if r.CurrentCapacity < r.MaxCapacity {
			r.Status = RideOpen
		}
	}
}

// Start is the explicit owner action moving the ride out of the joinable
// states. Starting twice, or starting a completed ride, is a conflict.
func (r *Ride) Start() error {
	if r.Status == RideStarted || r.Status == RideCompleted {
		return Conflictf(ReasonBadTransition, "ride %d is already %s", r.ID, r.Status)
	}
	r.Status = RideStarted
	r.UpdatedAt = time.Now()
	return nil
}

// Complete moves a started ride to its terminal state.
func (r *Ride) Complete() error {
	if r.Status == RideCompleted {
		return Conflictf(ReasonBadTransition, "ride %d is already completed", r.ID)
	}
	if r.Status != RideStarted {
		return Conflictf(ReasonBadTransition, "ride %d has not started", r.ID)
	}
	r.Status = RideCompleted
	r.UpdatedAt = time.Now()
	return nil
}
