package models

import (
	"fmt"
	"time"
)

// RideType distinguishes the vehicle class a ride is offered for. Capacity
// rules depend on it, see MaxCapacity.
type RideType string

const (
	RideTypeBike     RideType = "bike"
	RideTypeCarpool  RideType = "carpool"
	RideTypeRickshaw RideType = "rickshaw"
)

// ParseRideType maps the wire representation to a closed enum so invalid
// strings are rejected at the boundary instead of leaking into storage.
func ParseRideType(s string) (RideType, error) {
	switch RideType(s) {
	case RideTypeBike, RideTypeCarpool, RideTypeRickshaw:
		return RideType(s), nil
	}
	return "", fmt.Errorf("unknown ride type %q", s)
}

// MaxCapacity returns the seat count for the type, owner included where one
// exists. Carpool capacity counts the owner as one of the four seats; this is
// a fixed business rule.
func (t RideType) MaxCapacity() int {
	switch t {
	case RideTypeBike:
		return 2
	case RideTypeRickshaw:
		return 3
	default:
		return 4
	}
}

// HasOwner reports whether rides of this type are owner-led. Rickshaw rides
// are leaderless aggregations booked externally.
func (t RideType) HasOwner() bool { return t != RideTypeRickshaw }

// RideStatus is the ride lifecycle state.
type RideStatus string

const (
	RideOpen      RideStatus = "open"
	RideFull      RideStatus = "full"
	RideStarted   RideStatus = "started"
	RideCompleted RideStatus = "completed"
)

func ParseRideStatus(s string) (RideStatus, error) {
	switch RideStatus(s) {
	case RideOpen, RideFull, RideStarted, RideCompleted:
		return RideStatus(s), nil
	}
	return "", fmt.Errorf("unknown ride status %q", s)
}

// RequestStatus is the state of a join request. A request transitions out of
// pending exactly once.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Gender values as recorded on user profiles. Ride preferences use the same
// vocabulary plus "any".
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderAny    = "any"
)

// JoinRequest is one user's bid to join one ride.
type JoinRequest struct {
	RideID    int64         `json:"ride_id"`
	UserID    string        `json:"user_id"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// User is the requester profile the matcher needs; registration fills it.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Gender       string `json:"gender"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	GenderPref   string `json:"gender_preference,omitempty"`
	VehiclePref  string `json:"vehicle_preference,omitempty"`
}

// LocationEdge is one precomputed proximity edge between two named areas.
type LocationEdge struct {
	Area1      string  `json:"area1" yaml:"area1"`
	Area2      string  `json:"area2" yaml:"area2"`
	DistanceKm float64 `json:"distance_km" yaml:"distance_km"`
}

// Message is a persisted chat message scoped to a ride room.
type Message struct {
	RideID    int64     `json:"ride_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// RideEvent is published to Kafka whenever a ride is created or its
// capacity/status changes; the consumer keeps the route board current.
type RideEvent struct {
	Kind   string `json:"kind"` // "created" or "updated"
	Ride   Ride   `json:"ride"`
	At     int64  `json:"at_unix"`
	Source string `json:"source,omitempty"`
}

const (
	RideEventCreated = "created"
	RideEventUpdated = "updated"
)
