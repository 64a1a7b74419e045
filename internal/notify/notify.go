package notify

// Event is a best-effort nudge delivered to a user's client when something
// happens to a ride they own or asked to join.
type Event struct {
	Kind      string `json:"kind"`
	RideID    int64  `json:"ride_id"`
	UserID    string `json:"user_id,omitempty"`
	Accepted  bool   `json:"accepted,omitempty"`
	RideState string `json:"ride_state,omitempty"`
}

const (
	EventJoinRequested   = "join_requested"
	EventRequestResolved = "request_resolved"
	EventRideStarted     = "ride_started"
	EventRideCompleted   = "ride_completed"
)

// Notifier delivers an event to one user. Delivery is best-effort: the
// workflow never fails an operation because a notification could not be sent.
type Notifier interface {
	Notify(userID string, ev Event) error
}

// Multi fans an event out to several notifiers, stopping at the first that
// reports success.
type Multi []Notifier

func (m Multi) Notify(userID string, ev Event) error {
	var last error
	for _, n := range m {
		if err := n.Notify(userID, ev); err == nil {
			return nil
		} else {
			last = err
		}
	}
	return last
}
