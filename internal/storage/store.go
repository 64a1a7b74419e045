package storage

import (
	"sort"
	"sync"

	"github.com/example/uniride/internal/models"
)

// Store is the persistence collaborator the core depends on. Implementations
// must enforce referential integrity and identifier uniqueness; the core only
// asks for consistent reads and durable writes.
type Store interface {
	LoadAllRides() ([]*models.Ride, error)
	LoadRide(id int64) (*models.Ride, error)
	SaveRide(r *models.Ride) (int64, error)
	UpdateRideCapacity(id int64, capacity int) error
	UpdateRideStatus(id int64, status models.RideStatus) error

	HasActivePendingRequest(userID string) (bool, error)
	SaveJoinRequest(rideID int64, userID string) error
	UpdateJoinRequestStatus(rideID int64, userID string, status models.RequestStatus) error
	PendingRequests(rideID int64) ([]models.JoinRequest, error)

	SaveUser(u models.User) error
	UserByID(id string) (*models.User, error)
	UserByEmail(email string) (*models.User, error)
	UpdateUserPreferences(userID, genderPref, vehiclePref string) error

	LocationEdges() ([]models.LocationEdge, error)

	SaveMessage(m models.Message) error
	MessagesForRide(rideID int64) ([]models.Message, error)
}

// MemoryStore keeps everything in maps behind one mutex. It backs unit tests
// and local runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	rides    map[int64]*models.Ride
	requests map[int64][]models.JoinRequest
	users    map[string]models.User
	emails   map[string]string
	edges    []models.LocationEdge
	messages map[int64][]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		rides:    make(map[int64]*models.Ride),
		requests: make(map[int64][]models.JoinRequest),
		users:    make(map[string]models.User),
		emails:   make(map[string]string),
		messages: make(map[int64][]models.Message),
	}
}

func (m *MemoryStore) LoadAllRides() ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		out = append(out, m.copyRideLocked(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) LoadRide(id int64) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
	}
	return m.copyRideLocked(r), nil
}

func (m *MemoryStore) SaveRide(r *models.Ride) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.nextID
		m.nextID++
	}
	cp := *r
	cp.Participants = append([]string(nil), r.Participants...)
	cp.Pending = nil
	m.rides[r.ID] = &cp
	return r.ID, nil
}

func (m *MemoryStore) UpdateRideCapacity(id int64, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
	}
	r.CurrentCapacity = capacity
	return nil
}

func (m *MemoryStore) UpdateRideStatus(id int64, status models.RideStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return models.NotFoundf(models.ReasonRideNotFound, "ride %d", id)
	}
	r.Status = status
	return nil
}

func (m *MemoryStore) HasActivePendingRequest(userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, reqs := range m.requests {
		for _, jr := range reqs {
			if jr.UserID == userID && jr.Status == models.RequestPending {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *MemoryStore) SaveJoinRequest(rideID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, jr := range m.requests[rideID] {
		if jr.UserID == userID && jr.Status == models.RequestPending {
			return nil // idempotent on duplicate submission
		}
	}
	m.requests[rideID] = append(m.requests[rideID], models.JoinRequest{
		RideID: rideID,
		UserID: userID,
		Status: models.RequestPending,
	})
	return nil
}

func (m *MemoryStore) UpdateJoinRequestStatus(rideID int64, userID string, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := m.requests[rideID]
	for i := range reqs {
		if reqs[i].UserID == userID && reqs[i].Status == models.RequestPending {
			reqs[i].Status = status
			return nil
		}
	}
	return models.NotFoundf(models.ReasonRequestNotFound, "no pending request for %s on ride %d", userID, rideID)
}

func (m *MemoryStore) PendingRequests(rideID int64) ([]models.JoinRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.JoinRequest
	for _, jr := range m.requests[rideID] {
		if jr.Status == models.RequestPending {
			out = append(out, jr)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveUser(u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) UserByID(id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.NotFoundf(models.ReasonUserNotFound, "user %s", id)
	}
	return &u, nil
}

func (m *MemoryStore) UserByEmail(email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, models.NotFoundf(models.ReasonUserNotFound, "email %s", email)
	}
	u := m.users[id]
	return &u, nil
}

func (m *MemoryStore) UpdateUserPreferences(userID, genderPref, vehiclePref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.NotFoundf(models.ReasonUserNotFound, "user %s", userID)
	}
	u.GenderPref = genderPref
	u.VehiclePref = vehiclePref
	m.users[userID] = u
	return nil
}

func (m *MemoryStore) LocationEdges() ([]models.LocationEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.LocationEdge(nil), m.edges...), nil
}

// SetLocationEdges seeds the edge list; tests and local runs use it in place
// of the graph builder.
func (m *MemoryStore) SetLocationEdges(edges []models.LocationEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append([]models.LocationEdge(nil), edges...)
}

func (m *MemoryStore) SaveMessage(msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.RideID] = append(m.messages[msg.RideID], msg)
	return nil
}

func (m *MemoryStore) MessagesForRide(rideID int64) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Message(nil), m.messages[rideID]...), nil
}

// copyRideLocked rebuilds the participant list from the accepted requests the
// same way the SQL stores do, so a reload after an approval always shows the
// approved rider seated.
func (m *MemoryStore) copyRideLocked(r *models.Ride) *models.Ride {
	cp := *r
	cp.Pending = append([]models.JoinRequest(nil), m.requests[r.ID]...)
	if r.OwnerID != "" {
		cp.Participants = []string{r.OwnerID}
	} else {
		// leaderless aggregations seat their first rider at creation with no
		// request entry; keep that seed
		cp.Participants = append([]string(nil), r.Participants...)
	}
	for _, jr := range cp.Pending {
		if jr.Status == models.RequestAccepted {
			cp.Participants = append(cp.Participants, jr.UserID)
		}
	}
	return &cp
}
