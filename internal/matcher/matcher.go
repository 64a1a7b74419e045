package matcher

import (
	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/observability"
)

// Store is the slice of storage the matcher needs: candidate rides plus the
// requester profile for eligibility context.
type Store interface {
	LoadAllRides() ([]*models.Ride, error)
	UserByID(id string) (*models.User, error)
}

// Proximity answers whether two named areas are near enough to match.
type Proximity interface {
	Connected(a, b string) bool
}

// Query is one search for joinable rides.
type Query struct {
	From             string
	To               string
	Type             models.RideType
	RequesterID      string
	WantsFemalesOnly bool
}

// Service filters the ride table down to the set a requester may join.
type Service struct {
	Store Store
	Graph Proximity
}

// FindMatches applies the filter pipeline: ride type, open with a free seat,
// not the requester's own ride, both endpoints within proximity range, then
// gender eligibility. No matches is an empty result, never an error.
func (s *Service) FindMatches(q Query) ([]*models.Ride, error) {
	rides, err := s.Store.LoadAllRides()
	if err != nil {
		return nil, models.StorageErr("load rides", err)
	}

	var gender, pref string
	if q.RequesterID != "" {
		if u, err := s.Store.UserByID(q.RequesterID); err == nil {
			gender = u.Gender
			pref = u.GenderPref
		}
		// an unknown requester still matches general rides; the eligibility
		// table treats the empty gender as the unknown branch
	}

	matches := make([]*models.Ride, 0, len(rides))
	seen := make(map[int64]bool, len(rides))
	for _, r := range rides {
		if r.Type != q.Type {
			continue
		}
		if r.Status != models.RideOpen || r.CurrentCapacity >= r.MaxCapacity {
			continue
		}
		if q.RequesterID != "" && r.OwnerID == q.RequesterID {
			continue
		}
		if !s.Graph.Connected(q.From, r.From) || !s.Graph.Connected(q.To, r.To) {
			continue
		}
		if !eligible(eligibility{
			RequesterGender:  gender,
			RequesterPref:    pref,
			WantsFemalesOnly: q.WantsFemalesOnly,
			RideFemalesOnly:  r.FemalesOnly,
			RidePref:         r.GenderPref,
		}) {
			continue
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		matches = append(matches, r)
	}
	observability.SearchesTotal.Inc()
	return matches, nil
}
