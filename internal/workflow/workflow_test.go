package workflow

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/notify"
	"github.com/example/uniride/internal/storage"
)

func testService() (*Service, *storage.MemoryStore) {
	st := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, logger), st
}

func offerBike(t *testing.T, s *Service, owner string) *models.Ride {
	t.Helper()
	r, err := s.OfferRide(owner, "Gulshan", "NED Campus", "now", "offer", models.RideTypeBike, false, "")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestOfferRideValidation(t *testing.T) {
	s, _ := testService()
	if _, err := s.OfferRide("a", "", "Y", "now", "offer", models.RideTypeBike, false, ""); models.KindOf(err) != models.KindValidation {
		t.Fatalf("missing from: err = %v", err)
	}
	if _, err := s.OfferRide("a", "X", "X", "now", "offer", models.RideTypeBike, false, ""); models.KindOf(err) != models.KindValidation {
		t.Fatalf("same endpoints: err = %v", err)
	}
	if _, err := s.OfferRide("a", "X", "Y", "now", "offer", models.RideTypeRickshaw, false, ""); models.KindOf(err) != models.KindValidation {
		t.Fatalf("rickshaw offer: err = %v", err)
	}
}

func TestLeadNewRideRickshawIsLeaderless(t *testing.T) {
	s, _ := testService()
	r, err := s.LeadNewRide("u1", "X", "Y", models.RideTypeRickshaw)
	if err != nil {
		t.Fatal(err)
	}
	if r.OwnerID != "" {
		t.Fatalf("rickshaw ride has owner %q", r.OwnerID)
	}
	if r.CurrentCapacity != 1 || len(r.Participants) != 1 || r.Participants[0] != "u1" {
		t.Fatalf("requester not seated: cap=%d participants=%v", r.CurrentCapacity, r.Participants)
	}
}

func TestSubmitRespondApproveFlow(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")

	if err := s.SubmitJoinRequest(r.ID, "B"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Respond(r.ID, "B", true)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentCapacity != 2 || got.Status != models.RideFull {
		t.Fatalf("after approve: cap=%d status=%s", got.CurrentCapacity, got.Status)
	}
	if got.Participants[1] != "B" {
		t.Fatalf("B not seated: %v", got.Participants)
	}

	// read-after-write: a reload must observe the new capacity
	reloaded, _ := s.Store.LoadRide(r.ID)
	if reloaded.CurrentCapacity != 2 || reloaded.Status != models.RideFull {
		t.Fatalf("store stale: cap=%d status=%s", reloaded.CurrentCapacity, reloaded.Status)
	}
}

func TestSubmitAllowedOnFullRideButApprovalFails(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	s.SubmitJoinRequest(r.ID, "B")
	if _, err := s.Respond(r.ID, "B", true); err != nil {
		t.Fatal(err)
	}
	// ride is now full; C may still queue a bid
	if err := s.SubmitJoinRequest(r.ID, "C"); err != nil {
		t.Fatalf("submission on full ride: %v", err)
	}
	if _, err := s.Respond(r.ID, "C", true); !models.IsConflict(err) {
		t.Fatalf("approve past capacity: err = %v, want conflict", err)
	}
	reloaded, _ := s.Store.LoadRide(r.ID)
	if reloaded.CurrentCapacity != reloaded.MaxCapacity {
		t.Fatalf("capacity corrupted: %d", reloaded.CurrentCapacity)
	}
}

func TestOneGlobalPendingRequestPerUser(t *testing.T) {
	s, _ := testService()
	r1 := offerBike(t, s, "A")
	r2, _ := s.OfferRide("Z", "Saddar", "NED Campus", "now", "offer", models.RideTypeCarpool, false, "")

	if err := s.SubmitJoinRequest(r1.ID, "B"); err != nil {
		t.Fatal(err)
	}
	err := s.SubmitJoinRequest(r2.ID, "B")
	if !models.IsConflict(err) || models.ReasonOf(err) != models.ReasonAlreadyActive {
		t.Fatalf("second request: err = %v", err)
	}
	// resubmission against the same ride is an idempotent no-op
	if err := s.SubmitJoinRequest(r1.ID, "B"); err != nil {
		t.Fatalf("duplicate submission: %v", err)
	}
	// after rejection the user may request elsewhere
	if _, err := s.Respond(r1.ID, "B", false); err != nil {
		t.Fatal(err)
	}
	if err := s.SubmitJoinRequest(r2.ID, "B"); err != nil {
		t.Fatalf("request after rejection: %v", err)
	}
}

func TestOwnerCannotJoinOwnRide(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	if err := s.SubmitJoinRequest(r.ID, "A"); !models.IsConflict(err) {
		t.Fatalf("owner join: err = %v", err)
	}
}

func TestSubmitAgainstStartedRideFails(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	if _, err := s.StartRide(r.ID, "A"); err != nil {
		t.Fatal(err)
	}
	err := s.SubmitJoinRequest(r.ID, "B")
	if !models.IsConflict(err) || models.ReasonOf(err) != models.ReasonRideNotJoinable {
		t.Fatalf("submit on started ride: err = %v", err)
	}
}

func TestRespondRequestNotFound(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	if _, err := s.Respond(r.ID, "ghost", true); !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
	if _, err := s.Respond(404, "ghost", true); !models.IsNotFound(err) {
		t.Fatalf("unknown ride: err = %v", err)
	}
}

func TestRejectLeavesCapacityAlone(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	s.SubmitJoinRequest(r.ID, "B")
	if _, err := s.Respond(r.ID, "B", false); err != nil {
		t.Fatal(err)
	}
	reloaded, _ := s.Store.LoadRide(r.ID)
	if reloaded.CurrentCapacity != 1 || reloaded.Status != models.RideOpen {
		t.Fatalf("reject mutated ride: cap=%d status=%s", reloaded.CurrentCapacity, reloaded.Status)
	}
}

func TestLifecycleOwnerOnly(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	if _, err := s.StartRide(r.ID, "B"); !models.IsConflict(err) {
		t.Fatalf("non-owner start: err = %v", err)
	}
	if _, err := s.StartRide(r.ID, "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartRide(r.ID, "A"); !models.IsConflict(err) {
		t.Fatalf("double start: err = %v", err)
	}
	if _, err := s.CompleteRide(r.ID, "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CompleteRide(r.ID, "A"); !models.IsConflict(err) {
		t.Fatalf("double complete: err = %v", err)
	}
}

// One remaining seat, many racing approvals: exactly one may win.
func TestConcurrentApprovalsNeverOverbook(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A") // one free seat

	const n = 16
	users := make([]string, n)
	for i := range users {
		users[i] = string(rune('b' + i))
		s.SubmitJoinRequest(r.ID, users[i])
	}

	var wg sync.WaitGroup
	results := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := s.Respond(r.ID, u, true)
			results <- err
		}(u)
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case models.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Fatalf("ok=%d conflicts=%d, want exactly one success", ok, conflicts)
	}
	reloaded, _ := s.Store.LoadRide(r.ID)
	if reloaded.CurrentCapacity > reloaded.MaxCapacity {
		t.Fatalf("overbooked: %d/%d", reloaded.CurrentCapacity, reloaded.MaxCapacity)
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Notify(userID string, ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func TestOwnerNotifiedOnSubmission(t *testing.T) {
	s, _ := testService()
	cn := &captureNotifier{}
	s.Notify = cn
	r := offerBike(t, s, "A")
	s.SubmitJoinRequest(r.ID, "B")
	if len(cn.events) != 1 || cn.events[0].Kind != notify.EventJoinRequested {
		t.Fatalf("events = %+v", cn.events)
	}
}

func TestSeatedRiderCannotResubmit(t *testing.T) {
	s, _ := testService()
	r, err := s.OfferRide("A", "Gulshan", "NED Campus", "now", "offer", models.RideTypeCarpool, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SubmitJoinRequest(r.ID, "B"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Respond(r.ID, "B", true); err != nil {
		t.Fatal(err)
	}

	err = s.SubmitJoinRequest(r.ID, "B")
	if !models.IsConflict(err) || models.ReasonOf(err) != models.ReasonRideNotJoinable {
		t.Fatalf("seated rider resubmitted: err = %v", err)
	}
	if _, err := s.Respond(r.ID, "B", true); !models.IsNotFound(err) {
		t.Fatalf("second approval of B: err = %v, want not-found", err)
	}
	reloaded, _ := s.Store.LoadRide(r.ID)
	if reloaded.CurrentCapacity != 2 {
		t.Fatalf("B counted twice: cap=%d participants=%v", reloaded.CurrentCapacity, reloaded.Participants)
	}
}

func TestReloadSeatsApprovedRider(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	s.SubmitJoinRequest(r.ID, "B")
	if _, err := s.Respond(r.ID, "B", true); err != nil {
		t.Fatal(err)
	}
	reloaded, err := s.Store.LoadRide(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Participants) != 2 || reloaded.Participants[1] != "B" {
		t.Fatalf("reload lost the approved rider: cap=%d participants=%v",
			reloaded.CurrentCapacity, reloaded.Participants)
	}
}

func TestApprovedRiderNotifiedOfLifecycle(t *testing.T) {
	s, _ := testService()
	r := offerBike(t, s, "A")
	s.SubmitJoinRequest(r.ID, "B")
	if _, err := s.Respond(r.ID, "B", true); err != nil {
		t.Fatal(err)
	}

	cn := &captureNotifier{}
	s.Notify = cn
	if _, err := s.StartRide(r.ID, "A"); err != nil {
		t.Fatal(err)
	}
	if len(cn.events) != 1 || cn.events[0].Kind != notify.EventRideStarted {
		t.Fatalf("B not told the ride started: events = %+v", cn.events)
	}
}
