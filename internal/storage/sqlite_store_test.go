package storage

import (
	"path/filepath"
	"testing"

	"github.com/example/uniride/internal/models"
)

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "rides.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func savedRide(t *testing.T, s *SQLiteStore, owner string) int64 {
	t.Helper()
	r := models.NewRide(owner, "Gulshan", "NED Campus", "now", "offer", models.RideTypeCarpool, false, "")
	id, err := s.SaveRide(r)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestSQLiteResubmitAfterRejectionIsPendingAgain(t *testing.T) {
	s := testSQLiteStore(t)
	id := savedRide(t, s, "A")

	if err := s.SaveJoinRequest(id, "B"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJoinRequestStatus(id, "B", models.RequestRejected); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveJoinRequest(id, "B"); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	pending, err := s.PendingRequests(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].UserID != "B" {
		t.Fatalf("pending = %v, want B back in the queue", pending)
	}
	// and the revived request resolves normally
	if err := s.UpdateJoinRequestStatus(id, "B", models.RequestAccepted); err != nil {
		t.Fatalf("revived request not resolvable: %v", err)
	}
}

func TestSQLiteResubmitNeverTouchesAcceptedRow(t *testing.T) {
	s := testSQLiteStore(t)
	id := savedRide(t, s, "A")

	s.SaveJoinRequest(id, "B")
	if err := s.UpdateJoinRequestStatus(id, "B", models.RequestAccepted); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveJoinRequest(id, "B"); err != nil {
		t.Fatalf("resubmit over accepted: %v", err)
	}
	pending, _ := s.PendingRequests(id)
	if len(pending) != 0 {
		t.Fatalf("accepted row demoted to pending: %v", pending)
	}
	r, err := s.LoadRide(id)
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasParticipant("B") {
		t.Fatalf("accepted rider lost: participants=%v pending=%v", r.Participants, r.Pending)
	}
}

func TestSQLiteLoadDerivesParticipants(t *testing.T) {
	s := testSQLiteStore(t)
	id := savedRide(t, s, "A")
	s.SaveJoinRequest(id, "B")
	s.UpdateJoinRequestStatus(id, "B", models.RequestAccepted)

	r, err := s.LoadRide(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Participants) != 2 || r.Participants[0] != "A" || r.Participants[1] != "B" {
		t.Fatalf("participants = %v, want [A B]", r.Participants)
	}
}
