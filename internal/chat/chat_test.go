package chat

import (
	"io"
	"log/slog"
	"testing"

	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/storage"
)

func testChat() *Service {
	return NewService(storage.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubAndSpokeRouting(t *testing.T) {
	s := testChat()
	s.SetLead(1, "lead")

	if _, err := s.Send(1, "spoke1", "lead", "hi"); err != nil {
		t.Fatalf("spoke to lead: %v", err)
	}
	if _, err := s.Send(1, "lead", "spoke1", "hello"); err != nil {
		t.Fatalf("lead to spoke: %v", err)
	}
	if _, err := s.Send(1, "spoke1", "spoke2", "psst"); !models.IsConflict(err) {
		t.Fatalf("spoke to spoke allowed: %v", err)
	}
}

func TestSendToUnknownRoom(t *testing.T) {
	s := testChat()
	if _, err := s.Send(9, "a", "b", "x"); !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestOTPGate(t *testing.T) {
	s := testChat()
	s.SetLead(1, "lead")
	s.RequireOTP = true

	if _, err := s.Send(1, "spoke", "lead", "hi"); models.ReasonOf(err) != models.ReasonChatLocked {
		t.Fatalf("locked chat allowed: %v", err)
	}
	code := s.OTP.Initiate("spoke", "lead")
	if !s.OTP.Verify("spoke", "lead", code) || !s.OTP.Verify("lead", "spoke", code) {
		t.Fatal("verify failed with correct code")
	}
	if _, err := s.Send(1, "spoke", "lead", "hi"); err != nil {
		t.Fatalf("unlocked chat refused: %v", err)
	}
}

func TestOTPWrongCode(t *testing.T) {
	m := NewOTPManager()
	m.Initiate("a", "b")
	if m.Verify("a", "b", "000000") && m.Verify("a", "b", "999999") {
		t.Fatal("two different codes both accepted")
	}
	if m.Unlocked("a", "b") {
		t.Fatal("unlocked without both sides verifying")
	}
}

func TestOTPFullVerification(t *testing.T) {
	m := NewOTPManager()
	code := m.Initiate("a", "b")
	m.Verify("a", "b", code)
	m.Verify("b", "a", code)
	if m.FullyVerified("a", "b") {
		t.Fatal("fully verified before identity confirmation")
	}
	m.ConfirmIdentity("a", "b", true, true)
	if !m.FullyVerified("a", "b") {
		t.Fatal("full verification not recognized")
	}
}

func TestHistoryPersisted(t *testing.T) {
	s := testChat()
	s.SetLead(1, "lead")
	s.Send(1, "spoke", "lead", "one")
	s.Send(1, "lead", "spoke", "two")
	msgs, err := s.History(1)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("history = %v, %v", msgs, err)
	}
	if msgs[0].Text != "one" || msgs[1].Text != "two" {
		t.Fatalf("order wrong: %v", msgs)
	}
}

func TestTailBounded(t *testing.T) {
	s := testChat()
	s.SetLead(1, "lead")
	s.HistoryLimit = 3
	for i := 0; i < 5; i++ {
		s.Send(1, "spoke", "lead", "m")
	}
	if got := len(s.Tail(1)); got != 3 {
		t.Fatalf("tail = %d, want 3", got)
	}
}

func TestLeadRecoveredFromStorageAfterRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ride := models.NewRide("alice", "Gulshan", "NED Campus", "now", "offer", models.RideTypeBike, false, "")
	id, err := store.SaveRide(ride)
	if err != nil {
		t.Fatal(err)
	}

	// fresh service over the same store, as after a process restart: the
	// leads map is empty but the room must still route
	s := NewService(store, logger)
	if got := s.Lead(id); got != "alice" {
		t.Fatalf("lead = %q, want alice", got)
	}
	if _, err := s.Send(id, "bob", "alice", "still there?"); err != nil {
		t.Fatalf("send after restart: %v", err)
	}
}

func TestLeaderlessLeadIsFirstParticipant(t *testing.T) {
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ride := models.NewRide("", "Gulshan", "NED Campus", "flexible", "request", models.RideTypeRickshaw, false, "")
	ride.CurrentCapacity = 1
	ride.Participants = []string{"carol"}
	id, err := store.SaveRide(ride)
	if err != nil {
		t.Fatal(err)
	}

	s := NewService(store, logger)
	if got := s.Lead(id); got != "carol" {
		t.Fatalf("lead = %q, want carol", got)
	}
}
