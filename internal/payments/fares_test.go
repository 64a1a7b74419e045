package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/example/uniride/internal/models"
)

type fakeGateway struct {
	failHold bool
	holds    []string
	captured []string
	released []string
}

func (f *fakeGateway) HoldSeatShare(ctx context.Context, amount int64, currency string, rideID int64, userID string) (string, error) {
	if f.failHold {
		return "", errors.New("card declined")
	}
	id := "pi_" + userID
	f.holds = append(f.holds, id)
	return id, nil
}

func (f *fakeGateway) CaptureSeatShare(ctx context.Context, intentID string) error {
	f.captured = append(f.captured, intentID)
	return nil
}

func (f *fakeGateway) ReleaseSeatShare(ctx context.Context, intentID string) error {
	f.released = append(f.released, intentID)
	return nil
}

func testSplitter(g Gateway) *FareSplitter {
	return NewFareSplitter(g, "pkr", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSettleCapturesAllHolds(t *testing.T) {
	g := &fakeGateway{}
	f := testSplitter(g)
	f.HoldShare(1, "bob", models.RideTypeCarpool)
	f.HoldShare(1, "carol", models.RideTypeCarpool)
	f.SettleRide(1)
	if len(g.captured) != 2 {
		t.Fatalf("captured %d holds, want 2", len(g.captured))
	}
	if len(g.released) != 0 {
		t.Fatalf("unexpected releases: %v", g.released)
	}
	// settling again is a no-op; the holds were consumed
	f.SettleRide(1)
	if len(g.captured) != 2 {
		t.Fatalf("second settle recaptured: %v", g.captured)
	}
}

func TestReleaseCancelsHolds(t *testing.T) {
	g := &fakeGateway{}
	f := testSplitter(g)
	f.HoldShare(2, "bob", models.RideTypeBike)
	f.ReleaseRide(2)
	if len(g.released) != 1 || len(g.captured) != 0 {
		t.Fatalf("released=%v captured=%v", g.released, g.captured)
	}
}

func TestFailedHoldIsBestEffort(t *testing.T) {
	g := &fakeGateway{failHold: true}
	f := testSplitter(g)
	f.HoldShare(3, "bob", models.RideTypeBike)
	f.SettleRide(3)
	if len(g.captured) != 0 {
		t.Fatalf("captured a hold that never succeeded: %v", g.captured)
	}
}
