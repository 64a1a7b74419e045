package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/uniride/internal/models"
)

type fakeBoard struct {
	failUpdates int // number of Update calls to fail before succeeding
	failRemoves int
	updates     int
	removes     int
}

func (f *fakeBoard) Update(ctx context.Context, r models.Ride) error {
	f.updates++
	if f.updates <= f.failUpdates {
		return errors.New("update fail")
	}
	return nil
}

func (f *fakeBoard) Remove(ctx context.Context, rideID int64) error {
	f.removes++
	if f.removes <= f.failRemoves {
		return errors.New("remove fail")
	}
	return nil
}

func openRideEvent() models.RideEvent {
	r := models.NewRide("alice", "Gulshan", "Campus", "now", "offer", models.RideTypeBike, false, models.GenderAny)
	r.ID = 7
	return models.RideEvent{Kind: models.RideEventCreated, Ride: *r}
}

func TestApplyWithRetrySucceedsAfterRetries(t *testing.T) {
	f := &fakeBoard{failUpdates: 1}
	start := time.Now()
	if err := applyWithRetry(context.Background(), f, openRideEvent(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.updates < 2 {
		t.Fatalf("expected a retry, got %d calls", f.updates)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestApplyWithRetryFailsWhenExhausted(t *testing.T) {
	f := &fakeBoard{failUpdates: 5}
	if err := applyWithRetry(context.Background(), f, openRideEvent(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestNonOpenRideIsRemovedFromBoard(t *testing.T) {
	f := &fakeBoard{}
	ev := openRideEvent()
	ev.Ride.Status = models.RideFull
	if err := applyWithRetry(context.Background(), f, ev, 3, time.Millisecond); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if f.removes != 1 || f.updates != 0 {
		t.Fatalf("expected remove-only, got updates=%d removes=%d", f.updates, f.removes)
	}
}
