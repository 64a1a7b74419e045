package payments

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/uniride/internal/models"
)

// Gateway is the slice of the card processor the fare splitter needs.
type Gateway interface {
	HoldSeatShare(ctx context.Context, amount int64, currency string, rideID int64, userID string) (string, error)
	CaptureSeatShare(ctx context.Context, intentID string) error
	ReleaseSeatShare(ctx context.Context, intentID string) error
}

// Flat per-seat fares in the smallest currency unit. Campus routes are short
// enough that distance pricing is not worth the complexity.
var seatFare = map[models.RideType]int64{
	models.RideTypeBike:     5000,
	models.RideTypeCarpool:  15000,
	models.RideTypeRickshaw: 10000,
}

// FareSplitter places and settles per-participant holds. All operations are
// best-effort from the workflow's point of view: a failed hold never blocks
// an approval, it is just logged.
type FareSplitter struct {
	gateway  Gateway
	currency string
	logger   *slog.Logger

	mu    sync.Mutex
	holds map[int64]map[string]string // rideID -> userID -> payment intent
}

func NewFareSplitter(g Gateway, currency string, logger *slog.Logger) *FareSplitter {
	if currency == "" {
		currency = "pkr"
	}
	return &FareSplitter{gateway: g, currency: currency, logger: logger, holds: make(map[int64]map[string]string)}
}

// HoldShare places a manual-capture hold for one participant's seat.
func (f *FareSplitter) HoldShare(rideID int64, userID string, t models.RideType) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := f.gateway.HoldSeatShare(ctx, seatFare[t], f.currency, rideID, userID)
	if err != nil {
		f.logger.Warn("fare hold failed", "ride", rideID, "user", userID, "error", err)
		return
	}
	f.mu.Lock()
	if f.holds[rideID] == nil {
		f.holds[rideID] = make(map[string]string)
	}
	f.holds[rideID][userID] = id
	f.mu.Unlock()
}

// SettleRide captures every outstanding hold for a completed ride.
func (f *FareSplitter) SettleRide(rideID int64) {
	f.settle(rideID, true)
}

// ReleaseRide cancels every outstanding hold, e.g. when a ride never starts.
func (f *FareSplitter) ReleaseRide(rideID int64) {
	f.settle(rideID, false)
}

func (f *FareSplitter) settle(rideID int64, capture bool) {
	f.mu.Lock()
	holds := f.holds[rideID]
	delete(f.holds, rideID)
	f.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for userID, intent := range holds {
		var err error
		if capture {
			err = f.gateway.CaptureSeatShare(ctx, intent)
		} else {
			err = f.gateway.ReleaseSeatShare(ctx, intent)
		}
		if err != nil {
			f.logger.Warn("fare settle failed", "ride", rideID, "user", userID, "capture", capture, "error", err)
		}
	}
}
