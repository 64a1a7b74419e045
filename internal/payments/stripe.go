package payments

import (
	"context"
	"fmt"
	"os"
	"strconv"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeGateway places seat-share holds as manual-capture payment intents:
// funds are reserved when a join request is approved and only captured once
// the ride completes. Intents carry ride/user metadata for reconciliation.
type StripeGateway struct{}

// NewStripeGateway reads STRIPE_API_KEY from the environment.
func NewStripeGateway() *StripeGateway {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	return &StripeGateway{}
}

func (g *StripeGateway) HoldSeatShare(ctx context.Context, amount int64, currency string, rideID int64, userID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String(fmt.Sprintf("seat share, ride %d", rideID)),
	}
	params.AddMetadata("ride_id", strconv.FormatInt(rideID, 10))
	params.AddMetadata("user_id", userID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (g *StripeGateway) CaptureSeatShare(ctx context.Context, intentID string) error {
	_, err := paymentintent.Capture(intentID, nil)
	return err
}

func (g *StripeGateway) ReleaseSeatShare(ctx context.Context, intentID string) error {
	_, err := paymentintent.Cancel(intentID, nil)
	return err
}
