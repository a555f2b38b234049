package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	bookingmodel "github.com/stayswap/stayswap/internal/core/datamodel/booking"
	"github.com/stayswap/stayswap/internal/core/datamodel/webhookevent"
	bookingsvc "github.com/stayswap/stayswap/internal/booking"
)

// Gateway event types this service acts on. Everything else is acknowledged
// and ignored.
const (
	EventIntentSucceeded = "payment_intent.succeeded"

	flowBookingFee = "booking_fee"
)

// GatewayEvent is the webhook envelope the gateway posts.
type GatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object IntentObject `json:"object"`
	} `json:"data"`
}

// IntentObject is the payment intent embedded in the event.
type IntentObject struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// IsBookingFeeFlow reports whether the intent belongs to this service's
// checkout flow, as opposed to other charges sharing the gateway account.
func (o IntentObject) IsBookingFeeFlow() bool {
	return o.Metadata["flow"] == flowBookingFee
}

// VerifySignature checks the hex HMAC-SHA256 signature header against the
// raw request body. Comparison is constant time.
func VerifySignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// EventStore is the dedupe record access. Insert reports false when the
// event id is already claimed; it returns internal.ErrSchemaGap when the
// table has not been migrated yet.
type EventStore interface {
	Insert(record *webhookevent.EventRecord) (bool, error)
	Delete(providerEventID string) error
}

// BookingSettler is the slice of the settlement coordinator the webhook
// needs.
type BookingSettler interface {
	FindByID(bookingID int64) (*bookingmodel.Booking, error)
	FindByGatewayIntent(intentID string) (*bookingmodel.Booking, error)
	ExpectedCharge(b *bookingmodel.Booking) int64
	SettleFromGateway(ctx context.Context, bookingID, cashPaid int64) (*bookingsvc.SettleResult, error)
}
