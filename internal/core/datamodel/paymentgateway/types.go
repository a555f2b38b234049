package paymentgateway

import (
	"errors"
)

type IntentStatus string

// Gateway payment intent statuses. Collecting statuses mean the payer can
// still finish the checkout against the same intent; succeeded is terminal.
const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// IsCollecting reports whether the intent is still waiting on the payer.
func (s IntentStatus) IsCollecting() bool {
	switch s {
	case IntentStatusRequiresPaymentMethod, IntentStatusRequiresConfirmation, IntentStatusRequiresAction:
		return true
	}
	return false
}

func (s IntentStatus) IsSucceeded() bool {
	return s == IntentStatusSucceeded
}

type CustomerRequest struct {
	ExternalUserID string `json:"external_user_id"`
	Email          string `json:"email"`
}

type Customer struct {
	ID             string `json:"id"`
	ExternalUserID string `json:"external_user_id"`
	Email          string `json:"email"`
}

// SessionRequest creates a checkout session collecting the cash portion of
// a booking fee. Metadata travels to the webhook unchanged.
type SessionRequest struct {
	CustomerID     string            `json:"customer_id,omitempty"`
	AmountCents    int64             `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"-"`
	Metadata       map[string]string `json:"metadata"`
}

func (r *SessionRequest) Validate() error {
	if r.AmountCents <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

type PaymentIntent struct {
	ID           string            `json:"id"`
	Status       IntentStatus      `json:"status"`
	AmountCents  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
}
