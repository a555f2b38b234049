package paymentgateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	internal "github.com/stayswap/stayswap/internal"
	bookingmodel "github.com/stayswap/stayswap/internal/core/datamodel/booking"
	gatewaytypes "github.com/stayswap/stayswap/internal/core/datamodel/paymentgateway"
)

// Client talks to the external payment gateway's REST API. It is the only
// place gateway credentials live; everything above it deals in bookings and
// cents.
type Client struct {
	baseURL    string
	secretKey  string
	currency   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

type Config struct {
	BaseURL   string
	SecretKey string
	Currency  string
	Timeout   time.Duration
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    config.BaseURL,
		secretKey:  config.SecretKey,
		currency:   config.Currency,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Configured reports whether the gateway credentials are present. Callers
// decide what an unconfigured gateway means for their environment.
func (c *Client) Configured() bool {
	return c.secretKey != ""
}

// IdempotencyKey derives the deterministic key for a checkout attempt so a
// retried request lands on the same gateway object instead of a duplicate
// charge.
func IdempotencyKey(bookingID int64, kind string, amountCents, points int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%d|%d", bookingID, kind, amountCents, points)))
	return hex.EncodeToString(sum[:])
}

// CreateCheckoutSession opens or resumes a gateway checkout for the cash
// portion of a booking. An attached intent still collecting payment for the
// same amount is reused; a succeeded intent means the booking is already
// paid and the webhook just has not landed yet.
func (c *Client) CreateCheckoutSession(b *bookingmodel.Booking, customerID string, pointsApplied, cashDue int64) (string, string, error) {
	if !c.Configured() {
		return "", "", internal.NewConfigurationError(
			"payment gateway is not configured",
			internal.ErrCodeGatewayNotConfigured)
	}

	if b.GatewayIntentID != "" {
		intent, err := c.GetPaymentIntent(b.GatewayIntentID)
		if err != nil {
			c.logger.Warn("could not fetch attached intent, creating a new one",
				"booking_id", b.ID, "intent_id", b.GatewayIntentID, "error", err)
		} else {
			switch {
			case intent.Status.IsSucceeded():
				return "", "", internal.NewValidationError(
					"a charge for this booking already succeeded; settlement is in flight",
					internal.ErrCodeBookingNotPayable)
			case intent.Status.IsCollecting() && intent.AmountCents == cashDue:
				c.logger.Info("resuming existing checkout intent",
					"booking_id", b.ID, "intent_id", intent.ID, "status", intent.Status)
				return intent.ClientSecret, intent.ID, nil
			default:
				c.logger.Info("attached intent is stale, creating a new one",
					"booking_id", b.ID, "intent_id", intent.ID, "status", intent.Status, "amount", intent.AmountCents)
			}
		}
	}

	req := &gatewaytypes.SessionRequest{
		CustomerID:     customerID,
		AmountCents:    cashDue,
		Currency:       c.currency,
		IdempotencyKey: IdempotencyKey(b.ID, "booking_fee", cashDue, pointsApplied),
		Metadata: map[string]string{
			"booking_id":     strconv.FormatInt(b.ID, 10),
			"flow":           "booking_fee",
			"points_applied": strconv.FormatInt(pointsApplied, 10),
		},
	}
	if err := req.Validate(); err != nil {
		return "", "", internal.NewValidationError(err.Error(), internal.ErrCodeInvalidAmount)
	}

	intent, err := c.createIntent(req)
	if err != nil {
		return "", "", err
	}

	c.logger.Info("gateway payment intent created",
		"booking_id", b.ID,
		"intent_id", intent.ID,
		"amount", intent.AmountCents,
		"currency", intent.Currency)
	return intent.ClientSecret, intent.ID, nil
}

// EnsureCustomer creates a gateway customer for a user, or returns the id
// of the existing one the gateway deduplicates to by external user id.
func (c *Client) EnsureCustomer(userID int64, email string) (string, error) {
	if !c.Configured() {
		return "", internal.NewConfigurationError(
			"payment gateway is not configured",
			internal.ErrCodeGatewayNotConfigured)
	}

	req := gatewaytypes.CustomerRequest{
		ExternalUserID: strconv.FormatInt(userID, 10),
		Email:          email,
	}

	var customer gatewaytypes.Customer
	if err := c.post("/v1/customers", "", req, &customer); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// GetPaymentIntent fetches the current state of an intent.
func (c *Client) GetPaymentIntent(intentID string) (*gatewaytypes.PaymentIntent, error) {
	if !c.Configured() {
		return nil, internal.NewConfigurationError(
			"payment gateway is not configured",
			internal.ErrCodeGatewayNotConfigured)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/payment_intents/%s", c.baseURL, intentID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, internal.NewTransientError("gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for intent %s", resp.StatusCode, intentID)
	}

	var intent gatewaytypes.PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode intent: %w", err)
	}
	return &intent, nil
}

func (c *Client) createIntent(req *gatewaytypes.SessionRequest) (*gatewaytypes.PaymentIntent, error) {
	var intent gatewaytypes.PaymentIntent
	if err := c.post("/v1/payment_intents", req.IdempotencyKey, req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) post(path, idempotencyKey string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return internal.NewTransientError("gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("gateway returned error status", "path", path, "status", resp.StatusCode)
		return internal.NewTransientError(
			fmt.Sprintf("gateway returned status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
