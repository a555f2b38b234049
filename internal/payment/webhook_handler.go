package payment

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	internal "github.com/stayswap/stayswap/internal"
	"github.com/stayswap/stayswap/internal/core/datamodel/webhookevent"
	"github.com/stayswap/stayswap/internal/transport"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives gateway webhook deliveries. The dedupe insert
// doubles as a distributed lock, so deliveries retried by the gateway and
// deliveries racing across replicas settle a booking at most once.
type WebhookHandler struct {
	*transport.BaseHandler
	settler       BookingSettler
	events        EventStore
	webhookSecret string
	currency      string
	production    bool
	logger        *slog.Logger
}

func NewWebhookHandler(
	baseHandler *transport.BaseHandler,
	settler BookingSettler,
	events EventStore,
	webhookSecret, currency string,
	production bool,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:   baseHandler,
		settler:       settler,
		events:        events,
		webhookSecret: webhookSecret,
		currency:      currency,
		production:    production,
		logger:        logger,
	}
}

type webhookAck struct {
	Received       bool  `json:"received"`
	Duplicate      bool  `json:"duplicate,omitempty"`
	Finalized      *bool `json:"finalized,omitempty"`
	BookingFeeFlow *bool `json:"booking_fee_flow,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("Gateway-Signature")
	if signature == "" {
		h.logger.Error("webhook delivery without signature header")
		h.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_signature"})
		return
	}

	if h.webhookSecret == "" {
		h.logger.Error("webhook secret is not configured, refusing delivery")
		h.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "webhook_not_configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		h.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	if !VerifySignature(body, signature, h.webhookSecret) {
		h.logger.Error("webhook signature verification failed")
		h.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_signature"})
		return
	}

	var event GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("failed to decode webhook event", "error", err)
		h.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	h.logger.Info("received gateway webhook",
		"event_id", event.ID,
		"event_type", event.Type,
		"intent_id", event.Data.Object.ID)

	if event.Type != EventIntentSucceeded || !event.Data.Object.IsBookingFeeFlow() {
		h.WriteJSON(w, http.StatusOK, webhookAck{Received: true, BookingFeeFlow: boolPtr(false)})
		return
	}

	dedupeHeld, proceed := h.claimEvent(w, &event)
	if !proceed {
		return
	}

	h.processSucceededIntent(w, r, &event, dedupeHeld)
}

// claimEvent inserts the dedupe record. The second return value is false
// when a response has already been written (duplicate, or fail-closed).
func (h *WebhookHandler) claimEvent(w http.ResponseWriter, event *GatewayEvent) (held bool, proceed bool) {
	inserted, err := h.events.Insert(&webhookevent.EventRecord{
		ProviderEventID: event.ID,
		EventType:       event.Type,
	})
	switch {
	case err == nil:
		if !inserted {
			h.logger.Info("duplicate webhook delivery, already handled", "event_id", event.ID)
			h.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Duplicate: true})
			return false, false
		}
		return true, true
	case errors.Is(err, internal.ErrSchemaGap):
		if h.production {
			h.logger.Error("webhook dedupe table missing in production, failing closed", "event_id", event.ID)
			h.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook_processing_failed"})
			return false, false
		}
		h.logger.Warn("webhook dedupe table missing, proceeding without replay protection",
			"event_id", event.ID)
		return false, true
	default:
		h.logger.Error("failed to record webhook event", "error", err, "event_id", event.ID)
		h.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook_processing_failed"})
		return false, false
	}
}

func (h *WebhookHandler) processSucceededIntent(w http.ResponseWriter, r *http.Request, event *GatewayEvent, dedupeHeld bool) {
	intent := event.Data.Object

	b, err := h.settler.FindByGatewayIntent(intent.ID)
	if err != nil {
		if bookingID, ok := intent.bookingIDFromMetadata(); ok {
			b, err = h.settler.FindByID(bookingID)
		}
	}
	if err != nil || b == nil {
		// Permanent: retrying the same payload cannot find a booking that
		// does not exist. Keep the dedupe record.
		h.logger.Error("webhook intent does not resolve to a booking",
			"event_id", event.ID, "intent_id", intent.ID)
		h.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Finalized: boolPtr(false)})
		return
	}

	// A payload without a currency cannot prove it charged the right one.
	if !strings.EqualFold(intent.Currency, h.currency) {
		h.logger.Error("webhook charge currency mismatch",
			"event_id", event.ID, "booking_id", b.ID,
			"got", intent.Currency, "want", h.currency)
		h.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Finalized: boolPtr(false)})
		return
	}

	expected := h.settler.ExpectedCharge(b)
	if intent.Amount < expected {
		h.logger.Error("webhook charge does not cover the cash due",
			"event_id", event.ID, "booking_id", b.ID,
			"charged", intent.Amount, "expected", expected)
		h.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Finalized: boolPtr(false)})
		return
	}

	result, err := h.settler.SettleFromGateway(r.Context(), b.ID, intent.Amount)
	if err != nil {
		// Release the lock so the gateway's redelivery can retry.
		if dedupeHeld {
			if delErr := h.events.Delete(event.ID); delErr != nil {
				h.logger.Error("failed to release webhook dedupe record",
					"error", delErr, "event_id", event.ID)
			}
		}
		h.logger.Error("webhook settlement failed",
			"error", err, "event_id", event.ID, "booking_id", b.ID)
		h.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook_processing_failed"})
		return
	}

	h.logger.Info("webhook settlement finalized",
		"event_id", event.ID,
		"booking_id", b.ID,
		"already_paid", result.AlreadyPaid,
		"points_applied", result.PointsApplied,
		"cash_due", result.CashDue)
	h.WriteJSON(w, http.StatusOK, webhookAck{Received: true, Finalized: boolPtr(true)})
}

func (o IntentObject) bookingIDFromMetadata() (int64, bool) {
	raw, ok := o.Metadata["booking_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
