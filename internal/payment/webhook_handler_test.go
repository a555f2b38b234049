package payment_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/stayswap/stayswap/internal"
	bookingsvc "github.com/stayswap/stayswap/internal/booking"
	bookingmodel "github.com/stayswap/stayswap/internal/core/datamodel/booking"
	"github.com/stayswap/stayswap/internal/core/datamodel/webhookevent"
	"github.com/stayswap/stayswap/internal/payment"
	"github.com/stayswap/stayswap/internal/transport"
)

func TestPayment(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payment Webhook Suite")
}

const testSecret = "whsec_test_secret"

type mockEventStore struct {
	records   map[string]*webhookevent.EventRecord
	insertErr error
	deleted   []string
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{records: make(map[string]*webhookevent.EventRecord)}
}

func (m *mockEventStore) Insert(record *webhookevent.EventRecord) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if _, exists := m.records[record.ProviderEventID]; exists {
		return false, nil
	}
	m.records[record.ProviderEventID] = record
	return true, nil
}

func (m *mockEventStore) Delete(providerEventID string) error {
	m.deleted = append(m.deleted, providerEventID)
	delete(m.records, providerEventID)
	return nil
}

type mockSettler struct {
	byIntent  map[string]*bookingmodel.Booking
	byID      map[int64]*bookingmodel.Booking
	expected  int64
	result    *bookingsvc.SettleResult
	settleErr error
	settled   []int64
}

func newMockSettler() *mockSettler {
	return &mockSettler{
		byIntent: make(map[string]*bookingmodel.Booking),
		byID:     make(map[int64]*bookingmodel.Booking),
		result:   &bookingsvc.SettleResult{Updated: true},
	}
}

func (m *mockSettler) FindByID(bookingID int64) (*bookingmodel.Booking, error) {
	b, ok := m.byID[bookingID]
	if !ok {
		return nil, internal.ErrBookingNotFound
	}
	return b, nil
}

func (m *mockSettler) FindByGatewayIntent(intentID string) (*bookingmodel.Booking, error) {
	b, ok := m.byIntent[intentID]
	if !ok {
		return nil, internal.ErrBookingNotFound
	}
	return b, nil
}

func (m *mockSettler) ExpectedCharge(b *bookingmodel.Booking) int64 {
	return m.expected
}

func (m *mockSettler) SettleFromGateway(ctx context.Context, bookingID, cashPaid int64) (*bookingsvc.SettleResult, error) {
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	m.settled = append(m.settled, bookingID)
	return m.result, nil
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func succeededEvent(eventID, intentID string, amount int64, metadata map[string]string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": payment.EventIntentSucceeded,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       intentID,
				"amount":   amount,
				"currency": "usd",
				"status":   "succeeded",
				"metadata": metadata,
			},
		},
	})
	return body
}

var _ = Describe("WebhookHandler", func() {
	var (
		settler *mockSettler
		events  *mockEventStore
		handler *payment.WebhookHandler
	)

	feeMetadata := map[string]string{"flow": "booking_fee", "booking_id": "1"}

	newHandler := func(secret string, production bool) *payment.WebhookHandler {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		return payment.NewWebhookHandler(
			transport.NewBaseHandler(logger), settler, events, secret, "usd", production, logger)
	}

	deliver := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(body))
		if signature != "" {
			req.Header.Set("Gateway-Signature", signature)
		}
		rec := httptest.NewRecorder()
		handler.HandleGatewayWebhook(rec, req)
		return rec
	}

	ackOf := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var ack map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &ack)).To(Succeed())
		return ack
	}

	BeforeEach(func() {
		settler = newMockSettler()
		events = newMockEventStore()
		handler = newHandler(testSecret, false)

		b := &bookingmodel.Booking{ID: 1, OwnerID: 10, SitterID: 20, GatewayIntentID: "pi_1"}
		settler.byIntent["pi_1"] = b
		settler.byID[1] = b
		settler.expected = 200
	})

	Describe("signature checks", func() {
		It("should reject a delivery without a signature header", func() {
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)

			rec := deliver(body, "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("missing_signature"))
		})

		It("should reject a forged signature", func() {
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)

			rec := deliver(body, sign(body, "wrong_secret"))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("invalid_signature"))
		})

		It("should refuse all deliveries when no secret is configured", func() {
			handler = newHandler("", false)
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring("webhook_not_configured"))
		})

		It("should tolerate whitespace around the signature", func() {
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)

			rec := deliver(body, "  "+sign(body, testSecret)+"  ")
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("event filtering", func() {
		It("should acknowledge and skip other event types", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"id":   "evt_other",
				"type": "payment_intent.created",
				"data": map[string]interface{}{"object": map[string]interface{}{"id": "pi_1"}},
			})

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ackOf(rec)["booking_fee_flow"]).To(Equal(false))
			Expect(settler.settled).To(BeEmpty())
		})

		It("should acknowledge and skip charges from other flows", func() {
			body := succeededEvent("evt_1", "pi_1", 200, map[string]string{"flow": "marketplace"})

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ackOf(rec)["booking_fee_flow"]).To(Equal(false))
			Expect(settler.settled).To(BeEmpty())
		})
	})

	Describe("deduplication", func() {
		It("should settle the first delivery and acknowledge the second as a duplicate", func() {
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)
			sig := sign(body, testSecret)

			first := deliver(body, sig)
			Expect(first.Code).To(Equal(http.StatusOK))
			Expect(settler.settled).To(Equal([]int64{1}))

			second := deliver(body, sig)
			Expect(second.Code).To(Equal(http.StatusOK))
			Expect(ackOf(second)["duplicate"]).To(Equal(true))
			Expect(settler.settled).To(Equal([]int64{1}))
		})

		It("should fail closed in production when the dedupe table is missing", func() {
			handler = newHandler(testSecret, true)
			events.insertErr = internal.ErrSchemaGap
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(settler.settled).To(BeEmpty())
		})

		It("should proceed without replay protection outside production", func() {
			events.insertErr = internal.ErrSchemaGap
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(settler.settled).To(Equal([]int64{1}))
		})
	})

	Describe("booking resolution", func() {
		It("should fall back to metadata when the intent id is unknown", func() {
			body := succeededEvent("evt_1", "pi_unknown", 200, feeMetadata)

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(settler.settled).To(Equal([]int64{1}))
		})

		It("should acknowledge an unresolvable intent without settling", func() {
			body := succeededEvent("evt_1", "pi_unknown", 200, map[string]string{"flow": "booking_fee"})

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ackOf(rec)["finalized"]).To(Equal(false))
			Expect(settler.settled).To(BeEmpty())
			// The dedupe record stays: retrying cannot make the booking exist.
			Expect(events.deleted).To(BeEmpty())
		})
	})

	Describe("charge validation", func() {
		It("should not finalize a currency mismatch", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"id":   "evt_1",
				"type": payment.EventIntentSucceeded,
				"data": map[string]interface{}{
					"object": map[string]interface{}{
						"id":       "pi_1",
						"amount":   200,
						"currency": "eur",
						"metadata": feeMetadata,
					},
				},
			})

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ackOf(rec)["finalized"]).To(Equal(false))
			Expect(settler.settled).To(BeEmpty())
		})

		It("should not finalize a payload that omits the currency", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"id":   "evt_1",
				"type": payment.EventIntentSucceeded,
				"data": map[string]interface{}{
					"object": map[string]interface{}{
						"id":       "pi_1",
						"amount":   200,
						"metadata": feeMetadata,
					},
				},
			})

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ackOf(rec)["finalized"]).To(Equal(false))
			Expect(settler.settled).To(BeEmpty())
		})

		It("should not finalize an under-payment", func() {
			body := succeededEvent("evt_1", "pi_1", 150, feeMetadata)

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ackOf(rec)["finalized"]).To(Equal(false))
			Expect(settler.settled).To(BeEmpty())
		})

		It("should accept an over-payment", func() {
			body := succeededEvent("evt_1", "pi_1", 250, feeMetadata)

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ackOf(rec)["finalized"]).To(Equal(true))
			Expect(settler.settled).To(Equal([]int64{1}))
		})
	})

	Describe("transient settlement failure", func() {
		It("should release the dedupe record and ask for redelivery", func() {
			settler.settleErr = internal.NewTransientError("db down", nil)
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)

			rec := deliver(body, sign(body, testSecret))
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(events.deleted).To(Equal([]string{"evt_1"}))
		})

		It("should let a later redelivery settle after the failure", func() {
			settler.settleErr = internal.NewTransientError("db down", nil)
			body := succeededEvent("evt_1", "pi_1", 200, feeMetadata)
			sig := sign(body, testSecret)

			deliver(body, sig)

			settler.settleErr = nil
			rec := deliver(body, sig)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(settler.settled).To(Equal([]int64{1}))
		})
	})
})
