package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/stayswap/stayswap/internal/auth"
	bookingmodel "github.com/stayswap/stayswap/internal/core/datamodel/booking"
	"github.com/stayswap/stayswap/internal/transport"
	"github.com/stayswap/stayswap/pkg/logger"
)

type ServiceAPI interface {
	CreateBooking(sitterID int64, dto CreateBookingDTO) (*bookingmodel.Booking, error)
	RespondBooking(bookingID, ownerID int64, accept bool) (*bookingmodel.Booking, error)
	CancelBooking(bookingID, userID int64) error
	GetBooking(bookingID, userID int64) (*bookingmodel.Booking, error)
	ListBookings(userID int64, limit, offset int) ([]*bookingmodel.Booking, error)
	CompletePayment(ctx context.Context, bookingID, payerID, requestedPoints int64) (*SettleResult, error)
	CreateCheckoutSession(ctx context.Context, bookingID, payerID, requestedPoints int64) (*CheckoutResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("CreateBooking: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateBookingDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateBooking: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := h.Service.CreateBooking(user.ID, dto)
	if err != nil {
		h.Logger.Error("CreateBooking: service error", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateBooking: booking created",
		"booking_id", b.ID,
		"sitter_id", user.ID,
		"owner_id", b.OwnerID,
		"total_fee", b.TotalFee)

	h.WriteJSON(w, http.StatusCreated, ToView(b))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("GetBooking: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingID(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	b, err := h.Service.GetBooking(bookingID, user.ID)
	if err != nil {
		h.Logger.Error("GetBooking: service error", "error", err, "booking_id", bookingID, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(b))
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("ListBookings: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	bookings, err := h.Service.ListBookings(user.ID, limit, offset)
	if err != nil {
		h.Logger.Error("ListBookings: service error", "error", err, "user_id", user.ID)
		h.WriteError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	views := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, ToView(b))
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": views,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) RespondBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("RespondBooking: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingID(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	var dto RespondBookingDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RespondBooking: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := h.Service.RespondBooking(bookingID, user.ID, dto.Accept)
	if err != nil {
		h.Logger.Error("RespondBooking: service error", "error", err, "booking_id", bookingID, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RespondBooking: responded", "booking_id", bookingID, "status", b.Status)
	h.WriteJSON(w, http.StatusOK, ToView(b))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("CancelBooking: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingID(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	if err := h.Service.CancelBooking(bookingID, user.ID); err != nil {
		h.Logger.Error("CancelBooking: service error", "error", err, "booking_id", bookingID, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CancelBooking: cancelled", "booking_id", bookingID, "user_id", user.ID)
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Checkout opens a gateway checkout session for the cash portion of the
// booking fee.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("Checkout: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingID(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	var dto CheckoutDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error("Checkout: invalid request body", "error", err)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	resp, err := h.Service.CreateCheckoutSession(r.Context(), bookingID, user.ID, dto.Points)
	if err != nil {
		h.Logger.Error("Checkout: service error", "error", err, "booking_id", bookingID, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// CompletePayment settles the booking on the manual path.
func (h *Handler) CompletePayment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("CompletePayment: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingID(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	var dto CompletePaymentDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error("CompletePayment: invalid request body", "error", err)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.Service.CompletePayment(r.Context(), bookingID, user.ID, dto.Points)
	if err != nil {
		h.Logger.Error("CompletePayment: service error", "error", err, "booking_id", bookingID, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CompletePayment: settled",
		"booking_id", bookingID,
		"user_id", user.ID,
		"points_applied", result.PointsApplied,
		"cash_due", result.CashDue,
		"already_paid", result.AlreadyPaid)

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) bookingID(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.Logger.Error("invalid booking ID", "id", idStr)
		return 0, err
	}
	return id, nil
}
