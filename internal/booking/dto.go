package booking

import (
	"time"

	errors "github.com/stayswap/stayswap/internal"
	"github.com/stayswap/stayswap/internal/core/common/validation"
	bookingmodel "github.com/stayswap/stayswap/internal/core/datamodel/booking"
)

// CreateBookingDTO is the sitter's stay request. Fee rates come from the
// listing the sitter is booking; the listing service itself is outside this
// module, so the caller passes the rates and they are frozen onto the
// booking as a snapshot.
type CreateBookingDTO struct {
	OwnerID            int64     `json:"owner_id"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	ServiceFeePerNight int64     `json:"service_fee_per_night"`
	CleaningFee        int64     `json:"cleaning_fee"`
	InsuranceFee       int64     `json:"insurance_fee"`
}

func (d *CreateBookingDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("owner_id", d.OwnerID).Required()
	validator.Field("start_date", d.StartDate).Required()
	validator.Field("end_date", d.EndDate).Required().After(d.StartDate, "start_date")
	validator.Field("service_fee_per_night", d.ServiceFeePerNight).
		Required().
		MinInt(1, errors.ErrCodeInvalidAmount)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	if d.CleaningFee < 0 || d.InsuranceFee < 0 {
		return errors.NewValidationError("fees cannot be negative", errors.ErrCodeInvalidAmount)
	}
	return nil
}

// RespondBookingDTO is the owner's accept/decline decision.
type RespondBookingDTO struct {
	Accept bool `json:"accept"`
}

// CompletePaymentDTO carries the points the sitter wants to redeem.
type CompletePaymentDTO struct {
	Points int64 `json:"points"`
}

// CheckoutDTO mirrors CompletePaymentDTO for the gateway path.
type CheckoutDTO struct {
	Points int64 `json:"points"`
}

// CheckoutResponse is the session creation result.
type CheckoutResponse struct {
	Error        *string `json:"error"`
	ClientSecret *string `json:"clientSecret"`
}

// BookingView is the API shape of a booking.
type BookingView struct {
	ID            int64        `json:"id"`
	OwnerID       int64        `json:"owner_id"`
	SitterID      int64        `json:"sitter_id"`
	StartDate     time.Time    `json:"start_date"`
	EndDate       time.Time    `json:"end_date"`
	Status        string       `json:"status"`
	PaymentStatus string       `json:"payment_status"`
	Fees          FeeBreakdown `json:"fees"`
	PointsApplied int64        `json:"points_applied"`
	CashDue       int64        `json:"cash_due"`
	PaidAt        *time.Time   `json:"paid_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

func ToView(b *bookingmodel.Booking) BookingView {
	return BookingView{
		ID:            b.ID,
		OwnerID:       b.OwnerID,
		SitterID:      b.SitterID,
		StartDate:     b.StartDate,
		EndDate:       b.EndDate,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		Fees: FeeBreakdown{
			Nights:             nightsBetween(b.StartDate, b.EndDate),
			ServiceFeePerNight: b.ServiceFeePerNight,
			ServiceFeeTotal:    b.ServiceFeeTotal,
			CleaningFee:        b.CleaningFee,
			InsuranceFee:       b.InsuranceFee,
			TotalFee:           b.TotalFee,
		},
		PointsApplied: b.PointsApplied,
		CashDue:       b.CashDue,
		PaidAt:        b.PaidAt,
		CompletedAt:   b.CompletedAt,
	}
}
