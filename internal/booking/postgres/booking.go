package postgres

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	internal "github.com/stayswap/stayswap/internal"
	"github.com/stayswap/stayswap/internal/booking"
	bookingmodel "github.com/stayswap/stayswap/internal/core/datamodel/booking"
	pointsmodel "github.com/stayswap/stayswap/internal/core/datamodel/points"
)

// BookingRepository implements the booking.Repository interface using GORM
type BookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *gorm.DB) booking.Repository {
	return &BookingRepository{db: db}
}

// Create saves a new booking to the database
func (r *BookingRepository) Create(b *bookingmodel.Booking) error {
	return r.db.Create(b).Error
}

// GetByID retrieves a booking by its ID
func (r *BookingRepository) GetByID(id int64) (*bookingmodel.Booking, error) {
	var b bookingmodel.Booking
	err := r.db.Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetByGatewayIntentID resolves a booking from its attached payment intent.
func (r *BookingRepository) GetByGatewayIntentID(intentID string) (*bookingmodel.Booking, error) {
	var b bookingmodel.Booking
	err := r.db.Where("gateway_intent_id = ?", intentID).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBookingNotFound
		}
		return nil, mapSchemaGap(err)
	}
	return &b, nil
}

// ListForUser retrieves bookings where the user is either party.
func (r *BookingRepository) ListForUser(userID int64, limit, offset int) ([]*bookingmodel.Booking, error) {
	var bookings []*bookingmodel.Booking
	err := r.db.Where("owner_id = ? OR sitter_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&bookings).Error
	return bookings, err
}

// UpdateStatus transitions status only when the current status is one of
// fromStatuses. Returns whether a row was updated.
func (r *BookingRepository) UpdateStatus(id int64, fromStatuses []string, to string) (bool, error) {
	res := r.db.Model(&bookingmodel.Booking{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AttachGatewayIntent records the checkout intent and the points/cash split
// the webhook will settle against.
func (r *BookingRepository) AttachGatewayIntent(id int64, intentID string, pointsApplied, cashDue int64) error {
	return r.db.Model(&bookingmodel.Booking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"gateway_intent_id": intentID,
			"points_applied":    pointsApplied,
			"cash_due":          cashDue,
			"updated_at":        time.Now(),
		}).Error
}

// SettlePayment is the atomic settlement primitive: one transaction that
// conditionally flips payment_status, writes the fee snapshot, and appends
// the points debit. The payment_status guard is what makes concurrent
// settlement safe; the loser sees zero rows and reads back who won.
func (r *BookingRepository) SettlePayment(p booking.SettleParams) (booking.SettleResult, error) {
	var result booking.SettleResult

	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&bookingmodel.Booking{}).
			Where("id = ? AND payment_status <> ?", p.BookingID, bookingmodel.PaymentStatusPaid).
			Updates(map[string]interface{}{
				"payment_status":        bookingmodel.PaymentStatusPaid,
				"service_fee_per_night": p.ServiceFeePerNight,
				"cleaning_fee":          p.CleaningFee,
				"insurance_fee":         p.InsuranceFee,
				"service_fee_total":     p.ServiceFeeTotal,
				"total_fee":             p.TotalFee,
				"points_applied":        p.PointsApplied,
				"cash_due":              p.CashDue,
				"paid_at":               p.PaidAt,
				"updated_at":            time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			var current bookingmodel.Booking
			if err := tx.Where("id = ?", p.BookingID).First(&current).Error; err != nil {
				return err
			}
			result = booking.SettleResult{
				Updated:       false,
				AlreadyPaid:   current.IsPaid(),
				PointsApplied: current.PointsApplied,
				CashDue:       current.CashDue,
			}
			return nil
		}

		if p.PointsApplied > 0 {
			bookingID := p.BookingID
			entry := &pointsmodel.LedgerEntry{
				UserID:      p.PayerID,
				BookingID:   &bookingID,
				PointsDelta: -p.PointsApplied,
				Reason:      pointsmodel.ReasonBookingPaymentPoints,
			}
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}

		result = booking.SettleResult{
			Updated:       true,
			PointsApplied: p.PointsApplied,
			CashDue:       p.CashDue,
		}
		return nil
	})
	if err != nil {
		return booking.SettleResult{}, mapSchemaGap(err)
	}
	return result, nil
}

// MarkPaidIfUnpaid is the legacy conditional update: same guard, no ledger
// write. The coordinator sequences the debit around it.
func (r *BookingRepository) MarkPaidIfUnpaid(p booking.SettleParams) (bool, error) {
	res := r.db.Model(&bookingmodel.Booking{}).
		Where("id = ? AND payment_status <> ?", p.BookingID, bookingmodel.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status":        bookingmodel.PaymentStatusPaid,
			"service_fee_per_night": p.ServiceFeePerNight,
			"cleaning_fee":          p.CleaningFee,
			"insurance_fee":         p.InsuranceFee,
			"service_fee_total":     p.ServiceFeeTotal,
			"total_fee":             p.TotalFee,
			"points_applied":        p.PointsApplied,
			"cash_due":              p.CashDue,
			"paid_at":               p.PaidAt,
			"updated_at":            time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListCompletable returns paid bookings whose stay has ended and whose
// status still admits completion.
func (r *BookingRepository) ListCompletable(now time.Time, limit int) ([]*bookingmodel.Booking, error) {
	var bookings []*bookingmodel.Booking
	err := r.db.
		Where("status IN ? AND payment_status = ? AND end_date < ?",
			[]string{bookingmodel.StatusConfirmed, bookingmodel.StatusAccepted},
			bookingmodel.PaymentStatusPaid,
			now).
		Order("end_date ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

// CompleteIfDue transitions to completed and flips points_awarded in the
// same conditional update, so the points award happens at most once even
// with concurrent sweeps.
func (r *BookingRepository) CompleteIfDue(id int64, now time.Time) (bool, error) {
	res := r.db.Model(&bookingmodel.Booking{}).
		Where("id = ? AND status IN ? AND payment_status = ? AND end_date < ? AND points_awarded = ?",
			id,
			[]string{bookingmodel.StatusConfirmed, bookingmodel.StatusAccepted},
			bookingmodel.PaymentStatusPaid,
			now,
			false).
		Updates(map[string]interface{}{
			"status":         bookingmodel.StatusCompleted,
			"points_awarded": true,
			"completed_at":   now,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// mapSchemaGap translates the postgres errors a partially migrated
// datastore produces into the schema-gap sentinel the coordinator degrades
// on. Anything else passes through untouched.
func mapSchemaGap(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42P01 undefined_table, 42883 undefined_function
		if pgErr.Code == "42P01" || pgErr.Code == "42883" {
			return internal.ErrSchemaGap
		}
	}
	return err
}
