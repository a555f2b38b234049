package points

import "time"

// Ledger entry reasons. Rollbacks are modeled as new entries with the
// inverse delta and a _rollback-suffixed reason, never as mutations.
const (
	ReasonBookingPaymentPoints         = "booking_payment_points"
	ReasonBookingPaymentPointsRollback = "booking_payment_points_rollback"
	ReasonBookingCompletedPoints       = "booking_completed_points"
)

// LedgerEntry is an append-only signed point delta for a user. A balance is
// always derived as max(sum(points_delta), 0); no entry is ever updated or
// deleted.
type LedgerEntry struct {
	ID          int64     `gorm:"primaryKey"`
	UserID      int64     `gorm:"column:user_id;not null;index"`
	BookingID   *int64    `gorm:"column:booking_id;index"`
	PointsDelta int64     `gorm:"column:points_delta;not null"`
	Reason      string    `gorm:"column:reason;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;default:now()"`
}

func (LedgerEntry) TableName() string {
	return "points_ledger_entries"
}
