package booking

import (
	"time"
)

// Booking statuses. payment_status is monotonic: nothing in this service
// moves a booking from paid back to unpaid.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"

	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// Booking is a stay exchanged for pet/home care between an owner (the
// listing owner) and a sitter (the paying party). Fee fields are a snapshot
// frozen at creation/settlement so later rate changes never reprice an
// existing booking. All amounts are integer cents.
type Booking struct {
	ID                 int64      `gorm:"primaryKey"`
	OwnerID            int64      `gorm:"column:owner_id;not null;index"`
	SitterID           int64      `gorm:"column:sitter_id;not null;index"`
	StartDate          time.Time  `gorm:"column:start_date;not null"`
	EndDate            time.Time  `gorm:"column:end_date;not null;index"`
	Status             string     `gorm:"column:status;default:pending;index"`
	PaymentStatus      string     `gorm:"column:payment_status;default:unpaid;index"`
	ServiceFeePerNight int64      `gorm:"column:service_fee_per_night;not null"`
	CleaningFee        int64      `gorm:"column:cleaning_fee;default:0"`
	InsuranceFee       int64      `gorm:"column:insurance_fee;default:0"`
	ServiceFeeTotal    int64      `gorm:"column:service_fee_total;default:0"`
	TotalFee           int64      `gorm:"column:total_fee;default:0"`
	PointsApplied      int64      `gorm:"column:points_applied;default:0"`
	CashDue            int64      `gorm:"column:cash_due;default:0"`
	GatewayIntentID    string     `gorm:"column:gateway_intent_id;index"`
	PointsAwarded      bool       `gorm:"column:points_awarded;default:false"`
	PaidAt             *time.Time `gorm:"column:paid_at"`
	CompletedAt        *time.Time `gorm:"column:completed_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;default:now()"`
}

func (Booking) TableName() string {
	return "bookings"
}

// IsPayable reports whether the booking status admits settlement.
func (b *Booking) IsPayable() bool {
	return b.Status == StatusConfirmed || b.Status == StatusAccepted
}

func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}
