package notification

import "time"

// Notification types written by settlement and auto-completion.
const (
	TypeBookingPaid      = "booking_paid"
	TypeBookingCompleted = "booking_completed"
)

type Notification struct {
	ID          int64     `gorm:"primaryKey"`
	UserID      int64     `gorm:"column:user_id;not null;index"`
	Type        string    `gorm:"column:type;not null"`
	Content     string    `gorm:"column:content;type:text"`
	ReferenceID int64     `gorm:"column:reference_id"`
	IsRead      bool      `gorm:"column:is_read;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;default:now()"`
}

func (Notification) TableName() string {
	return "notifications"
}
