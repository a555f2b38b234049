package webhookevent

import "time"

// EventRecord marks a gateway webhook delivery as claimed for processing.
// The unique index on the external event id makes the insert act as a
// distributed lock: a second delivery of the same event fails to insert and
// is treated as already handled. On transient processing failure the record
// is deleted so redelivery can re-acquire the lock.
type EventRecord struct {
	ID              int64     `gorm:"primaryKey"`
	ProviderEventID string    `gorm:"column:provider_event_id;not null;uniqueIndex"`
	EventType       string    `gorm:"column:event_type;not null"`
	BookingID       *int64    `gorm:"column:booking_id"`
	CreatedAt       time.Time `gorm:"column:created_at;default:now()"`
}

func (EventRecord) TableName() string {
	return "webhook_events"
}
