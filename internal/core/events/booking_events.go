package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeBookingSettled   = "booking.payment_settled"
	EventTypeBookingCompleted = "booking.completed"
)

// BookingSettledEvent fires after a booking's payment settles, on either
// the manual or the webhook path.
type BookingSettledEvent struct {
	BaseEvent
	BookingID     int64  `json:"booking_id"`
	OwnerID       int64  `json:"owner_id"`
	SitterID      int64  `json:"sitter_id"`
	PointsApplied int64  `json:"points_applied"`
	CashDue       int64  `json:"cash_due"`
	Source        string `json:"source"`
}

func NewBookingSettledEvent(bookingID, ownerID, sitterID, pointsApplied, cashDue int64, source string) *BookingSettledEvent {
	return &BookingSettledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBookingSettled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"booking_id":     bookingID,
				"owner_id":       ownerID,
				"sitter_id":      sitterID,
				"points_applied": pointsApplied,
				"cash_due":       cashDue,
				"source":         source,
			},
		},
		BookingID:     bookingID,
		OwnerID:       ownerID,
		SitterID:      sitterID,
		PointsApplied: pointsApplied,
		CashDue:       cashDue,
		Source:        source,
	}
}

// BookingCompletedEvent fires from the auto-completion sweep once a paid
// booking's stay has ended.
type BookingCompletedEvent struct {
	BaseEvent
	BookingID     int64 `json:"booking_id"`
	OwnerID       int64 `json:"owner_id"`
	SitterID      int64 `json:"sitter_id"`
	PointsAwarded int64 `json:"points_awarded"`
}

func NewBookingCompletedEvent(bookingID, ownerID, sitterID, pointsAwarded int64) *BookingCompletedEvent {
	return &BookingCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBookingCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"booking_id":     bookingID,
				"owner_id":       ownerID,
				"sitter_id":      sitterID,
				"points_awarded": pointsAwarded,
			},
		},
		BookingID:     bookingID,
		OwnerID:       ownerID,
		SitterID:      sitterID,
		PointsAwarded: pointsAwarded,
	}
}
