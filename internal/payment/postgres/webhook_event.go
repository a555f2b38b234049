package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	internal "github.com/stayswap/stayswap/internal"
	"github.com/stayswap/stayswap/internal/core/datamodel/webhookevent"
	"github.com/stayswap/stayswap/internal/payment"
)

// WebhookEventRepository implements payment.EventStore using GORM. The
// unique index on provider_event_id does the deduplication; this code only
// classifies the outcome.
type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) payment.EventStore {
	return &WebhookEventRepository{db: db}
}

// Insert claims a webhook event for processing. Returns false when another
// delivery already holds the record.
func (r *WebhookEventRepository) Insert(record *webhookevent.EventRecord) (bool, error) {
	err := r.db.Create(record).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return false, nil
		case "42P01", "42883": // undefined_table, undefined_function
			return false, internal.ErrSchemaGap
		}
	}
	return false, err
}

// Delete releases a claimed event so the gateway's redelivery can retry it.
func (r *WebhookEventRepository) Delete(providerEventID string) error {
	return r.db.Where("provider_event_id = ?", providerEventID).
		Delete(&webhookevent.EventRecord{}).Error
}
