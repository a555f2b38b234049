package notification

import (
	"log/slog"

	"gorm.io/gorm"

	notifmodel "github.com/stayswap/stayswap/internal/core/datamodel/notification"
)

// Service writes in-app notification rows. It implements booking.Notifier.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) Notify(userID int64, notifType, content string, referenceID int64) error {
	n := &notifmodel.Notification{
		UserID:      userID,
		Type:        notifType,
		Content:     content,
		ReferenceID: referenceID,
	}
	if err := s.db.Create(n).Error; err != nil {
		return err
	}
	s.logger.Debug("notification created", "user_id", userID, "type", notifType, "reference_id", referenceID)
	return nil
}

// ListForUser returns the newest notifications for a user.
func (s *Service) ListForUser(userID int64, limit int) ([]*notifmodel.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []*notifmodel.Notification
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkRead flips a notification the user owns.
func (s *Service) MarkRead(id, userID int64) error {
	return s.db.Model(&notifmodel.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true).Error
}
