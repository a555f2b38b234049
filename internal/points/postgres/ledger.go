package postgres

import (
	"gorm.io/gorm"

	pointsmodel "github.com/stayswap/stayswap/internal/core/datamodel/points"
	pointspkg "github.com/stayswap/stayswap/internal/points"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) pointspkg.Repository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(entry *pointsmodel.LedgerEntry) error {
	return r.db.Create(entry).Error
}

func (r *LedgerRepository) SumDeltas(userID int64) (int64, error) {
	var sum *int64
	err := r.db.Model(&pointsmodel.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("SUM(points_delta)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
