package postgres

import (
	"errors"

	"gorm.io/gorm"

	userDatamodel "github.com/stayswap/stayswap/internal/core/datamodel/user"
	"github.com/stayswap/stayswap/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(userID int64) (*user.User, error) {
	var u userDatamodel.User
	err := r.db.Where("id = ? AND is_active = true", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&u), nil
}

func (r *UserRepository) SetGatewayCustomerID(userID int64, customerID string) error {
	res := r.db.Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Update("gateway_customer_id", customerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}
