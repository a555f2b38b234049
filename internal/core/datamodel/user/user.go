package user

import "time"

// User is a platform member. The same account can be the owner on one
// booking and the sitter on another.
type User struct {
	ID                int64     `gorm:"primaryKey"`
	Email             string    `gorm:"column:email;uniqueIndex;not null"`
	Name              string    `gorm:"column:name;not null"`
	PasswordHash      string    `gorm:"column:password_hash;not null"`
	GatewayCustomerID string    `gorm:"column:gateway_customer_id;default:''"`
	IsActive          bool      `gorm:"column:is_active;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt         time.Time `gorm:"column:updated_at;default:now()"`
}

func (User) TableName() string {
	return "users"
}
