package user

import (
	"fmt"
)

type Service struct {
	repo Repository
}

type Repository interface {
	GetByID(userID int64) (*User, error)
	SetGatewayCustomerID(userID int64, customerID string) error
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) GetByID(userID int64) (*User, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

// GetEmail resolves a user's email for outbound notifications. Users can
// exist without a deliverable address; callers treat "" as skip.
func (s *Service) GetEmail(userID int64) (string, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// GatewayCustomerID returns the payment gateway customer on file for the
// user, "" when none has been created yet.
func (s *Service) GatewayCustomerID(userID int64) (string, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil {
		return "", err
	}
	return u.GatewayCustomerID, nil
}

// SetGatewayCustomerID records the gateway customer created for the user so
// later checkouts reuse it.
func (s *Service) SetGatewayCustomerID(userID int64, customerID string) error {
	return s.repo.SetGatewayCustomerID(userID, customerID)
}
