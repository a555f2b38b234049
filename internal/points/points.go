package points

import (
	"log/slog"

	pointsmodel "github.com/stayswap/stayswap/internal/core/datamodel/points"
)

// Repository is the data access surface for the append-only ledger.
type Repository interface {
	Append(entry *pointsmodel.LedgerEntry) error
	SumDeltas(userID int64) (int64, error)
}

// Service exposes balance reads and signed movements. The ledger only ever
// tracks point movement; whether a booking is paid lives on the booking row.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Balance returns the derived balance for a user, clamped at zero. A
// negative sum can only appear transiently while a legacy-path settlement
// is being compensated; it is never surfaced.
func (s *Service) Balance(userID int64) (int64, error) {
	sum, err := s.repo.SumDeltas(userID)
	if err != nil {
		s.logger.Error("failed to read ledger balance", "error", err, "user_id", userID)
		return 0, err
	}
	if sum < 0 {
		return 0, nil
	}
	return sum, nil
}

// ClampPoints bounds a redemption request: a user may redeem at most one
// point per night of stay and never more than their balance. Negative
// requests count as zero.
func ClampPoints(requested, balance, nights int64) int64 {
	if requested < 0 {
		requested = 0
	}
	clamped := requested
	if clamped > balance {
		clamped = balance
	}
	if clamped > nights {
		clamped = nights
	}
	if clamped < 0 {
		return 0
	}
	return clamped
}

// Debit appends a negative entry for amount points.
func (s *Service) Debit(userID int64, bookingID *int64, amount int64, reason string) error {
	if amount <= 0 {
		return nil
	}
	entry := &pointsmodel.LedgerEntry{
		UserID:      userID,
		BookingID:   bookingID,
		PointsDelta: -amount,
		Reason:      reason,
	}
	if err := s.repo.Append(entry); err != nil {
		s.logger.Error("failed to append ledger debit", "error", err, "user_id", userID, "amount", amount, "reason", reason)
		return err
	}
	s.logger.Info("ledger debit", "user_id", userID, "points_delta", -amount, "reason", reason)
	return nil
}

// Credit appends a positive entry for amount points.
func (s *Service) Credit(userID int64, bookingID *int64, amount int64, reason string) error {
	if amount <= 0 {
		return nil
	}
	entry := &pointsmodel.LedgerEntry{
		UserID:      userID,
		BookingID:   bookingID,
		PointsDelta: amount,
		Reason:      reason,
	}
	if err := s.repo.Append(entry); err != nil {
		s.logger.Error("failed to append ledger credit", "error", err, "user_id", userID, "amount", amount, "reason", reason)
		return err
	}
	s.logger.Info("ledger credit", "user_id", userID, "points_delta", amount, "reason", reason)
	return nil
}
