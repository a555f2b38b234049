package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internal "github.com/stayswap/stayswap/internal"
	"github.com/stayswap/stayswap/internal/core/datamodel/booking"
	"github.com/stayswap/stayswap/internal/core/datamodel/notification"
	pointsmodel "github.com/stayswap/stayswap/internal/core/datamodel/points"
	"github.com/stayswap/stayswap/internal/core/events"
	"github.com/stayswap/stayswap/internal/points"
)

// Settlement sources, logged and carried on the settled event.
const (
	settleSourceManual  = "manual"
	settleSourceWebhook = "webhook"
	settleSourceLegacy  = "legacy"
)

// Service is the settlement coordinator: the single choke point that moves
// a booking from unpaid to paid, plus the surrounding booking lifecycle.
type Service struct {
	repo     Repository
	ledger   PointsLedger
	gateway  CheckoutGateway
	notifier Notifier
	emails   EmailEnqueuer
	users    UserDirectory
	bus      *events.EventBus
	payments internal.PaymentsConfig
	logger   *slog.Logger
}

func NewService(
	repo Repository,
	ledger PointsLedger,
	gateway CheckoutGateway,
	notifier Notifier,
	emails EmailEnqueuer,
	users UserDirectory,
	bus *events.EventBus,
	payments internal.PaymentsConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		gateway:  gateway,
		notifier: notifier,
		emails:   emails,
		users:    users,
		bus:      bus,
		payments: payments,
		logger:   logger,
	}
}

// CreateBooking records a sitter's stay request with the fee snapshot
// frozen at creation time.
func (s *Service) CreateBooking(sitterID int64, dto CreateBookingDTO) (*booking.Booking, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("booking validation failed", "error", err, "sitter_id", sitterID)
		return nil, err
	}
	if dto.OwnerID == sitterID {
		return nil, internal.NewValidationError("cannot book your own listing", internal.ErrCodeValidationFailed)
	}

	fees := CalculateFees(dto.StartDate, dto.EndDate, dto.ServiceFeePerNight, dto.CleaningFee, dto.InsuranceFee)
	b := &booking.Booking{
		OwnerID:            dto.OwnerID,
		SitterID:           sitterID,
		StartDate:          dto.StartDate,
		EndDate:            dto.EndDate,
		Status:             booking.StatusPending,
		PaymentStatus:      booking.PaymentStatusUnpaid,
		ServiceFeePerNight: fees.ServiceFeePerNight,
		CleaningFee:        fees.CleaningFee,
		InsuranceFee:       fees.InsuranceFee,
		ServiceFeeTotal:    fees.ServiceFeeTotal,
		TotalFee:           fees.TotalFee,
	}

	if err := s.repo.Create(b); err != nil {
		s.logger.Error("failed to create booking", "error", err, "sitter_id", sitterID)
		return nil, internal.NewInternalError("failed to create booking", err)
	}

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"owner_id", b.OwnerID,
		"sitter_id", sitterID,
		"nights", fees.Nights,
		"total_fee", fees.TotalFee)
	return b, nil
}

// RespondBooking lets the listing owner accept or decline a pending request.
func (s *Service) RespondBooking(bookingID, ownerID int64, accept bool) (*booking.Booking, error) {
	b, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, internal.ErrBookingNotFound
	}
	if b.OwnerID != ownerID {
		return nil, internal.NewForbiddenError("only the listing owner can respond to this booking", internal.ErrCodeNotPayingParty)
	}

	to := booking.StatusDeclined
	if accept {
		to = booking.StatusAccepted
	}
	updated, err := s.repo.UpdateStatus(bookingID, []string{booking.StatusPending}, to)
	if err != nil {
		return nil, internal.NewInternalError("failed to update booking status", err)
	}
	if !updated {
		return nil, internal.NewValidationError("booking is no longer pending", internal.ErrCodeBookingNotPayable)
	}

	s.logger.Info("booking responded", "booking_id", bookingID, "status", to)
	return s.repo.GetByID(bookingID)
}

// CancelBooking cancels an unpaid booking; paid bookings go through the
// refund flow, which is outside this service.
func (s *Service) CancelBooking(bookingID, userID int64) error {
	b, err := s.repo.GetByID(bookingID)
	if err != nil {
		return internal.ErrBookingNotFound
	}
	if b.OwnerID != userID && b.SitterID != userID {
		return internal.NewForbiddenError("not a party to this booking", internal.ErrCodeNotPayingParty)
	}
	if b.IsPaid() {
		return internal.NewValidationError("paid bookings must be refunded, not cancelled", internal.ErrCodeBookingNotPayable)
	}

	updated, err := s.repo.UpdateStatus(bookingID,
		[]string{booking.StatusPending, booking.StatusConfirmed, booking.StatusAccepted},
		booking.StatusCancelled)
	if err != nil {
		return internal.NewInternalError("failed to cancel booking", err)
	}
	if !updated {
		return internal.NewValidationError("booking cannot be cancelled in its current status", internal.ErrCodeBookingNotPayable)
	}
	s.logger.Info("booking cancelled", "booking_id", bookingID, "by_user", userID)
	return nil
}

func (s *Service) GetBooking(bookingID, userID int64) (*booking.Booking, error) {
	b, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, internal.ErrBookingNotFound
	}
	if b.OwnerID != userID && b.SitterID != userID {
		return nil, internal.NewForbiddenError("not a party to this booking", internal.ErrCodeNotPayingParty)
	}
	return b, nil
}

func (s *Service) ListBookings(userID int64, limit, offset int) ([]*booking.Booking, error) {
	return s.repo.ListForUser(userID, limit, offset)
}

// CompletePayment settles a booking on the manual path. Preconditions are
// checked in order, each a distinct failure; an already paid booking is a
// success as a no-op. The points request is clamped against balance and
// stay length before anything is written.
func (s *Service) CompletePayment(ctx context.Context, bookingID, payerID, requestedPoints int64) (*SettleResult, error) {
	b, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, internal.ErrBookingNotFound
	}
	if b.SitterID != payerID {
		return nil, internal.ErrNotPayingParty
	}
	if !b.IsPayable() {
		return nil, internal.ErrBookingNotPayable
	}
	if b.IsPaid() {
		s.logger.Info("booking already paid, treating as no-op", "booking_id", bookingID)
		return &SettleResult{Updated: false, AlreadyPaid: true, PointsApplied: b.PointsApplied, CashDue: b.CashDue}, nil
	}

	fees := CalculateFees(b.StartDate, b.EndDate, b.ServiceFeePerNight, b.CleaningFee, b.InsuranceFee)
	balance, err := s.ledger.Balance(b.SitterID)
	if err != nil {
		return nil, internal.NewTransientError("failed to read points balance", err)
	}
	pointsApplied := points.ClampPoints(requestedPoints, balance, fees.Nights)
	pointsValue := pointsApplied * fees.ServiceFeePerNight
	cashDue := fees.TotalFee - pointsValue
	if cashDue < 0 {
		cashDue = 0
	}

	if cashDue > 0 && !s.payments.AllowManualCompletion {
		return nil, internal.NewConfigurationError(
			"manual completion is disabled here; use the gateway checkout to pay the cash portion",
			internal.ErrCodeManualPayDisabled)
	}

	params := SettleParams{
		BookingID:          b.ID,
		PayerID:            b.SitterID,
		PointsApplied:      pointsApplied,
		ServiceFeePerNight: fees.ServiceFeePerNight,
		CleaningFee:        fees.CleaningFee,
		InsuranceFee:       fees.InsuranceFee,
		ServiceFeeTotal:    fees.ServiceFeeTotal,
		TotalFee:           fees.TotalFee,
		CashDue:            cashDue,
		PaidAt:             time.Now().UTC(),
	}

	return s.settle(ctx, b, params, settleSourceManual)
}

// SettleFromGateway finalizes a booking after the webhook processor has
// verified a captured charge. Environment restrictions on manual completion
// do not apply: the cash has already settled at the gateway.
func (s *Service) SettleFromGateway(ctx context.Context, bookingID, cashPaid int64) (*SettleResult, error) {
	b, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, internal.ErrBookingNotFound
	}
	if b.IsPaid() {
		return &SettleResult{Updated: false, AlreadyPaid: true, PointsApplied: b.PointsApplied, CashDue: b.CashDue}, nil
	}

	fees := CalculateFees(b.StartDate, b.EndDate, b.ServiceFeePerNight, b.CleaningFee, b.InsuranceFee)
	pointsApplied := b.PointsApplied
	cashDue := fees.TotalFee - pointsApplied*fees.ServiceFeePerNight
	if cashDue < 0 {
		cashDue = 0
	}

	params := SettleParams{
		BookingID:          b.ID,
		PayerID:            b.SitterID,
		PointsApplied:      pointsApplied,
		ServiceFeePerNight: fees.ServiceFeePerNight,
		CleaningFee:        fees.CleaningFee,
		InsuranceFee:       fees.InsuranceFee,
		ServiceFeeTotal:    fees.ServiceFeeTotal,
		TotalFee:           fees.TotalFee,
		CashDue:            cashDue,
		PaidAt:             time.Now().UTC(),
	}

	s.logger.Info("settling from gateway charge",
		"booking_id", b.ID, "cash_paid", cashPaid, "cash_due", cashDue, "points_applied", pointsApplied)
	return s.settle(ctx, b, params, settleSourceWebhook)
}

// ExpectedCharge computes the cash amount a gateway charge must cover for a
// booking, fresh from the current fee fields.
func (s *Service) ExpectedCharge(b *booking.Booking) int64 {
	fees := CalculateFees(b.StartDate, b.EndDate, b.ServiceFeePerNight, b.CleaningFee, b.InsuranceFee)
	cashDue := fees.TotalFee - b.PointsApplied*fees.ServiceFeePerNight
	if cashDue < 0 {
		cashDue = 0
	}
	return cashDue
}

// FindByID exposes booking lookup for the webhook processor without party
// checks; the webhook has no acting user.
func (s *Service) FindByID(bookingID int64) (*booking.Booking, error) {
	return s.repo.GetByID(bookingID)
}

func (s *Service) FindByGatewayIntent(intentID string) (*booking.Booking, error) {
	return s.repo.GetByGatewayIntentID(intentID)
}

// settle drives the atomic primitive with fallback to the legacy sequence
// when the datastore reports a schema migration gap.
func (s *Service) settle(ctx context.Context, b *booking.Booking, params SettleParams, source string) (*SettleResult, error) {
	res, err := s.repo.SettlePayment(params)
	switch {
	case err == nil:
		// fallthrough to result handling
	case errors.Is(err, internal.ErrSchemaGap):
		s.logger.Warn("atomic settlement primitive unavailable, using legacy path",
			"booking_id", params.BookingID, "legacy_path", true)
		return s.settleLegacy(ctx, b, params)
	default:
		return nil, internal.NewTransientError("settlement write failed", err)
	}

	if !res.Updated {
		if res.AlreadyPaid {
			s.logger.Info("lost settlement race, booking already paid", "booking_id", params.BookingID, "source", source)
			return &res, nil
		}
		return nil, internal.ErrSettlementLost
	}

	s.logger.Info("booking payment settled",
		"booking_id", params.BookingID,
		"points_applied", res.PointsApplied,
		"cash_due", res.CashDue,
		"source", source)
	s.afterSettlement(ctx, b, &res, source)
	return &res, nil
}

// settleLegacy is the migration-bridge path: debit points first, then a
// conditional booking update; compensate the debit with a rollback entry if
// the update does not land. The window where the debit exists without the
// booking being paid is accepted only while the migration is incomplete.
func (s *Service) settleLegacy(ctx context.Context, b *booking.Booking, params SettleParams) (*SettleResult, error) {
	bookingID := params.BookingID
	if params.PointsApplied > 0 {
		if err := s.ledger.Debit(params.PayerID, &bookingID, params.PointsApplied, pointsmodel.ReasonBookingPaymentPoints); err != nil {
			return nil, internal.NewTransientError("points debit failed", err)
		}
	}

	updated, err := s.repo.MarkPaidIfUnpaid(params)
	if err != nil {
		s.rollbackDebit(params)
		return nil, internal.NewTransientError("legacy settlement update failed", err)
	}
	if !updated {
		s.rollbackDebit(params)
		current, readErr := s.repo.GetByID(bookingID)
		if readErr == nil && current.IsPaid() {
			s.logger.Info("lost legacy settlement race, booking already paid", "booking_id", bookingID)
			return &SettleResult{Updated: false, AlreadyPaid: true, PointsApplied: current.PointsApplied, CashDue: current.CashDue}, nil
		}
		return nil, internal.ErrSettlementLost
	}

	res := &SettleResult{Updated: true, PointsApplied: params.PointsApplied, CashDue: params.CashDue}
	s.logger.Info("booking payment settled via legacy path",
		"booking_id", bookingID,
		"points_applied", res.PointsApplied,
		"cash_due", res.CashDue,
		"legacy_path", true)
	s.afterSettlement(ctx, b, res, settleSourceLegacy)
	return res, nil
}

func (s *Service) rollbackDebit(params SettleParams) {
	if params.PointsApplied <= 0 {
		return
	}
	bookingID := params.BookingID
	if err := s.ledger.Credit(params.PayerID, &bookingID, params.PointsApplied, pointsmodel.ReasonBookingPaymentPointsRollback); err != nil {
		// The rollback entry itself failed; the ledger is now short. This is
		// operator territory, not something to retry blindly.
		s.logger.Error("CRITICAL: failed to append rollback ledger entry",
			"error", err, "booking_id", params.BookingID, "points", params.PointsApplied)
	}
}

// afterSettlement fans out post-settlement effects. None of these may fail
// the settlement; everything here is log-and-continue.
func (s *Service) afterSettlement(ctx context.Context, b *booking.Booking, res *SettleResult, source string) {
	content := fmt.Sprintf("Booking #%d is paid: %d points + %d cents cash", b.ID, res.PointsApplied, res.CashDue)
	for _, userID := range []int64{b.OwnerID, b.SitterID} {
		if err := s.notifier.Notify(userID, notification.TypeBookingPaid, content, b.ID); err != nil {
			s.logger.Error("failed to write settlement notification", "error", err, "user_id", userID, "booking_id", b.ID)
		}
		email, err := s.users.GetEmail(userID)
		if err != nil || email == "" {
			continue
		}
		if err := s.emails.EnqueueEmail(
			email,
			notification.TypeBookingPaid,
			fmt.Sprintf("Your StaySwap booking #%d is confirmed and paid", b.ID),
			fmt.Sprintf("<p>%s</p>", content),
			"Payment received",
		); err != nil {
			s.logger.Error("failed to enqueue settlement email", "error", err, "user_id", userID, "booking_id", b.ID)
		}
	}

	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewBookingSettledEvent(
			b.ID, b.OwnerID, b.SitterID, res.PointsApplied, res.CashDue, source))
	}
}

// CreateCheckoutSession opens (or resumes) a gateway checkout for the cash
// portion of a booking. The points request is clamped and frozen onto the
// booking alongside the intent id so the webhook can settle against it.
func (s *Service) CreateCheckoutSession(ctx context.Context, bookingID, payerID, requestedPoints int64) (*CheckoutResponse, error) {
	b, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, internal.ErrBookingNotFound
	}
	if b.SitterID != payerID {
		return nil, internal.ErrNotPayingParty
	}
	if !b.IsPayable() {
		return nil, internal.ErrBookingNotPayable
	}
	if b.IsPaid() {
		msg := "booking is already paid"
		return &CheckoutResponse{Error: &msg}, nil
	}

	fees := CalculateFees(b.StartDate, b.EndDate, b.ServiceFeePerNight, b.CleaningFee, b.InsuranceFee)
	balance, err := s.ledger.Balance(b.SitterID)
	if err != nil {
		return nil, internal.NewTransientError("failed to read points balance", err)
	}
	pointsApplied := points.ClampPoints(requestedPoints, balance, fees.Nights)
	cashDue := fees.TotalFee - pointsApplied*fees.ServiceFeePerNight
	if cashDue < 0 {
		cashDue = 0
	}

	if cashDue == 0 {
		// Nothing for the gateway to collect; settle on the spot.
		if _, err := s.CompletePayment(ctx, bookingID, payerID, requestedPoints); err != nil {
			return nil, err
		}
		return &CheckoutResponse{}, nil
	}

	customerID := s.resolveGatewayCustomer(b.SitterID)
	clientSecret, intentID, err := s.gateway.CreateCheckoutSession(b, customerID, pointsApplied, cashDue)
	if err != nil {
		var appErr *internal.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, internal.NewTransientError("gateway checkout failed", err)
	}

	if err := s.repo.AttachGatewayIntent(b.ID, intentID, pointsApplied, cashDue); err != nil {
		return nil, internal.NewInternalError("failed to attach gateway intent", err)
	}

	s.logger.Info("checkout session created",
		"booking_id", b.ID, "intent_id", intentID, "points_applied", pointsApplied, "cash_due", cashDue)
	return &CheckoutResponse{ClientSecret: &clientSecret}, nil
}

// resolveGatewayCustomer returns the payer's gateway customer id, creating
// one on first checkout and recording it on the user. A checkout still
// works without a customer attached, so failures here only log.
func (s *Service) resolveGatewayCustomer(userID int64) string {
	customerID, err := s.users.GatewayCustomerID(userID)
	if err != nil {
		s.logger.Warn("failed to read gateway customer id", "error", err, "user_id", userID)
		return ""
	}
	if customerID != "" {
		return customerID
	}

	email, err := s.users.GetEmail(userID)
	if err != nil {
		s.logger.Warn("failed to resolve payer email for gateway customer", "error", err, "user_id", userID)
		return ""
	}

	customerID, err = s.gateway.EnsureCustomer(userID, email)
	if err != nil {
		s.logger.Warn("failed to create gateway customer", "error", err, "user_id", userID)
		return ""
	}
	if err := s.users.SetGatewayCustomerID(userID, customerID); err != nil {
		s.logger.Warn("failed to record gateway customer id", "error", err, "user_id", userID)
	}
	return customerID
}

// AutoCompleteDue sweeps paid bookings whose stay has ended, transitions
// them to completed, and awards the owner one point per night exactly once.
// Returns how many bookings it completed.
func (s *Service) AutoCompleteDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListCompletable(now, limit)
	if err != nil {
		return 0, internal.NewTransientError("failed to list completable bookings", err)
	}

	completed := 0
	for _, b := range due {
		won, err := s.repo.CompleteIfDue(b.ID, now)
		if err != nil {
			s.logger.Error("failed to complete booking", "error", err, "booking_id", b.ID)
			continue
		}
		if !won {
			// Another sweep already flipped it; points were awarded there.
			continue
		}
		completed++

		fees := CalculateFees(b.StartDate, b.EndDate, b.ServiceFeePerNight, b.CleaningFee, b.InsuranceFee)
		bookingID := b.ID
		if fees.Nights > 0 {
			if err := s.ledger.Credit(b.OwnerID, &bookingID, fees.Nights, pointsmodel.ReasonBookingCompletedPoints); err != nil {
				s.logger.Error("CRITICAL: completed booking but failed to award points",
					"error", err, "booking_id", b.ID, "owner_id", b.OwnerID, "points", fees.Nights)
			}
		}

		content := fmt.Sprintf("Booking #%d completed; %d points awarded to the host", b.ID, fees.Nights)
		for _, userID := range []int64{b.OwnerID, b.SitterID} {
			if err := s.notifier.Notify(userID, notification.TypeBookingCompleted, content, b.ID); err != nil {
				s.logger.Error("failed to write completion notification", "error", err, "user_id", userID, "booking_id", b.ID)
			}
			email, err := s.users.GetEmail(userID)
			if err != nil || email == "" {
				continue
			}
			if err := s.emails.EnqueueEmail(
				email,
				notification.TypeBookingCompleted,
				fmt.Sprintf("StaySwap booking #%d completed", b.ID),
				fmt.Sprintf("<p>%s</p>", content),
				"Stay completed",
			); err != nil {
				s.logger.Error("failed to enqueue completion email", "error", err, "user_id", userID, "booking_id", b.ID)
			}
		}

		if s.bus != nil {
			_ = s.bus.Publish(ctx, events.NewBookingCompletedEvent(b.ID, b.OwnerID, b.SitterID, fees.Nights))
		}
		s.logger.Info("booking auto-completed", "booking_id", b.ID, "points_awarded", fees.Nights)
	}
	return completed, nil
}
