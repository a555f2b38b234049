package booking

import (
	"time"

	bookingmodel "github.com/stayswap/stayswap/internal/core/datamodel/booking"
)

// SettleParams is the input to the atomic settlement primitive.
type SettleParams struct {
	BookingID          int64
	PayerID            int64
	PointsApplied      int64
	ServiceFeePerNight int64
	CleaningFee        int64
	InsuranceFee       int64
	ServiceFeeTotal    int64
	TotalFee           int64
	CashDue            int64
	PaidAt             time.Time
}

// SettleResult reports what the primitive actually did. Updated=false with
// AlreadyPaid=true means a concurrent caller won the race; that is success
// as a no-op for the loser.
type SettleResult struct {
	Updated       bool  `json:"updated"`
	AlreadyPaid   bool  `json:"already_paid"`
	PointsApplied int64 `json:"points_applied"`
	CashDue       int64 `json:"cash_due"`
}

// Repository is the booking data access surface. SettlePayment is the
// atomic primitive: one unit of work that re-checks payment_status, writes
// the fee snapshot and payment fields, debits the ledger, and reports
// whether it performed the update. It returns internal.ErrSchemaGap when
// the datastore has not been migrated for it, in which case the coordinator
// falls back to the legacy non-atomic sequence.
type Repository interface {
	Create(b *bookingmodel.Booking) error
	GetByID(id int64) (*bookingmodel.Booking, error)
	GetByGatewayIntentID(intentID string) (*bookingmodel.Booking, error)
	ListForUser(userID int64, limit, offset int) ([]*bookingmodel.Booking, error)
	UpdateStatus(id int64, fromStatuses []string, to string) (bool, error)
	AttachGatewayIntent(id int64, intentID string, pointsApplied, cashDue int64) error

	SettlePayment(p SettleParams) (SettleResult, error)
	// MarkPaidIfUnpaid is the legacy conditional update used while the
	// atomic primitive is unavailable. Returns false when no row matched.
	MarkPaidIfUnpaid(p SettleParams) (bool, error)

	// ListCompletable returns paid bookings whose stay has ended and whose
	// status still admits completion.
	ListCompletable(now time.Time, limit int) ([]*bookingmodel.Booking, error)
	// CompleteIfDue transitions a booking to completed and flips
	// points_awarded in the same conditional update. Returns false when
	// another sweep got there first.
	CompleteIfDue(id int64, now time.Time) (bool, error)
}

// PointsLedger is the slice of the points service the coordinator needs.
type PointsLedger interface {
	Balance(userID int64) (int64, error)
	Debit(userID int64, bookingID *int64, amount int64, reason string) error
	Credit(userID int64, bookingID *int64, amount int64, reason string) error
}

// Notifier records an in-app notification row. Failures never fail
// settlement.
type Notifier interface {
	Notify(userID int64, notifType, content string, referenceID int64) error
}

// EmailEnqueuer queues an outbound email job for the background worker.
type EmailEnqueuer interface {
	EnqueueEmail(to, emailType, subject, html, previewText string) error
}

// UserDirectory resolves party contact details for notifications and the
// gateway customer on file for checkouts.
type UserDirectory interface {
	GetEmail(userID int64) (string, error)
	GatewayCustomerID(userID int64) (string, error)
	SetGatewayCustomerID(userID int64, customerID string) error
}

// CheckoutGateway creates or resumes a gateway checkout for the cash
// portion of a settlement. EnsureCustomer returns the gateway customer id
// the payer's charges attach to.
type CheckoutGateway interface {
	EnsureCustomer(userID int64, email string) (string, error)
	CreateCheckoutSession(b *bookingmodel.Booking, customerID string, pointsApplied, cashDue int64) (clientSecret, intentID string, err error)
}
