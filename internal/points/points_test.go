package points_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	pointsmodel "github.com/stayswap/stayswap/internal/core/datamodel/points"
	"github.com/stayswap/stayswap/internal/points"
)

func TestPoints(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Points Service Suite")
}

type mockLedgerRepository struct {
	entries   []*pointsmodel.LedgerEntry
	sumError  error
	appendErr error
}

func (m *mockLedgerRepository) Append(entry *pointsmodel.LedgerEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockLedgerRepository) SumDeltas(userID int64) (int64, error) {
	if m.sumError != nil {
		return 0, m.sumError
	}
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.PointsDelta
		}
	}
	return sum, nil
}

var _ = Describe("ClampPoints", func() {
	It("should cap the request at the balance", func() {
		Expect(points.ClampPoints(10, 3, 8)).To(Equal(int64(3)))
	})

	It("should cap the request at one point per night", func() {
		Expect(points.ClampPoints(10, 5, 2)).To(Equal(int64(2)))
	})

	It("should pass an affordable request through unchanged", func() {
		Expect(points.ClampPoints(2, 5, 4)).To(Equal(int64(2)))
	})

	It("should treat a negative request as zero", func() {
		Expect(points.ClampPoints(-3, 5, 4)).To(Equal(int64(0)))
	})

	It("should never return a negative value", func() {
		Expect(points.ClampPoints(5, -1, -1)).To(Equal(int64(0)))
	})
})

var _ = Describe("PointsService", func() {
	var (
		repo    *mockLedgerRepository
		service *points.Service
	)

	BeforeEach(func() {
		repo = &mockLedgerRepository{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = points.NewService(repo, logger)
	})

	Describe("Balance", func() {
		It("should sum the signed deltas", func() {
			repo.entries = []*pointsmodel.LedgerEntry{
				{UserID: 1, PointsDelta: 5},
				{UserID: 1, PointsDelta: -2},
				{UserID: 2, PointsDelta: 9},
			}

			balance, err := service.Balance(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(balance).To(Equal(int64(3)))
		})

		It("should clamp a negative sum to zero", func() {
			repo.entries = []*pointsmodel.LedgerEntry{
				{UserID: 1, PointsDelta: 2},
				{UserID: 1, PointsDelta: -5},
			}

			balance, err := service.Balance(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(balance).To(Equal(int64(0)))
		})

		It("should propagate read failures", func() {
			repo.sumError = errors.New("connection reset")

			_, err := service.Balance(1)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Debit", func() {
		It("should append a negative delta", func() {
			bookingID := int64(42)
			err := service.Debit(1, &bookingID, 3, pointsmodel.ReasonBookingPaymentPoints)

			Expect(err).NotTo(HaveOccurred())
			Expect(repo.entries).To(HaveLen(1))
			Expect(repo.entries[0].PointsDelta).To(Equal(int64(-3)))
			Expect(repo.entries[0].Reason).To(Equal(pointsmodel.ReasonBookingPaymentPoints))
			Expect(*repo.entries[0].BookingID).To(Equal(int64(42)))
		})

		It("should write nothing for a zero amount", func() {
			err := service.Debit(1, nil, 0, pointsmodel.ReasonBookingPaymentPoints)

			Expect(err).NotTo(HaveOccurred())
			Expect(repo.entries).To(BeEmpty())
		})
	})

	Describe("Credit", func() {
		It("should append a positive delta", func() {
			err := service.Credit(7, nil, 4, pointsmodel.ReasonBookingCompletedPoints)

			Expect(err).NotTo(HaveOccurred())
			Expect(repo.entries).To(HaveLen(1))
			Expect(repo.entries[0].PointsDelta).To(Equal(int64(4)))
		})

		It("should propagate append failures", func() {
			repo.appendErr = errors.New("disk full")

			err := service.Credit(7, nil, 4, pointsmodel.ReasonBookingCompletedPoints)
			Expect(err).To(HaveOccurred())
		})
	})
})
