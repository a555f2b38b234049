package postgres

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pointsmodel "github.com/stayswap/stayswap/internal/core/datamodel/points"
	"github.com/stayswap/stayswap/internal/points"
)

func TestLedgerRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Points Ledger Repository Suite")
}

type SQLiteLedgerEntry struct {
	ID          int64     `gorm:"primaryKey"`
	UserID      int64     `gorm:"column:user_id;not null"`
	BookingID   *int64    `gorm:"column:booking_id"`
	PointsDelta int64     `gorm:"column:points_delta;not null"`
	Reason      string    `gorm:"column:reason;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (SQLiteLedgerEntry) TableName() string {
	return "points_ledger_entries"
}

var _ = Describe("LedgerRepository", func() {
	var (
		db   *gorm.DB
		repo points.Repository
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteLedgerEntry{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewLedgerRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("SumDeltas", func() {
		It("should sum only the user's entries", func() {
			Expect(repo.Append(&pointsmodel.LedgerEntry{UserID: 1, PointsDelta: 5, Reason: pointsmodel.ReasonBookingCompletedPoints})).To(Succeed())
			Expect(repo.Append(&pointsmodel.LedgerEntry{UserID: 1, PointsDelta: -2, Reason: pointsmodel.ReasonBookingPaymentPoints})).To(Succeed())
			Expect(repo.Append(&pointsmodel.LedgerEntry{UserID: 2, PointsDelta: 7, Reason: pointsmodel.ReasonBookingCompletedPoints})).To(Succeed())

			sum, err := repo.SumDeltas(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(sum).To(Equal(int64(3)))
		})

		It("should return zero for a user with no entries", func() {
			sum, err := repo.SumDeltas(99)
			Expect(err).NotTo(HaveOccurred())
			Expect(sum).To(Equal(int64(0)))
		})

		It("should surface a negative sum unclamped", func() {
			Expect(repo.Append(&pointsmodel.LedgerEntry{UserID: 1, PointsDelta: -4, Reason: pointsmodel.ReasonBookingPaymentPoints})).To(Succeed())

			sum, err := repo.SumDeltas(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(sum).To(Equal(int64(-4)))
		})
	})
})
