package postgres

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stayswap/stayswap/internal/core/datamodel/webhookevent"
	"github.com/stayswap/stayswap/internal/payment"
)

func TestWebhookEventRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Webhook Event Repository Suite")
}

type SQLiteEventRecord struct {
	ID              int64     `gorm:"primaryKey"`
	ProviderEventID string    `gorm:"column:provider_event_id;not null;uniqueIndex"`
	EventType       string    `gorm:"column:event_type;not null"`
	BookingID       *int64    `gorm:"column:booking_id"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (SQLiteEventRecord) TableName() string {
	return "webhook_events"
}

var _ = Describe("WebhookEventRepository", func() {
	var (
		db   *gorm.DB
		repo payment.EventStore
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteEventRecord{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewWebhookEventRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("Insert", func() {
		It("should claim a new event id", func() {
			inserted, err := repo.Insert(&webhookevent.EventRecord{
				ProviderEventID: "evt_1",
				EventType:       payment.EventIntentSucceeded,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})

		It("should report a second claim of the same id as a duplicate", func() {
			_, err := repo.Insert(&webhookevent.EventRecord{
				ProviderEventID: "evt_1",
				EventType:       payment.EventIntentSucceeded,
			})
			Expect(err).NotTo(HaveOccurred())

			inserted, err := repo.Insert(&webhookevent.EventRecord{
				ProviderEventID: "evt_1",
				EventType:       payment.EventIntentSucceeded,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())
		})
	})

	Describe("Delete", func() {
		It("should release a claimed event for redelivery", func() {
			_, err := repo.Insert(&webhookevent.EventRecord{
				ProviderEventID: "evt_1",
				EventType:       payment.EventIntentSucceeded,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.Delete("evt_1")).To(Succeed())

			inserted, err := repo.Insert(&webhookevent.EventRecord{
				ProviderEventID: "evt_1",
				EventType:       payment.EventIntentSucceeded,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})
	})
})
