package postgres

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	jobmodel "github.com/stayswap/stayswap/internal/core/datamodel/job"
	"github.com/stayswap/stayswap/internal/jobs"
)

func TestQueueRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Job Queue Repository Suite")
}

type SQLiteJob struct {
	ID          int64      `gorm:"primaryKey"`
	Task        string     `gorm:"column:task;not null"`
	Payload     []byte     `gorm:"column:payload"`
	Status      string     `gorm:"column:status;default:queued"`
	RunAt       time.Time  `gorm:"column:run_at"`
	Attempts    int        `gorm:"column:attempts;default:0"`
	MaxAttempts int        `gorm:"column:max_attempts;default:5"`
	LockedBy    string     `gorm:"column:locked_by"`
	LockedAt    *time.Time `gorm:"column:locked_at"`
	LastError   string     `gorm:"column:last_error"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (SQLiteJob) TableName() string {
	return "jobs"
}

type SQLiteCacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey"`
	Value     string    `gorm:"column:value"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (SQLiteCacheEntry) TableName() string {
	return "cache_entries"
}

type SQLiteRateLimitCounter struct {
	ID          int64     `gorm:"primaryKey"`
	Scope       string    `gorm:"column:scope"`
	Subject     string    `gorm:"column:subject"`
	Count       int       `gorm:"column:count;default:0"`
	WindowStart time.Time `gorm:"column:window_start"`
}

func (SQLiteRateLimitCounter) TableName() string {
	return "rate_limit_counters"
}

var _ = Describe("QueueRepository", func() {
	var (
		db   *gorm.DB
		repo jobs.Queue
	)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	lockTimeout := 5 * time.Minute

	enqueue := func(task string, runAt time.Time) *jobmodel.Job {
		j := &jobmodel.Job{
			Task:        task,
			Payload:     []byte(`{}`),
			Status:      jobmodel.StatusQueued,
			RunAt:       runAt,
			MaxAttempts: 3,
		}
		Expect(repo.Enqueue(j)).To(Succeed())
		return j
	}

	readJob := func(id int64) *SQLiteJob {
		var j SQLiteJob
		Expect(db.First(&j, id).Error).NotTo(HaveOccurred())
		return &j
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteJob{}, &SQLiteCacheEntry{}, &SQLiteRateLimitCounter{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewQueueRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("Claim", func() {
		It("should claim a due job and mark it processing", func() {
			j := enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Minute))

			claimed, err := repo.Claim(10, "worker-1", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(HaveLen(1))
			Expect(claimed[0].ID).To(Equal(j.ID))
			Expect(claimed[0].Status).To(Equal(jobmodel.StatusProcessing))
			Expect(claimed[0].LockedBy).To(Equal("worker-1"))

			row := readJob(j.ID)
			Expect(row.Status).To(Equal(jobmodel.StatusProcessing))
			Expect(row.LockedBy).To(Equal("worker-1"))
		})

		It("should not hand the same job to a second worker", func() {
			enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Minute))

			first, err := repo.Claim(10, "worker-1", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(HaveLen(1))

			second, err := repo.Claim(10, "worker-2", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeEmpty())
		})

		It("should skip jobs scheduled in the future", func() {
			enqueue(jobmodel.TaskEmailNotification, now.Add(time.Hour))

			claimed, err := repo.Claim(10, "worker-1", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeEmpty())
		})

		It("should reclaim a job whose lock expired", func() {
			j := enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Hour))

			_, err := repo.Claim(10, "worker-1", now.Add(-lockTimeout-time.Minute), lockTimeout)
			Expect(err).NotTo(HaveOccurred())

			claimed, err := repo.Claim(10, "worker-2", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(HaveLen(1))
			Expect(claimed[0].ID).To(Equal(j.ID))
			Expect(claimed[0].LockedBy).To(Equal("worker-2"))
		})

		It("should not reclaim a lock that is still fresh", func() {
			enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Hour))

			_, err := repo.Claim(10, "worker-1", now.Add(-time.Minute), lockTimeout)
			Expect(err).NotTo(HaveOccurred())

			claimed, err := repo.Claim(10, "worker-2", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeEmpty())
		})

		It("should respect the batch size, oldest first", func() {
			enqueue(jobmodel.TaskEmailNotification, now.Add(-3*time.Minute))
			enqueue(jobmodel.TaskEmailNotification, now.Add(-2*time.Minute))
			enqueue(jobmodel.TaskEmailNotification, now.Add(-1*time.Minute))

			claimed, err := repo.Claim(2, "worker-1", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(HaveLen(2))
			Expect(claimed[0].RunAt.Before(claimed[1].RunAt)).To(BeTrue())
		})
	})

	Describe("MarkSucceeded", func() {
		It("should complete a job for the lock holder", func() {
			j := enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Minute))
			_, err := repo.Claim(10, "worker-1", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())

			ok, err := repo.MarkSucceeded(j.ID, "worker-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(readJob(j.ID).Status).To(Equal(jobmodel.StatusSucceeded))
		})

		It("should refuse a worker that no longer holds the lock", func() {
			j := enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Minute))
			_, err := repo.Claim(10, "worker-1", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())

			ok, err := repo.MarkSucceeded(j.ID, "worker-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(readJob(j.ID).Status).To(Equal(jobmodel.StatusProcessing))
		})
	})

	Describe("MarkFailed", func() {
		claimOne := func() *jobmodel.Job {
			claimed, err := repo.Claim(10, "worker-1", now, lockTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(HaveLen(1))
			return claimed[0]
		}

		It("should schedule a retry with backoff while attempts remain", func() {
			enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Minute))
			j := claimOne()

			ok, err := repo.MarkFailed(j.ID, "worker-1", "smtp timeout", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			row := readJob(j.ID)
			Expect(row.Status).To(Equal(jobmodel.StatusRetry))
			Expect(row.Attempts).To(Equal(1))
			Expect(row.LastError).To(Equal("smtp timeout"))
			Expect(row.RunAt).To(BeTemporally("==", now.Add(jobs.Backoff(1))))
		})

		It("should park the job as failed once attempts are exhausted", func() {
			j := enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Minute))
			Expect(db.Model(&SQLiteJob{}).Where("id = ?", j.ID).Update("attempts", 2).Error).NotTo(HaveOccurred())
			claimOne()

			ok, err := repo.MarkFailed(j.ID, "worker-1", "still broken", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			row := readJob(j.ID)
			Expect(row.Status).To(Equal(jobmodel.StatusFailed))
			Expect(row.Attempts).To(Equal(3))
		})

		It("should refuse a worker that no longer holds the lock", func() {
			j := enqueue(jobmodel.TaskEmailNotification, now.Add(-time.Minute))
			claimOne()

			ok, err := repo.MarkFailed(j.ID, "worker-2", "nope", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("housekeeping deletes", func() {
		It("should delete only expired cache entries, bounded", func() {
			for i := 0; i < 3; i++ {
				Expect(db.Create(&SQLiteCacheEntry{
					Key:       string(rune('a' + i)),
					ExpiresAt: now.Add(-time.Hour),
				}).Error).NotTo(HaveOccurred())
			}
			Expect(db.Create(&SQLiteCacheEntry{Key: "fresh", ExpiresAt: now.Add(time.Hour)}).Error).NotTo(HaveOccurred())

			deleted, err := repo.DeleteExpiredCache(now, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(2)))

			var remaining int64
			Expect(db.Model(&SQLiteCacheEntry{}).Count(&remaining).Error).NotTo(HaveOccurred())
			Expect(remaining).To(Equal(int64(2)))
		})

		It("should delete counters whose window started before the cutoff", func() {
			Expect(db.Create(&SQLiteRateLimitCounter{Scope: "login", Subject: "1.2.3.4", WindowStart: now.Add(-48 * time.Hour)}).Error).NotTo(HaveOccurred())
			Expect(db.Create(&SQLiteRateLimitCounter{Scope: "login", Subject: "5.6.7.8", WindowStart: now.Add(-time.Hour)}).Error).NotTo(HaveOccurred())

			deleted, err := repo.DeleteStaleRateCounters(now.Add(-24*time.Hour), 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(1)))

			var remaining int64
			Expect(db.Model(&SQLiteRateLimitCounter{}).Count(&remaining).Error).NotTo(HaveOccurred())
			Expect(remaining).To(Equal(int64(1)))
		})
	})
})
