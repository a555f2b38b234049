package job

import (
	"encoding/json"
	"time"
)

// Job statuses. queued/retry rows become processing on claim, then
// succeeded, retry (with backoff) or failed (attempts exhausted).
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusRetry      = "retry"
)

// Task names dispatched by the worker.
const (
	TaskEmailNotification = "email.notification"
	TaskCacheCleanup      = "maintenance.cache_cleanup"
)

// Job is a row in the relational work queue. locked_by/locked_at implement
// claim ownership; a lock older than the configured timeout is considered
// abandoned and the row becomes claimable again.
type Job struct {
	ID          int64           `gorm:"primaryKey"`
	Task        string          `gorm:"column:task;not null;index"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb"`
	Status      string          `gorm:"column:status;default:queued;index"`
	RunAt       time.Time       `gorm:"column:run_at;not null;index"`
	Attempts    int             `gorm:"column:attempts;default:0"`
	MaxAttempts int             `gorm:"column:max_attempts;default:5"`
	LockedBy    string          `gorm:"column:locked_by"`
	LockedAt    *time.Time      `gorm:"column:locked_at"`
	LastError   string          `gorm:"column:last_error"`
	CreatedAt   time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Job) TableName() string {
	return "jobs"
}

// CacheEntry and RateLimitCounter are the housekeeping targets swept by the
// maintenance.cache_cleanup job.
type CacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey"`
	Value     string    `gorm:"column:value;type:text"`
	ExpiresAt time.Time `gorm:"column:expires_at;index"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}

type RateLimitCounter struct {
	ID          int64     `gorm:"primaryKey"`
	Scope       string    `gorm:"column:scope;not null;index"`
	Subject     string    `gorm:"column:subject;not null"`
	Count       int       `gorm:"column:count;default:0"`
	WindowStart time.Time `gorm:"column:window_start;index"`
}

func (RateLimitCounter) TableName() string {
	return "rate_limit_counters"
}
