package postgres

import (
	"time"

	"gorm.io/gorm"

	jobmodel "github.com/stayswap/stayswap/internal/core/datamodel/job"
	"github.com/stayswap/stayswap/internal/jobs"
)

// QueueRepository implements jobs.Queue using GORM.
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) jobs.Queue {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Enqueue(j *jobmodel.Job) error {
	return r.db.Create(j).Error
}

// Claim selects eligible rows and takes each one with a conditional UPDATE
// that re-checks eligibility. Two workers can select the same candidate,
// but only one update matches; the loser just moves on. Eligible rows are
// queued/retry jobs that are due, plus processing jobs whose lock expired.
func (r *QueueRepository) Claim(batch int, workerID string, now time.Time, lockTimeout time.Duration) ([]*jobmodel.Job, error) {
	lockExpiry := now.Add(-lockTimeout)

	var candidates []*jobmodel.Job
	err := r.db.
		Where("(status IN ? AND run_at <= ?) OR (status = ? AND locked_at < ?)",
			[]string{jobmodel.StatusQueued, jobmodel.StatusRetry}, now,
			jobmodel.StatusProcessing, lockExpiry).
		Order("run_at ASC").
		Limit(batch).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]*jobmodel.Job, 0, len(candidates))
	for _, candidate := range candidates {
		res := r.db.Model(&jobmodel.Job{}).
			Where("id = ? AND ((status IN ? AND run_at <= ?) OR (status = ? AND locked_at < ?))",
				candidate.ID,
				[]string{jobmodel.StatusQueued, jobmodel.StatusRetry}, now,
				jobmodel.StatusProcessing, lockExpiry).
			Updates(map[string]interface{}{
				"status":     jobmodel.StatusProcessing,
				"locked_by":  workerID,
				"locked_at":  now,
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		candidate.Status = jobmodel.StatusProcessing
		candidate.LockedBy = workerID
		lockedAt := now
		candidate.LockedAt = &lockedAt
		claimed = append(claimed, candidate)
	}
	return claimed, nil
}

// MarkSucceeded completes a job, but only for the worker that still holds
// the lock. Returns false when the lock moved on.
func (r *QueueRepository) MarkSucceeded(id int64, workerID string) (bool, error) {
	res := r.db.Model(&jobmodel.Job{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, jobmodel.StatusProcessing, workerID).
		Updates(map[string]interface{}{
			"status":     jobmodel.StatusSucceeded,
			"last_error": "",
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed increments attempts and either schedules a retry with capped
// exponential backoff or, once attempts are exhausted, parks the job as
// failed with the error recorded.
func (r *QueueRepository) MarkFailed(id int64, workerID string, errMsg string, now time.Time) (bool, error) {
	var j jobmodel.Job
	err := r.db.Where("id = ? AND status = ? AND locked_by = ?", id, jobmodel.StatusProcessing, workerID).
		First(&j).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}

	attempts := j.Attempts + 1
	updates := map[string]interface{}{
		"attempts":   attempts,
		"last_error": errMsg,
		"updated_at": now,
	}
	if attempts >= j.MaxAttempts {
		updates["status"] = jobmodel.StatusFailed
	} else {
		updates["status"] = jobmodel.StatusRetry
		updates["run_at"] = now.Add(jobs.Backoff(attempts))
	}

	res := r.db.Model(&jobmodel.Job{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, jobmodel.StatusProcessing, workerID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteExpiredCache removes up to maxRows cache entries past their expiry.
func (r *QueueRepository) DeleteExpiredCache(now time.Time, maxRows int) (int64, error) {
	res := r.db.Exec(
		"DELETE FROM cache_entries WHERE cache_key IN (SELECT cache_key FROM cache_entries WHERE expires_at < ? LIMIT ?)",
		now, maxRows)
	return res.RowsAffected, res.Error
}

// DeleteStaleRateCounters removes counters whose window started before the
// cutoff.
func (r *QueueRepository) DeleteStaleRateCounters(cutoff time.Time, maxRows int) (int64, error) {
	res := r.db.Exec(
		"DELETE FROM rate_limit_counters WHERE id IN (SELECT id FROM rate_limit_counters WHERE window_start < ? LIMIT ?)",
		cutoff, maxRows)
	return res.RowsAffected, res.Error
}
