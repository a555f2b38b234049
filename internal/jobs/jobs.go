package jobs

import (
	"context"
	"time"

	jobmodel "github.com/stayswap/stayswap/internal/core/datamodel/job"
)

// Queue is the relational work queue access. Claim hands each eligible row
// to exactly one worker; completion calls are guarded by locked_by so a
// worker whose lock timed out cannot overwrite someone else's result.
type Queue interface {
	Enqueue(j *jobmodel.Job) error
	Claim(batch int, workerID string, now time.Time, lockTimeout time.Duration) ([]*jobmodel.Job, error)
	MarkSucceeded(id int64, workerID string) (bool, error)
	// MarkFailed records a failure: retry with backoff while attempts
	// remain, terminal failed once they are exhausted.
	MarkFailed(id int64, workerID string, errMsg string, now time.Time) (bool, error)

	// Housekeeping deletes, bounded by maxRows per call.
	DeleteExpiredCache(now time.Time, maxRows int) (int64, error)
	DeleteStaleRateCounters(cutoff time.Time, maxRows int) (int64, error)
}

// Handler executes one job. A nil return marks the job succeeded; an error
// sends it through the retry path.
type Handler func(ctx context.Context, j *jobmodel.Job) error

// Backoff returns the retry delay after n prior attempts, capped at ten
// minutes.
func Backoff(attempts int) time.Duration {
	secs := int64(5)
	for i := 0; i < attempts; i++ {
		secs *= 2
		if secs >= 600 {
			return 600 * time.Second
		}
	}
	if secs > 600 {
		secs = 600
	}
	return time.Duration(secs) * time.Second
}
