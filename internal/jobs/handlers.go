package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	jobmodel "github.com/stayswap/stayswap/internal/core/datamodel/job"
)

// Mailer delivers one email. The SMTP implementation lives in
// internal/mailer.
type Mailer interface {
	Send(to, subject, html, previewText string) error
}

// EmailHandler returns the email.notification handler.
func EmailHandler(mailer Mailer, logger *slog.Logger) Handler {
	return func(ctx context.Context, j *jobmodel.Job) error {
		var p EmailPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("invalid email payload: %w", err)
		}
		if p.To == "" {
			return fmt.Errorf("email payload has no recipient")
		}

		if err := mailer.Send(p.To, p.Subject, p.HTML, p.PreviewText); err != nil {
			return fmt.Errorf("smtp delivery failed: %w", err)
		}

		logger.Info("email delivered", "job_id", j.ID, "type", p.Type, "to", p.To)
		return nil
	}
}

// CleanupHandler returns the maintenance.cache_cleanup handler. Each run
// deletes at most MaxRows expired cache entries and rate-limit counters
// older than a day, keeping individual passes short.
func CleanupHandler(queue Queue, logger *slog.Logger) Handler {
	return func(ctx context.Context, j *jobmodel.Job) error {
		var p CleanupPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("invalid cleanup payload: %w", err)
		}
		if p.MaxRows <= 0 {
			p.MaxRows = 500
		}

		now := time.Now().UTC()
		cacheDeleted, err := queue.DeleteExpiredCache(now, p.MaxRows)
		if err != nil {
			return fmt.Errorf("cache sweep failed: %w", err)
		}

		countersDeleted, err := queue.DeleteStaleRateCounters(now.Add(-24*time.Hour), p.MaxRows)
		if err != nil {
			return fmt.Errorf("rate counter sweep failed: %w", err)
		}

		logger.Info("housekeeping pass finished",
			"job_id", j.ID,
			"cache_entries_deleted", cacheDeleted,
			"rate_counters_deleted", countersDeleted)
		return nil
	}
}
