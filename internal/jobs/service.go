package jobs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	jobmodel "github.com/stayswap/stayswap/internal/core/datamodel/job"
)

// EmailPayload is the email.notification job body.
type EmailPayload struct {
	To          string `json:"to"`
	Type        string `json:"type"`
	Subject     string `json:"subject"`
	HTML        string `json:"html"`
	PreviewText string `json:"preview_text"`
}

// CleanupPayload bounds one maintenance.cache_cleanup pass.
type CleanupPayload struct {
	MaxRows int `json:"max_rows"`
}

// Service is the enqueue side of the job queue.
type Service struct {
	queue       Queue
	maxAttempts int
	logger      *slog.Logger
}

func NewService(queue Queue, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Service{queue: queue, maxAttempts: maxAttempts, logger: logger}
}

// Enqueue queues a task for immediate execution.
func (s *Service) Enqueue(task string, payload interface{}) error {
	return s.EnqueueAt(task, payload, time.Now().UTC())
}

// EnqueueAt queues a task to run no earlier than runAt.
func (s *Service) EnqueueAt(task string, payload interface{}, runAt time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	j := &jobmodel.Job{
		Task:        task,
		Payload:     raw,
		Status:      jobmodel.StatusQueued,
		RunAt:       runAt,
		MaxAttempts: s.maxAttempts,
	}
	if err := s.queue.Enqueue(j); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info("job enqueued", "job_id", j.ID, "task", task, "run_at", runAt)
	return nil
}

// EnqueueEmail queues an outbound email. This is what the settlement and
// completion flows call; delivery happens in the worker.
func (s *Service) EnqueueEmail(to, emailType, subject, html, previewText string) error {
	return s.Enqueue(jobmodel.TaskEmailNotification, EmailPayload{
		To:          to,
		Type:        emailType,
		Subject:     subject,
		HTML:        html,
		PreviewText: previewText,
	})
}

// EnqueueCacheCleanup queues one bounded housekeeping pass.
func (s *Service) EnqueueCacheCleanup(maxRows int) error {
	if maxRows <= 0 {
		maxRows = 500
	}
	return s.Enqueue(jobmodel.TaskCacheCleanup, CleanupPayload{MaxRows: maxRows})
}
