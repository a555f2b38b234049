package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	internal "github.com/stayswap/stayswap/internal"
	jobmodel "github.com/stayswap/stayswap/internal/core/datamodel/job"
)

// AutoCompleter is the booking sweep the worker runs on its own ticker,
// outside the job table.
type AutoCompleter interface {
	AutoCompleteDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// Worker polls the queue and executes claimed jobs sequentially. One
// process runs one worker; scaling out means more processes, each with its
// own worker id, and the claim guard keeps them off each other's rows.
type Worker struct {
	queue     Queue
	handlers  map[string]Handler
	completer AutoCompleter
	enqueuer  *Service
	cfg       internal.WorkerConfig
	logger    *slog.Logger
}

func NewWorker(queue Queue, enqueuer *Service, completer AutoCompleter, cfg internal.WorkerConfig, logger *slog.Logger) *Worker {
	return &Worker{
		queue:     queue,
		handlers:  make(map[string]Handler),
		completer: completer,
		enqueuer:  enqueuer,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegisterHandler binds a handler to a task name.
func (w *Worker) RegisterHandler(task string, handler Handler) {
	if task == "" || handler == nil {
		return
	}
	w.handlers[task] = handler
}

// Run drives the three loops until the context is cancelled: job polling,
// housekeeping enqueue, and the booking auto-complete sweep.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting",
		"worker_id", w.cfg.WorkerID,
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"lock_timeout", w.cfg.LockTimeout)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	housekeeping := time.NewTicker(w.cfg.HousekeepingInterval)
	defer housekeeping.Stop()
	sweep := time.NewTicker(w.cfg.AutoCompleteInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "worker_id", w.cfg.WorkerID)
			return ctx.Err()
		case <-poll.C:
			w.pollOnce(ctx)
		case <-housekeeping.C:
			if err := w.enqueuer.EnqueueCacheCleanup(0); err != nil {
				w.logger.Error("failed to enqueue housekeeping job", "error", err)
			}
		case <-sweep.C:
			now := time.Now().UTC()
			n, err := w.completer.AutoCompleteDue(ctx, now, w.cfg.BatchSize)
			if err != nil {
				w.logger.Error("auto-complete sweep failed", "error", err)
			} else if n > 0 {
				w.logger.Info("auto-complete sweep finished", "completed", n)
			}
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	now := time.Now().UTC()
	claimed, err := w.queue.Claim(w.cfg.BatchSize, w.cfg.WorkerID, now, w.cfg.LockTimeout)
	if err != nil {
		w.logger.Error("failed to claim jobs", "error", err, "worker_id", w.cfg.WorkerID)
		return
	}
	for _, j := range claimed {
		w.execute(ctx, j)
	}
}

func (w *Worker) execute(ctx context.Context, j *jobmodel.Job) {
	w.logger.Info("executing job", "job_id", j.ID, "task", j.Task, "attempt", j.Attempts+1)

	handler, ok := w.handlers[j.Task]
	if !ok {
		// Unknown task names never succeed on retry either.
		w.fail(j, fmt.Sprintf("no handler registered for task %q", j.Task))
		return
	}

	if err := handler(ctx, j); err != nil {
		w.fail(j, err.Error())
		return
	}

	ok, err := w.queue.MarkSucceeded(j.ID, w.cfg.WorkerID)
	if err != nil {
		w.logger.Error("failed to mark job succeeded", "error", err, "job_id", j.ID)
		return
	}
	if !ok {
		w.logger.Warn("job lock was lost before completion, result discarded",
			"job_id", j.ID, "worker_id", w.cfg.WorkerID)
		return
	}
	w.logger.Info("job succeeded", "job_id", j.ID, "task", j.Task)
}

func (w *Worker) fail(j *jobmodel.Job, errMsg string) {
	w.logger.Error("job failed", "job_id", j.ID, "task", j.Task, "attempt", j.Attempts+1, "error", errMsg)
	ok, err := w.queue.MarkFailed(j.ID, w.cfg.WorkerID, errMsg, time.Now().UTC())
	if err != nil {
		w.logger.Error("failed to record job failure", "error", err, "job_id", j.ID)
		return
	}
	if !ok {
		w.logger.Warn("job lock was lost before failure could be recorded",
			"job_id", j.ID, "worker_id", w.cfg.WorkerID)
	}
}
