package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/naitive/backend/internal/notify"
)

type OutboxJob struct {
	ID          int64
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int32
	LastError   string
	AvailableAt time.Time
}

type OutboxRepository interface {
	ClaimPending(ctx context.Context, limit int32) ([]OutboxJob, error)
	MarkDone(ctx context.Context, jobID int64) error
	MarkRetry(ctx context.Context, jobID int64, nextAvailableAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID int64, lastError string) error
}

type Worker struct {
	outboxRepo   OutboxRepository
	mailer       notify.Mailer
	logger       *slog.Logger
	maxAttempts  int32
	now          func() time.Time
	retryBackoff func(attempt int32) time.Duration
}

func NewWorker(outboxRepo OutboxRepository, mailer notify.Mailer, maxAttempts int32, logger *slog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		outboxRepo:  outboxRepo,
		mailer:      mailer,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		retryBackoff: func(attempt int32) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Duration(attempt*15) * time.Second
		},
	}
}

func (w *Worker) RunOnce(ctx context.Context, batchSize int32) error {
	jobs, err := w.outboxRepo.ClaimPending(ctx, batchSize)
	if err != nil {
		return err
	}

	var errs []error
	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Warn("outbox job not settled", "job_id", job.ID, "topic", job.Topic, "err", err)
			errs = append(errs, fmt.Errorf("job %d: %w", job.ID, err))
		}
	}

	return errors.Join(errs...)
}

func (w *Worker) processJob(ctx context.Context, job OutboxJob) error {
	switch job.Topic {
	case notify.Topic:
		return w.processNotification(ctx, job)
	default:
		return w.handleJobError(ctx, job, errors.New("unsupported_topic"))
	}
}

func (w *Worker) processNotification(ctx context.Context, job OutboxJob) error {
	var n notify.Notification
	if err := json.Unmarshal(job.Payload, &n); err != nil {
		return w.outboxRepo.MarkFailed(ctx, job.ID, "invalid_payload")
	}
	if n.RecipientUserID == "" {
		return w.outboxRepo.MarkFailed(ctx, job.ID, "missing_recipient")
	}

	if err := w.mailer.Send(ctx, n); err != nil {
		return w.handleJobError(ctx, job, err)
	}

	w.logger.Info("notification delivered", "job_id", job.ID, "recipient", n.RecipientUserID, "request_type", n.RequestType)
	return w.outboxRepo.MarkDone(ctx, job.ID)
}

func (w *Worker) handleJobError(ctx context.Context, job OutboxJob, err error) error {
	msg := err.Error()
	if job.Attempts >= w.maxAttempts {
		w.logger.Warn("outbox job failed permanently", "job_id", job.ID, "topic", job.Topic, "attempts", job.Attempts, "err", msg)
		return w.outboxRepo.MarkFailed(ctx, job.ID, msg)
	}
	next := w.now().Add(w.retryBackoff(job.Attempts))
	return w.outboxRepo.MarkRetry(ctx, job.ID, next, msg)
}
