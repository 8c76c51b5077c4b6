package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Topic is the outbox topic for admin notifications.
const Topic = "lender_sync_notification"

const TypeLenderSyncRequest = "lender_sync_request"

type Notification struct {
	Type            string `json:"type"`
	RecipientUserID string `json:"recipient_user_id"`
	LenderName      string `json:"lender_name"`
	RequestType     string `json:"request_type"`
	PendingCount    int    `json:"pending_count"`
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, topic string, payload []byte) error
}

// OutboxDispatcher queues one delivery per recipient. Delivery, retry and
// terminal failure are handled by the outbox worker.
type OutboxDispatcher struct {
	outbox OutboxRepository
	logger *slog.Logger
}

func NewOutboxDispatcher(outbox OutboxRepository, logger *slog.Logger) *OutboxDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxDispatcher{outbox: outbox, logger: logger}
}

// Broadcast enqueues n for every recipient. A failed enqueue is logged and
// the loop moves on; the joined errors are returned for the caller to log.
func (d *OutboxDispatcher) Broadcast(ctx context.Context, recipients []string, n Notification) error {
	var errs []error
	for _, userID := range recipients {
		msg := n
		msg.RecipientUserID = userID
		payload, err := json.Marshal(msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.outbox.Enqueue(ctx, Topic, payload); err != nil {
			d.logger.Warn("notification enqueue failed", "recipient", userID, "err", err)
			errs = append(errs, fmt.Errorf("recipient %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}
