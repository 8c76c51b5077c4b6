package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"time"
)

// PendingCounter reports open sync requests per request type.
type PendingCounter interface {
	PendingCountsByType(ctx context.Context) (map[string]int, error)
}

// Notifier polls the pending counts and publishes them on the lender sync
// channel whenever they change, so reviewers connected to any API instance
// see resolutions made elsewhere.
type Notifier struct {
	counter      PendingCounter
	hub          *Hub
	pollInterval time.Duration
	logger       *slog.Logger
	last         map[string]int
}

func NewNotifier(counter PendingCounter, hub *Hub, pollInterval time.Duration, logger *slog.Logger) *Notifier {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{counter: counter, hub: hub, pollInterval: pollInterval, logger: logger}
}

func (n *Notifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.tick(ctx); err != nil {
				n.logger.Warn("pending count poll failed", "err", err)
			}
		}
	}
}

func (n *Notifier) tick(ctx context.Context) error {
	counts, err := n.counter.PendingCountsByType(ctx)
	if err != nil {
		return err
	}
	if n.last != nil && maps.Equal(n.last, counts) {
		return nil
	}
	n.last = counts

	total := 0
	for _, c := range counts {
		total += c
	}
	payload, _ := json.Marshal(map[string]any{
		"event": "pending_counts",
		"data": map[string]any{
			"total":   total,
			"by_type": counts,
		},
	})
	n.hub.Publish(LenderSyncChannel, payload)
	return nil
}
