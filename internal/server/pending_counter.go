package server

import (
	"context"

	"github.com/naitive/backend/internal/domain/syncreq"
	"github.com/naitive/backend/internal/ws"
)

type pendingCountSource interface {
	PendingCounts(ctx context.Context) (map[syncreq.RequestType]int, error)
}

type pendingCounter struct {
	source pendingCountSource
}

// NewPendingCounter exposes sync request counts to the websocket notifier.
func NewPendingCounter(source pendingCountSource) ws.PendingCounter {
	return pendingCounter{source: source}
}

func (p pendingCounter) PendingCountsByType(ctx context.Context) (map[string]int, error) {
	counts, err := p.source.PendingCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for t, n := range counts {
		out[string(t)] = n
	}
	return out, nil
}
