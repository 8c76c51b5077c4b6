package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/naitive/backend/internal/dedupe"
	"github.com/naitive/backend/internal/domain/syncreq"
)

type Ingester interface {
	Ingest(ctx context.Context, batch syncreq.Batch) (*syncreq.Result, error)
}

// FlexWebhookHandler receives lender events pushed by Flex. The shared
// secret is checked by middleware before this handler runs.
type FlexWebhookHandler struct {
	ingester Ingester
	guard    dedupe.Guard
	logger   *slog.Logger
}

func NewFlexWebhookHandler(ingester Ingester, guard dedupe.Guard, logger *slog.Logger) *FlexWebhookHandler {
	if guard == nil {
		guard = dedupe.NopGuard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlexWebhookHandler{ingester: ingester, guard: guard, logger: logger}
}

func (h *FlexWebhookHandler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "payload_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request"})
		return
	}

	env, err := syncreq.DecodeEnvelope(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": syncreq.ErrInvalidEnvelope.Error()})
		return
	}
	batch, err := env.Batch()
	if err != nil {
		code := syncreq.ErrInvalidEnvelope.Error()
		if errors.Is(err, syncreq.ErrUnknownEvent) {
			code = syncreq.ErrUnknownEvent.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": code})
		return
	}
	if len(batch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": syncreq.ErrEmptyBatch.Error()})
		return
	}

	ctx := c.Request.Context()
	key := dedupe.Key(env.EventID)
	if key != "" {
		claimed, err := h.guard.Claim(ctx, key)
		if err != nil {
			h.logger.Warn("webhook dedupe unavailable", "event", env.Event, "err", err)
			claimed = true
		}
		if !claimed {
			h.logger.Info("duplicate webhook delivery ignored", "event", env.Event, "event_id", env.EventID)
			c.JSON(http.StatusOK, gin.H{"success": true, "duplicate": true, "message": "duplicate delivery ignored"})
			return
		}
	} else {
		h.logger.Debug("webhook delivery without event id", "event", env.Event, "fingerprint", dedupe.Fingerprint(body))
	}

	result, err := h.ingester.Ingest(ctx, batch)
	if err != nil || len(result.Errors) > 0 {
		// A partly failed delivery stays retryable by the sender.
		h.release(ctx, key)
	}
	if err != nil {
		if errors.Is(err, syncreq.ErrEmptyBatch) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.logger.Error("lender sync ingestion failed", "event", env.Event, "payloads", len(batch), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "ingestion_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": summarize(len(batch), result),
		"result":  result,
	})
}

func (h *FlexWebhookHandler) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := h.guard.Release(ctx, key); err != nil {
		h.logger.Warn("webhook dedupe release failed", "key", key, "err", err)
	}
}

func summarize(received int, r *syncreq.Result) string {
	msg := fmt.Sprintf("Processed %d lender(s): %d new, %d updates, %d merge conflicts, %d unchanged",
		received, r.NewLenders, r.Updates, r.MergeConflicts, r.NoChanges)
	if r.AutoApproved > 0 {
		msg += fmt.Sprintf(", %d auto-approved", r.AutoApproved)
	}
	if len(r.Errors) > 0 {
		msg += fmt.Sprintf(", %d failed", len(r.Errors))
	}
	return msg
}
