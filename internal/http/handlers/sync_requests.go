package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/naitive/backend/internal/domain/lender"
	"github.com/naitive/backend/internal/domain/syncreq"
	"github.com/naitive/backend/internal/http/middleware"
)

type SyncReviewService interface {
	Get(ctx context.Context, id string) (*syncreq.Request, error)
	List(ctx context.Context, f syncreq.ListFilter) ([]syncreq.Request, error)
	PendingCounts(ctx context.Context) (map[syncreq.RequestType]int, error)
	Approve(ctx context.Context, id, actor, notes string) error
	Reject(ctx context.Context, id, actor, notes string) error
	Merge(ctx context.Context, id, actor string, merged map[string]json.RawMessage, notes string) error
}

// SyncRequestHandler is the review surface for admins. Resolution actions
// answer with {"success": bool} and an error code on failure.
type SyncRequestHandler struct {
	service SyncReviewService
	logger  *slog.Logger
}

func NewSyncRequestHandler(service SyncReviewService, logger *slog.Logger) *SyncRequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncRequestHandler{service: service, logger: logger}
}

func (h *SyncRequestHandler) ListRequests(c *gin.Context) {
	status := syncreq.Status(strings.TrimSpace(c.DefaultQuery("status", string(syncreq.StatusPending))))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	reqType := syncreq.RequestType(strings.TrimSpace(c.Query("type")))
	if reqType != "" && !reqType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_type"})
		return
	}
	limit, _ := strconv.ParseInt(strings.TrimSpace(c.DefaultQuery("limit", "50")), 10, 32)
	offset, _ := strconv.ParseInt(strings.TrimSpace(c.DefaultQuery("offset", "0")), 10, 32)

	items, err := h.service.List(c.Request.Context(), syncreq.ListFilter{
		Status: status,
		Type:   reqType,
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		h.logger.Error("list sync requests failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_sync_requests_failed"})
		return
	}

	grouped := map[syncreq.RequestType][]syncreq.Request{
		syncreq.TypeNewLender:      {},
		syncreq.TypeUpdateExisting: {},
		syncreq.TypeMergeConflict:  {},
	}
	for _, item := range items {
		grouped[item.Type] = append(grouped[item.Type], item)
	}
	c.JSON(http.StatusOK, gin.H{"items": grouped, "total": len(items)})
}

func (h *SyncRequestHandler) GetRequest(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_id"})
		return
	}
	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, syncreq.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("get sync request failed", "request_id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_sync_request_failed"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *SyncRequestHandler) PendingCount(c *gin.Context) {
	counts, err := h.service.PendingCounts(c.Request.Context())
	if err != nil {
		h.logger.Error("count pending sync requests failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pending_count_failed"})
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_type": counts})
}

type resolutionRequest struct {
	Notes        string                     `json:"notes"`
	MergedFields map[string]json.RawMessage `json:"merged_fields"`
}

func (h *SyncRequestHandler) Approve(c *gin.Context) {
	h.resolve(c, func(ctx context.Context, id, actor string, req resolutionRequest) error {
		return h.service.Approve(ctx, id, actor, req.Notes)
	})
}

func (h *SyncRequestHandler) Reject(c *gin.Context) {
	h.resolve(c, func(ctx context.Context, id, actor string, req resolutionRequest) error {
		return h.service.Reject(ctx, id, actor, req.Notes)
	})
}

func (h *SyncRequestHandler) Merge(c *gin.Context) {
	h.resolve(c, func(ctx context.Context, id, actor string, req resolutionRequest) error {
		return h.service.Merge(ctx, id, actor, req.MergedFields, req.Notes)
	})
}

func (h *SyncRequestHandler) resolve(c *gin.Context, action func(ctx context.Context, id, actor string, req resolutionRequest) error) {
	id, ok := requestID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request_id"})
		return
	}
	var req resolutionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request"})
			return
		}
	}
	actor := c.GetString(middleware.ContextUserID)
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	if err := action(c.Request.Context(), id, actor, req); err != nil {
		status, code := resolutionError(err)
		c.JSON(status, gin.H{"success": false, "error": code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func resolutionError(err error) (int, string) {
	for _, e := range []struct {
		target error
		status int
	}{
		{syncreq.ErrRequestNotFound, http.StatusNotFound},
		{lender.ErrNotFound, http.StatusNotFound},
		{syncreq.ErrNotPending, http.StatusConflict},
		{lender.ErrDuplicateFlexID, http.StatusConflict},
		{syncreq.ErrWrongRequestType, http.StatusUnprocessableEntity},
		{syncreq.ErrUnknownRequestType, http.StatusUnprocessableEntity},
		{syncreq.ErrMissingLender, http.StatusUnprocessableEntity},
		{syncreq.ErrEmptyMerge, http.StatusBadRequest},
		{lender.ErrUnknownField, http.StatusBadRequest},
		{lender.ErrInvalidPayload, http.StatusBadRequest},
	} {
		if errors.Is(err, e.target) {
			return e.status, e.target.Error()
		}
	}
	return http.StatusInternalServerError, "resolution_failed"
}

func requestID(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
