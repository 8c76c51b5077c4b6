package syncreq

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/naitive/backend/internal/domain/lender"
)

// AutoApproveActor is recorded as processed_by for auto-approved requests.
const AutoApproveActor = "system:auto"

// Tx is the set of writes a resolution performs atomically.
type Tx interface {
	GetRequestForUpdate(ctx context.Context, id string) (*Request, error)
	GetLender(ctx context.Context, id string) (*lender.Record, error)
	CreateLender(ctx context.Context, in lender.CreateInput) (*lender.Record, error)
	ApplyLenderSync(ctx context.Context, in lender.SyncUpdate) error
	// MarkResolved returns ErrNotPending when the request already left
	// pending.
	MarkResolved(ctx context.Context, in ResolveInput) error
}

// Store runs fn in a transaction. When fn returns an error nothing it wrote
// is kept.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type ActivityInput struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Payload    []byte
}

type ActivityLog interface {
	Log(ctx context.Context, in ActivityInput) error
}

type ResolutionService struct {
	store    Store
	requests Repository
	activity ActivityLog
	feed     ChangeFeed
	logger   *slog.Logger
	now      func() time.Time
}

func NewResolutionService(store Store, requests Repository, activity ActivityLog, feed ChangeFeed, logger *slog.Logger) *ResolutionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolutionService{
		store:    store,
		requests: requests,
		activity: activity,
		feed:     feed,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ResolutionService) Get(ctx context.Context, id string) (*Request, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *ResolutionService) List(ctx context.Context, f ListFilter) ([]Request, error) {
	return s.requests.List(ctx, f)
}

func (s *ResolutionService) PendingCounts(ctx context.Context) (map[RequestType]int, error) {
	return s.requests.CountPending(ctx)
}

// Approve creates the lender for a new_lender request or applies the full
// incoming payload for an update_existing request.
func (s *ResolutionService) Approve(ctx context.Context, id, actor, notes string) error {
	return s.resolve(ctx, id, actor, notes, StatusApproved, s.applyIncoming)
}

// AutoApprove is Approve for update_existing requests on behalf of the
// system.
func (s *ResolutionService) AutoApprove(ctx context.Context, id string) error {
	return s.resolve(ctx, id, AutoApproveActor, "auto-approved sync update", StatusAutoApproved,
		func(ctx context.Context, tx Tx, req *Request, now time.Time) (string, error) {
			if req.Type != TypeUpdateExisting {
				return "", ErrWrongRequestType
			}
			return s.applyIncoming(ctx, tx, req, now)
		})
}

// Reject closes any pending request without touching lender records.
func (s *ResolutionService) Reject(ctx context.Context, id, actor, notes string) error {
	return s.resolve(ctx, id, actor, notes, StatusRejected,
		func(_ context.Context, _ Tx, req *Request, _ time.Time) (string, error) {
			if req.ExistingLenderID != nil {
				return *req.ExistingLenderID, nil
			}
			return "", nil
		})
}

// Merge applies reviewer-chosen values to the lender behind a
// merge_conflict request. Only the fields named in merged are written.
func (s *ResolutionService) Merge(ctx context.Context, id, actor string, merged map[string]json.RawMessage, notes string) error {
	if len(merged) == 0 {
		return ErrEmptyMerge
	}
	if err := lender.ApplyPatch(&lender.Fields{}, merged); err != nil {
		return err
	}
	return s.resolve(ctx, id, actor, notes, StatusMerged,
		func(ctx context.Context, tx Tx, req *Request, now time.Time) (string, error) {
			switch req.Type {
			case TypeMergeConflict:
			case TypeNewLender, TypeUpdateExisting:
				return "", ErrWrongRequestType
			default:
				return "", ErrUnknownRequestType
			}
			if req.ExistingLenderID == nil {
				return "", ErrMissingLender
			}
			current, err := tx.GetLender(ctx, *req.ExistingLenderID)
			if err != nil {
				return "", err
			}
			fields := current.Fields
			if err := lender.ApplyPatch(&fields, merged); err != nil {
				return "", err
			}
			err = tx.ApplyLenderSync(ctx, lender.SyncUpdate{
				LenderID:     current.ID,
				Fields:       fields,
				FlexLenderID: req.SourceLenderID,
				SyncedAt:     now,
			})
			return current.ID, err
		})
}

func (s *ResolutionService) applyIncoming(ctx context.Context, tx Tx, req *Request, now time.Time) (string, error) {
	switch req.Type {
	case TypeNewLender:
		created, err := tx.CreateLender(ctx, lender.CreateInput{
			Name:               req.IncomingData.Name,
			Fields:             req.IncomingData.Fields,
			SyncSource:         lender.SourceFlex,
			FlexLenderID:       req.SourceLenderID,
			LastSyncedFromFlex: &now,
		})
		if err != nil {
			return "", err
		}
		return created.ID, nil
	case TypeUpdateExisting:
		if req.ExistingLenderID == nil {
			return "", ErrMissingLender
		}
		err := tx.ApplyLenderSync(ctx, lender.SyncUpdate{
			LenderID:     *req.ExistingLenderID,
			Fields:       req.IncomingData.Fields,
			FlexLenderID: req.SourceLenderID,
			SyncedAt:     now,
		})
		return *req.ExistingLenderID, err
	case TypeMergeConflict:
		return "", ErrWrongRequestType
	default:
		return "", ErrUnknownRequestType
	}
}

type applyFunc func(ctx context.Context, tx Tx, req *Request, now time.Time) (string, error)

// resolve locks the request, checks it is still pending, applies the
// lender change and closes the request in one transaction. Any failure
// leaves the request pending.
func (s *ResolutionService) resolve(ctx context.Context, id, actor, notes string, status Status, apply applyFunc) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrRequestNotFound
	}
	now := s.now()
	var (
		lenderID string
		reqType  RequestType
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrNotPending
		}
		reqType = req.Type
		lenderID, err = apply(ctx, tx, req, now)
		if err != nil {
			return err
		}
		return tx.MarkResolved(ctx, ResolveInput{
			ID:          id,
			Status:      status,
			ProcessedBy: actor,
			Notes:       strings.TrimSpace(notes),
			ProcessedAt: now,
		})
	})
	if err != nil {
		s.logger.Warn("sync request resolution failed", "request_id", id, "status", status, "err", err)
		return err
	}

	s.logger.Info("sync request resolved", "request_id", id, "request_type", reqType, "status", status, "lender_id", lenderID, "actor", actor)
	s.recordActivity(ctx, actor, status, id, lenderID, reqType, notes)
	publishChange(s.feed, string(status), id)
	return nil
}

func (s *ResolutionService) recordActivity(ctx context.Context, actor string, status Status, requestID, lenderID string, reqType RequestType, notes string) {
	if s.activity == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"request_id":   requestID,
		"request_type": reqType,
		"notes":        strings.TrimSpace(notes),
	})
	target, targetID := "lender_sync_request", requestID
	if lenderID != "" {
		target, targetID = "lender", lenderID
	}
	if err := s.activity.Log(ctx, ActivityInput{
		ActorID:    actor,
		Action:     "lender_sync_" + string(status),
		TargetType: target,
		TargetID:   targetID,
		Payload:    payload,
	}); err != nil {
		s.logger.Warn("activity log write failed", "request_id", requestID, "err", err)
	}
}
