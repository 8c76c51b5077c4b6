package syncreq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/naitive/backend/internal/domain/lender"
	"github.com/naitive/backend/internal/notify"
)

// FeedChannel is the realtime channel reviewers subscribe to.
const FeedChannel = "lender_sync"

type LenderReader interface {
	ListAll(ctx context.Context) ([]lender.Record, error)
}

type AdminDirectory interface {
	ListAdminIDs(ctx context.Context) ([]string, error)
}

type Notifier interface {
	Broadcast(ctx context.Context, recipients []string, n notify.Notification) error
}

type ChangeFeed interface {
	Publish(channel string, payload []byte)
}

type AutoApprover interface {
	AutoApprove(ctx context.Context, requestID string) error
}

type Result struct {
	NewLenders     int      `json:"new_lenders"`
	Updates        int      `json:"updates"`
	MergeConflicts int      `json:"merge_conflicts"`
	NoChanges      int      `json:"no_changes"`
	AutoApproved   int      `json:"auto_approved"`
	Errors         []string `json:"errors"`
}

// Pending is the number of requests left open for review by the batch.
func (r *Result) Pending() int {
	return r.NewLenders + r.Updates + r.MergeConflicts
}

// DominantType picks the type named in the admin summary:
// new_lender, then merge_conflict, then update_existing.
func (r *Result) DominantType() RequestType {
	switch {
	case r.NewLenders > 0:
		return TypeNewLender
	case r.MergeConflicts > 0:
		return TypeMergeConflict
	default:
		return TypeUpdateExisting
	}
}

type IngestionDeps struct {
	Lenders  LenderReader
	Requests Repository
	Admins   AdminDirectory
	Notifier Notifier
	Feed     ChangeFeed
	// AutoApprover, when set, applies update_existing requests immediately.
	AutoApprover AutoApprover
	Logger       *slog.Logger
}

type IngestionService struct {
	lenders      LenderReader
	requests     Repository
	admins       AdminDirectory
	notifier     Notifier
	feed         ChangeFeed
	autoApprover AutoApprover
	logger       *slog.Logger
}

func NewIngestionService(deps IngestionDeps) *IngestionService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionService{
		lenders:      deps.Lenders,
		requests:     deps.Requests,
		admins:       deps.Admins,
		notifier:     deps.Notifier,
		feed:         deps.Feed,
		autoApprover: deps.AutoApprover,
		logger:       logger,
	}
}

type outcome int

const (
	outcomeNoChange outcome = iota
	outcomeNew
	outcomeUpdate
	outcomeConflict
	outcomeAutoApproved
)

// Ingest classifies every payload of the batch and records a sync request
// for each one that needs review. Per-payload failures are collected in
// Result.Errors; only an empty batch or a failure to load existing lenders
// is returned as an error.
func (s *IngestionService) Ingest(ctx context.Context, batch Batch) (*Result, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	existing, err := s.lenders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load lenders: %w", err)
	}
	idx := lender.NewIndex(existing)

	res := &Result{Errors: []string{}}
	touched := make([]string, 0, len(batch))
	var notifyName string
	for i, item := range batch {
		if item.Err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("payload %d: %v", i, item.Err))
			continue
		}
		if err := item.Payload.Validate(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("payload %d: %v", i, err))
			continue
		}

		out, requestID, err := s.ingestOne(ctx, idx, item.Payload)
		if err != nil {
			s.logger.Error("sync request write failed", "payload", i, "lender_name", item.Payload.Name, "err", err)
			res.Errors = append(res.Errors, fmt.Sprintf("payload %d (%s): %v", i, item.Payload.Name, err))
			continue
		}
		switch out {
		case outcomeNew:
			res.NewLenders++
		case outcomeUpdate:
			res.Updates++
		case outcomeConflict:
			res.MergeConflicts++
		case outcomeAutoApproved:
			res.AutoApproved++
		case outcomeNoChange:
			res.NoChanges++
		}
		if requestID != "" {
			touched = append(touched, requestID)
		}
		if notifyName == "" && out.pending() {
			notifyName = item.Payload.Name
		}
	}

	if res.Pending() > 0 {
		s.notifyAdmins(ctx, notifyName, res)
	}
	if len(touched) > 0 {
		publishChange(s.feed, "ingested", touched...)
	}

	s.logger.Info("lender sync batch ingested",
		"payloads", len(batch),
		"new_lenders", res.NewLenders,
		"updates", res.Updates,
		"merge_conflicts", res.MergeConflicts,
		"no_changes", res.NoChanges,
		"auto_approved", res.AutoApproved,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (s *IngestionService) ingestOne(ctx context.Context, idx *lender.Index, p lender.Payload) (outcome, string, error) {
	match := idx.Match(p)
	if match == nil {
		req, err := s.requests.Create(ctx, CreateInput{
			SourceSystem:   SourceFlex,
			SourceLenderID: p.ExternalID.Ptr(),
			Type:           TypeNewLender,
			IncomingData:   p,
		})
		if err != nil {
			return outcomeNew, "", err
		}
		return outcomeNew, req.ID, nil
	}

	changes := lender.Diff(match.Fields, p.Fields)
	if changes == nil {
		return outcomeNoChange, "", nil
	}

	typ := classify(match)
	req, err := s.upsertPending(ctx, match, p, typ, changes)
	if err != nil {
		return outcomeFor(typ), "", err
	}

	if typ == TypeUpdateExisting && s.autoApprover != nil {
		if err := s.autoApprover.AutoApprove(ctx, req.ID); err != nil {
			s.logger.Warn("auto approve failed, left pending", "request_id", req.ID, "lender_id", match.ID, "err", err)
			return outcomeUpdate, req.ID, nil
		}
		return outcomeAutoApproved, req.ID, nil
	}
	return outcomeFor(typ), req.ID, nil
}

// classify decides between update_existing and merge_conflict from the
// matched record's provenance.
func classify(match *lender.Record) RequestType {
	if match.SyncSource.LocallyOwned() {
		return TypeMergeConflict
	}
	return TypeUpdateExisting
}

func (o outcome) pending() bool {
	return o == outcomeNew || o == outcomeUpdate || o == outcomeConflict
}

func outcomeFor(t RequestType) outcome {
	if t == TypeMergeConflict {
		return outcomeConflict
	}
	return outcomeUpdate
}

// upsertPending collapses repeated changes for one lender into its single
// open request. The lookup and the write are not isolated from a concurrent
// batch for the same lender, so two overlapping webhooks can still leave two
// pending requests; review catches that case. Matching uses the index loaded
// at batch start, so a payload following an in-batch auto-approve of the same
// lender is diffed against the pre-approve fields.
func (s *IngestionService) upsertPending(ctx context.Context, match *lender.Record, p lender.Payload, typ RequestType, changes lender.Changes) (*Request, error) {
	open, err := s.requests.FindPendingByLender(ctx, match.ID)
	switch {
	case err == nil:
		return s.requests.ReplacePending(ctx, ReplaceInput{
			ID:             open.ID,
			Type:           typ,
			SourceLenderID: p.ExternalID.Ptr(),
			IncomingData:   p,
			ChangesDiff:    changes,
		})
	case errors.Is(err, ErrRequestNotFound):
		name := match.Name
		lenderID := match.ID
		return s.requests.Create(ctx, CreateInput{
			SourceSystem:       SourceFlex,
			SourceLenderID:     p.ExternalID.Ptr(),
			Type:               typ,
			IncomingData:       p,
			ExistingLenderID:   &lenderID,
			ExistingLenderName: &name,
			ChangesDiff:        changes,
		})
	default:
		return nil, err
	}
}

func (s *IngestionService) notifyAdmins(ctx context.Context, lenderName string, res *Result) {
	if s.admins == nil || s.notifier == nil {
		return
	}
	admins, err := s.admins.ListAdminIDs(ctx)
	if err != nil {
		s.logger.Error("list admins for notification failed", "err", err)
		return
	}
	if len(admins) == 0 {
		return
	}
	err = s.notifier.Broadcast(ctx, admins, notify.Notification{
		Type:         notify.TypeLenderSyncRequest,
		LenderName:   lenderName,
		RequestType:  string(res.DominantType()),
		PendingCount: res.Pending(),
	})
	if err != nil {
		s.logger.Warn("admin notification partially failed", "err", err)
	}
}

func publishChange(feed ChangeFeed, reason string, requestIDs ...string) {
	if feed == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event": "sync_requests_changed",
		"data": map[string]any{
			"reason":      reason,
			"request_ids": requestIDs,
		},
	})
	if err != nil {
		return
	}
	feed.Publish(FeedChannel, payload)
}
