package syncreq_test

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/naitive/backend/internal/domain/lender"
	"github.com/naitive/backend/internal/domain/syncreq"
	"github.com/naitive/backend/internal/notify"
)

// memStore backs both the ingestion repository and the resolution store.
type memStore struct {
	lenders  map[string]lender.Record
	requests map[string]syncreq.Request
	seq      int

	listErr     error
	createErr   error
	applySyncFn func(in lender.SyncUpdate) error
	createLendr func(in lender.CreateInput) error
}

func newMemStore(records ...lender.Record) *memStore {
	s := &memStore{lenders: map[string]lender.Record{}, requests: map[string]syncreq.Request{}}
	for _, r := range records {
		s.lenders[r.ID] = r
	}
	return s
}

func (s *memStore) tick() time.Time {
	s.seq++
	return time.Date(2026, 1, 1, 0, 0, s.seq, 0, time.UTC)
}

func (s *memStore) ListAll(_ context.Context) ([]lender.Record, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]lender.Record, 0, len(s.lenders))
	for _, r := range s.lenders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Create(_ context.Context, in syncreq.CreateInput) (*syncreq.Request, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	now := s.tick()
	req := syncreq.Request{
		ID:                 uuid.NewString(),
		SourceSystem:       in.SourceSystem,
		SourceLenderID:     in.SourceLenderID,
		Type:               in.Type,
		IncomingData:       in.IncomingData,
		ExistingLenderID:   in.ExistingLenderID,
		ExistingLenderName: in.ExistingLenderName,
		ChangesDiff:        in.ChangesDiff,
		Status:             syncreq.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.requests[req.ID] = req
	return &req, nil
}

func (s *memStore) FindPendingByLender(_ context.Context, lenderID string) (*syncreq.Request, error) {
	for _, r := range s.requests {
		if r.Status == syncreq.StatusPending && r.ExistingLenderID != nil && *r.ExistingLenderID == lenderID {
			cp := r
			return &cp, nil
		}
	}
	return nil, syncreq.ErrRequestNotFound
}

func (s *memStore) ReplacePending(_ context.Context, in syncreq.ReplaceInput) (*syncreq.Request, error) {
	r, ok := s.requests[in.ID]
	if !ok || r.Status != syncreq.StatusPending {
		return nil, syncreq.ErrNotPending
	}
	r.Type = in.Type
	r.SourceLenderID = in.SourceLenderID
	r.IncomingData = in.IncomingData
	r.ChangesDiff = in.ChangesDiff
	r.UpdatedAt = s.tick()
	s.requests[in.ID] = r
	return &r, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*syncreq.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, syncreq.ErrRequestNotFound
	}
	return &r, nil
}

func (s *memStore) List(_ context.Context, f syncreq.ListFilter) ([]syncreq.Request, error) {
	out := []syncreq.Request{}
	for _, r := range s.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) CountPending(_ context.Context) (map[syncreq.RequestType]int, error) {
	out := map[syncreq.RequestType]int{}
	for _, r := range s.requests {
		if r.Status == syncreq.StatusPending {
			out[r.Type]++
		}
	}
	return out, nil
}

func (s *memStore) pending() []syncreq.Request {
	out, _ := s.List(context.Background(), syncreq.ListFilter{Status: syncreq.StatusPending})
	return out
}

// InTx restores the previous state when fn fails.
func (s *memStore) InTx(_ context.Context, fn func(tx syncreq.Tx) error) error {
	lenders := make(map[string]lender.Record, len(s.lenders))
	for k, v := range s.lenders {
		lenders[k] = v
	}
	requests := make(map[string]syncreq.Request, len(s.requests))
	for k, v := range s.requests {
		requests[k] = v
	}
	if err := fn(memTx{s}); err != nil {
		s.lenders = lenders
		s.requests = requests
		return err
	}
	return nil
}

type memTx struct{ s *memStore }

func (t memTx) GetRequestForUpdate(ctx context.Context, id string) (*syncreq.Request, error) {
	return t.s.GetByID(ctx, id)
}

func (t memTx) GetLender(_ context.Context, id string) (*lender.Record, error) {
	r, ok := t.s.lenders[id]
	if !ok {
		return nil, lender.ErrNotFound
	}
	return &r, nil
}

func (t memTx) CreateLender(_ context.Context, in lender.CreateInput) (*lender.Record, error) {
	if t.s.createLendr != nil {
		if err := t.s.createLendr(in); err != nil {
			return nil, err
		}
	}
	now := t.s.tick()
	r := lender.Record{
		ID:                 uuid.NewString(),
		Name:               in.Name,
		Fields:             in.Fields,
		SyncSource:         in.SyncSource,
		FlexLenderID:       in.FlexLenderID,
		LastSyncedFromFlex: in.LastSyncedFromFlex,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	t.s.lenders[r.ID] = r
	return &r, nil
}

func (t memTx) ApplyLenderSync(_ context.Context, in lender.SyncUpdate) error {
	if t.s.applySyncFn != nil {
		if err := t.s.applySyncFn(in); err != nil {
			return err
		}
	}
	r, ok := t.s.lenders[in.LenderID]
	if !ok {
		return lender.ErrNotFound
	}
	r.Fields = in.Fields
	if in.FlexLenderID != nil {
		r.FlexLenderID = in.FlexLenderID
	}
	synced := in.SyncedAt
	r.LastSyncedFromFlex = &synced
	r.UpdatedAt = t.s.tick()
	t.s.lenders[r.ID] = r
	return nil
}

func (t memTx) MarkResolved(_ context.Context, in syncreq.ResolveInput) error {
	r, ok := t.s.requests[in.ID]
	if !ok {
		return syncreq.ErrRequestNotFound
	}
	if r.Status != syncreq.StatusPending {
		return syncreq.ErrNotPending
	}
	r.Status = in.Status
	by := in.ProcessedBy
	at := in.ProcessedAt
	r.ProcessedBy = &by
	r.ProcessedAt = &at
	if in.Notes != "" {
		notes := in.Notes
		r.ProcessingNotes = &notes
	}
	t.s.requests[in.ID] = r
	return nil
}

type fakeAdmins struct {
	ids []string
	err error
}

func (a fakeAdmins) ListAdminIDs(_ context.Context) ([]string, error) {
	return a.ids, a.err
}

type recordingNotifier struct {
	calls      int
	recipients []string
	last       notify.Notification
	err        error
}

func (n *recordingNotifier) Broadcast(_ context.Context, recipients []string, msg notify.Notification) error {
	n.calls++
	n.recipients = append(n.recipients, recipients...)
	n.last = msg
	return n.err
}

type recordingFeed struct {
	messages [][]byte
}

func (f *recordingFeed) Publish(_ string, payload []byte) {
	f.messages = append(f.messages, payload)
}

type recordingActivity struct {
	entries []syncreq.ActivityInput
}

func (a *recordingActivity) Log(_ context.Context, in syncreq.ActivityInput) error {
	a.entries = append(a.entries, in)
	return nil
}

var errBoom = errors.New("boom")
