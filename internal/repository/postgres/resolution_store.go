package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/naitive/backend/internal/domain/lender"
	"github.com/naitive/backend/internal/domain/syncreq"
)

// ResolutionStore runs a sync request resolution in a single transaction.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

func (s *ResolutionStore) InTx(ctx context.Context, fn func(tx syncreq.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&resolutionTx{
			lenders:  NewLenderRepository(tx),
			requests: NewSyncRequestRepository(tx),
		})
	})
}

type resolutionTx struct {
	lenders  *LenderRepository
	requests *SyncRequestRepository
}

func (t *resolutionTx) GetRequestForUpdate(ctx context.Context, id string) (*syncreq.Request, error) {
	return t.requests.getByID(ctx, id, " FOR UPDATE")
}

func (t *resolutionTx) GetLender(ctx context.Context, id string) (*lender.Record, error) {
	return t.lenders.getByID(ctx, id, " FOR UPDATE")
}

func (t *resolutionTx) CreateLender(ctx context.Context, in lender.CreateInput) (*lender.Record, error) {
	return t.lenders.Create(ctx, in)
}

func (t *resolutionTx) ApplyLenderSync(ctx context.Context, in lender.SyncUpdate) error {
	return t.lenders.ApplySync(ctx, in)
}

func (t *resolutionTx) MarkResolved(ctx context.Context, in syncreq.ResolveInput) error {
	return t.requests.MarkResolved(ctx, in)
}
