package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naitive/backend/internal/domain/lender"
	"github.com/naitive/backend/internal/domain/syncreq"
	postgresrepo "github.com/naitive/backend/internal/repository/postgres"
	"github.com/naitive/backend/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestLenderRepositoryRoundTrip(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	repo := postgresrepo.NewLenderRepository(pool)

	minDeal := decimal.RequireFromString("1000000.00")
	active := true
	created, err := repo.Create(ctx, lender.CreateInput{
		Name: "Acme Capital",
		Fields: lender.Fields{
			Email:       strPtr("deals@acme.test"),
			MinDealSize: &minDeal,
			Industries:  []string{"saas", "healthcare"},
			IsActive:    &active,
		},
		SyncSource: lender.SourceNaitive,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Capital", got.Name)
	assert.True(t, got.MinDealSize.Equal(minDeal))
	assert.Equal(t, []string{"saas", "healthcare"}, got.Industries)
	assert.Nil(t, got.Phone)
	assert.Nil(t, lender.Diff(created.Fields, got.Fields))

	now := time.Now().UTC()
	err = repo.ApplySync(ctx, lender.SyncUpdate{
		LenderID:     created.ID,
		Fields:       lender.Fields{Email: strPtr("new@acme.test")},
		FlexLenderID: strPtr("flex-1"),
		SyncedAt:     now,
	})
	require.NoError(t, err)

	got, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@acme.test", *got.Email)
	assert.Nil(t, got.MinDealSize)
	require.NotNil(t, got.FlexLenderID)
	assert.Equal(t, "flex-1", *got.FlexLenderID)
	assert.Equal(t, lender.SourceNaitive, got.SyncSource)
	require.NotNil(t, got.LastSyncedFromFlex)

	_, err = repo.Create(ctx, lender.CreateInput{Name: "Other", SyncSource: lender.SourceFlex, FlexLenderID: strPtr("flex-1")})
	assert.ErrorIs(t, err, lender.ErrDuplicateFlexID)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSyncRequestRepositoryLifecycle(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	lenders := postgresrepo.NewLenderRepository(pool)
	requests := postgresrepo.NewSyncRequestRepository(pool)

	existing, err := lenders.Create(ctx, lender.CreateInput{Name: "Acme Capital", Fields: lender.Fields{Email: strPtr("a@acme.test")}})
	require.NoError(t, err)

	req, err := requests.Create(ctx, syncreq.CreateInput{
		SourceSystem:       syncreq.SourceFlex,
		SourceLenderID:     strPtr("flex-9"),
		Type:               syncreq.TypeMergeConflict,
		IncomingData:       lender.Payload{ExternalID: "flex-9", Name: "Acme Capital", Fields: lender.Fields{Email: strPtr("b@acme.test")}},
		ExistingLenderID:   &existing.ID,
		ExistingLenderName: &existing.Name,
		ChangesDiff:        lender.Changes{"email": {Old: "a@acme.test", New: "b@acme.test"}},
	})
	require.NoError(t, err)
	assert.Equal(t, syncreq.StatusPending, req.Status)
	assert.Contains(t, req.ChangesDiff, "email")

	pending, err := requests.FindPendingByLender(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, pending.ID)

	replaced, err := requests.ReplacePending(ctx, syncreq.ReplaceInput{
		ID:             req.ID,
		Type:           syncreq.TypeMergeConflict,
		SourceLenderID: strPtr("flex-9"),
		IncomingData:   lender.Payload{Name: "Acme Capital", Fields: lender.Fields{Email: strPtr("c@acme.test")}},
		ChangesDiff:    lender.Changes{"email": {Old: "a@acme.test", New: "c@acme.test"}},
	})
	require.NoError(t, err)
	assert.Equal(t, req.ID, replaced.ID)
	assert.Equal(t, "c@acme.test", *replaced.IncomingData.Email)

	counts, err := requests.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[syncreq.TypeMergeConflict])

	list, err := requests.List(ctx, syncreq.ListFilter{Status: syncreq.StatusPending, Type: syncreq.TypeMergeConflict})
	require.NoError(t, err)
	require.Len(t, list, 1)

	newReq, err := requests.Create(ctx, syncreq.CreateInput{
		SourceSystem: syncreq.SourceFlex,
		Type:         syncreq.TypeNewLender,
		IncomingData: lender.Payload{Name: "Fresh Lender"},
	})
	require.NoError(t, err)
	assert.Nil(t, newReq.ExistingLenderID)
	assert.Nil(t, newReq.ChangesDiff)

	_, err = requests.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, syncreq.ErrRequestNotFound)
}

func TestResolutionStoreMergeIsAtomic(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	lenders := postgresrepo.NewLenderRepository(pool)
	requests := postgresrepo.NewSyncRequestRepository(pool)
	svc := syncreq.NewResolutionService(postgresrepo.NewResolutionStore(pool), requests, postgresrepo.NewActivityRepository(pool), nil, nil)

	existing, err := lenders.Create(ctx, lender.CreateInput{Name: "Acme Capital", Fields: lender.Fields{Email: strPtr("a@acme.test"), City: strPtr("Austin")}})
	require.NoError(t, err)
	req, err := requests.Create(ctx, syncreq.CreateInput{
		SourceSystem:     syncreq.SourceFlex,
		SourceLenderID:   strPtr("flex-9"),
		Type:             syncreq.TypeMergeConflict,
		IncomingData:     lender.Payload{Name: "Acme Capital", Fields: lender.Fields{Email: strPtr("b@acme.test")}},
		ExistingLenderID: &existing.ID,
		ChangesDiff:      lender.Changes{"email": {Old: "a@acme.test", New: "b@acme.test"}},
	})
	require.NoError(t, err)

	err = svc.Merge(ctx, req.ID, "admin-1", map[string]json.RawMessage{"email": json.RawMessage(`"b@acme.test"`)}, "took email")
	require.NoError(t, err)

	got, err := lenders.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@acme.test", *got.Email)
	assert.Equal(t, "Austin", *got.City)
	assert.Equal(t, lender.SourceNaitive, got.SyncSource)

	closed, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, syncreq.StatusMerged, closed.Status)
	require.NotNil(t, closed.ProcessedBy)
	assert.Equal(t, "admin-1", *closed.ProcessedBy)

	err = svc.Reject(ctx, req.ID, "admin-2", "")
	assert.ErrorIs(t, err, syncreq.ErrNotPending)
}

func TestOutboxRepositoryClaimAndRetry(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	outbox := postgresrepo.NewOutboxRepository(pool)
	require.NoError(t, outbox.Enqueue(ctx, "lender_sync_notification", []byte(`{"recipient_user_id":"u1"}`)))

	claimed, err := outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, int32(1), claimed[0].Attempts)

	again, err := outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, outbox.MarkRetry(ctx, claimed[0].ID, time.Now().UTC().Add(-time.Second), "notify down"))
	retried, err := outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, int32(2), retried[0].Attempts)
	assert.Equal(t, "notify down", retried[0].LastError)
	require.NoError(t, outbox.MarkDone(ctx, retried[0].ID))
}

func TestOutboxRepositoryReclaimsStaleProcessing(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	outbox := postgresrepo.NewOutboxRepository(pool)
	require.NoError(t, outbox.Enqueue(ctx, "lender_sync_notification", []byte(`{"recipient_user_id":"u1"}`)))

	claimed, err := outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	_, err = pool.Exec(ctx, `UPDATE outbox_jobs SET updated_at = NOW() - INTERVAL '1 minute' WHERE id = $1`, claimed[0].ID)
	require.NoError(t, err)
	fresh, err := outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	_, err = pool.Exec(ctx, `UPDATE outbox_jobs SET updated_at = NOW() - make_interval(secs => $2) WHERE id = $1`, claimed[0].ID, (postgresrepo.ClaimLease + time.Minute).Seconds())
	require.NoError(t, err)
	stale, err := outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, claimed[0].ID, stale[0].ID)
	assert.Equal(t, int32(2), stale[0].Attempts)
}

func TestLenderDecimalsKeepIncomingScale(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	repo := postgresrepo.NewLenderRepository(pool)

	minDeal := decimal.RequireFromString("1234.567")
	maxDeal := decimal.RequireFromString("12345678901234567.5")
	ltv := decimal.RequireFromString("0.123456")
	incoming := lender.Fields{MinDealSize: &minDeal, MaxDealSize: &maxDeal, MaxLTV: &ltv}
	created, err := repo.Create(ctx, lender.CreateInput{Name: "Scale Capital", Fields: incoming, SyncSource: lender.SourceFlex})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "1234.567", got.MinDealSize.String())
	assert.True(t, got.MaxDealSize.Equal(maxDeal))
	assert.True(t, got.MaxLTV.Equal(ltv))
	assert.Nil(t, lender.Diff(got.Fields, incoming))
}

func TestDeletingLenderWithSyncHistoryIsRestricted(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	lenders := postgresrepo.NewLenderRepository(pool)
	requests := postgresrepo.NewSyncRequestRepository(pool)

	existing, err := lenders.Create(ctx, lender.CreateInput{Name: "Keep Capital", SyncSource: lender.SourceNaitive})
	require.NoError(t, err)
	req, err := requests.Create(ctx, syncreq.CreateInput{
		SourceSystem:       syncreq.SourceFlex,
		SourceLenderID:     strPtr("flex-keep"),
		Type:               syncreq.TypeMergeConflict,
		IncomingData:       lender.Payload{Name: "Keep Capital", Fields: lender.Fields{City: strPtr("Boston")}},
		ExistingLenderID:   &existing.ID,
		ExistingLenderName: &existing.Name,
		ChangesDiff:        lender.Changes{"city": {Old: nil, New: "Boston"}},
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `DELETE FROM lenders WHERE id = $1`, existing.ID)
	require.Error(t, err)

	kept, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, syncreq.StatusPending, kept.Status)
}

func TestAdminDirectoryListsAdmins(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, pool)
	testutil.ResetTables(t, pool)

	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ('admin-b', 'admin'), ('admin-a', 'admin'), ('analyst-1', 'analyst')`)
	require.NoError(t, err)

	ids, err := postgresrepo.NewAdminDirectory(pool).ListAdminIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin-a", "admin-b"}, ids)
}
