package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/naitive/backend/internal/domain/lender"
	"github.com/naitive/backend/internal/domain/syncreq"
)

const syncRequestColumns = `
id, source_system, source_lender_id, request_type, incoming_data,
existing_lender_id, existing_lender_name, changes_diff, status,
processed_by, processed_at, processing_notes, created_at, updated_at`

type SyncRequestRepository struct {
	db DBTX
}

func NewSyncRequestRepository(db DBTX) *SyncRequestRepository {
	return &SyncRequestRepository{db: db}
}

func (r *SyncRequestRepository) Create(ctx context.Context, in syncreq.CreateInput) (*syncreq.Request, error) {
	incoming, diff, err := encodeRequestData(in.IncomingData, in.ChangesDiff)
	if err != nil {
		return nil, err
	}
	q := `
INSERT INTO lender_sync_requests (
  source_system, source_lender_id, request_type, incoming_data,
  existing_lender_id, existing_lender_name, changes_diff, status
) VALUES ($1, $2, $3, $4::jsonb, $5::uuid, $6, $7::jsonb, 'pending')
RETURNING ` + syncRequestColumns
	return scanSyncRequest(r.db.QueryRow(ctx, q,
		in.SourceSystem, in.SourceLenderID, string(in.Type), incoming,
		in.ExistingLenderID, in.ExistingLenderName, diff,
	))
}

func (r *SyncRequestRepository) FindPendingByLender(ctx context.Context, lenderID string) (*syncreq.Request, error) {
	q := `
SELECT ` + syncRequestColumns + `
FROM lender_sync_requests
WHERE existing_lender_id = $1::uuid AND status = 'pending'
ORDER BY created_at DESC
LIMIT 1`
	req, err := scanSyncRequest(r.db.QueryRow(ctx, q, lenderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, syncreq.ErrRequestNotFound
	}
	return req, err
}

func (r *SyncRequestRepository) ReplacePending(ctx context.Context, in syncreq.ReplaceInput) (*syncreq.Request, error) {
	incoming, diff, err := encodeRequestData(in.IncomingData, in.ChangesDiff)
	if err != nil {
		return nil, err
	}
	q := `
UPDATE lender_sync_requests SET
  request_type = $2,
  source_lender_id = $3,
  incoming_data = $4::jsonb,
  changes_diff = $5::jsonb,
  updated_at = NOW()
WHERE id = $1::uuid AND status = 'pending'
RETURNING ` + syncRequestColumns
	req, err := scanSyncRequest(r.db.QueryRow(ctx, q, in.ID, string(in.Type), in.SourceLenderID, incoming, diff))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, syncreq.ErrNotPending
	}
	return req, err
}

func (r *SyncRequestRepository) GetByID(ctx context.Context, id string) (*syncreq.Request, error) {
	return r.getByID(ctx, id, "")
}

func (r *SyncRequestRepository) getByID(ctx context.Context, id, lock string) (*syncreq.Request, error) {
	req, err := scanSyncRequest(r.db.QueryRow(ctx, `SELECT `+syncRequestColumns+` FROM lender_sync_requests WHERE id = $1::uuid`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, syncreq.ErrRequestNotFound
	}
	return req, err
}

func (r *SyncRequestRepository) List(ctx context.Context, f syncreq.ListFilter) ([]syncreq.Request, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + syncRequestColumns + ` FROM lender_sync_requests WHERE 1=1`)
	args := []any{}
	argPos := 1
	if f.Status != "" {
		builder.WriteString(" AND status = $")
		builder.WriteString(strconv.Itoa(argPos))
		args = append(args, string(f.Status))
		argPos++
	}
	if f.Type != "" {
		builder.WriteString(" AND request_type = $")
		builder.WriteString(strconv.Itoa(argPos))
		args = append(args, string(f.Type))
		argPos++
	}
	builder.WriteString(" ORDER BY created_at DESC")
	builder.WriteString(" LIMIT $")
	builder.WriteString(strconv.Itoa(argPos))
	args = append(args, f.Limit)
	argPos++
	builder.WriteString(" OFFSET $")
	builder.WriteString(strconv.Itoa(argPos))
	args = append(args, f.Offset)

	rows, err := r.db.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []syncreq.Request{}
	for rows.Next() {
		req, err := scanSyncRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *SyncRequestRepository) CountPending(ctx context.Context) (map[syncreq.RequestType]int, error) {
	rows, err := r.db.Query(ctx, `SELECT request_type, COUNT(*) FROM lender_sync_requests WHERE status = 'pending' GROUP BY request_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[syncreq.RequestType]int{}
	for rows.Next() {
		var (
			typ   string
			count int64
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		out[syncreq.RequestType(typ)] = int(count)
	}
	return out, rows.Err()
}

// MarkResolved only moves a pending request; a request that already left
// pending yields ErrNotPending.
func (r *SyncRequestRepository) MarkResolved(ctx context.Context, in syncreq.ResolveInput) error {
	q := `
UPDATE lender_sync_requests SET
  status = $2,
  processed_by = $3,
  processed_at = $4,
  processing_notes = NULLIF($5, ''),
  updated_at = NOW()
WHERE id = $1::uuid AND status = 'pending'
`
	tag, err := r.db.Exec(ctx, q, in.ID, string(in.Status), in.ProcessedBy, in.ProcessedAt, in.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return syncreq.ErrNotPending
	}
	return nil
}

func encodeRequestData(p lender.Payload, diff lender.Changes) ([]byte, []byte, error) {
	incoming, err := json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("encode incoming_data: %w", err)
	}
	if diff == nil {
		return incoming, nil, nil
	}
	encodedDiff, err := json.Marshal(diff)
	if err != nil {
		return nil, nil, fmt.Errorf("encode changes_diff: %w", err)
	}
	return incoming, encodedDiff, nil
}

func scanSyncRequest(row rowScanner) (*syncreq.Request, error) {
	out := &syncreq.Request{}
	var (
		reqType, status string
		incoming, diff  []byte
	)
	err := row.Scan(
		&out.ID, &out.SourceSystem, &out.SourceLenderID, &reqType, &incoming,
		&out.ExistingLenderID, &out.ExistingLenderName, &diff, &status,
		&out.ProcessedBy, &out.ProcessedAt, &out.ProcessingNotes, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	out.Type = syncreq.RequestType(reqType)
	out.Status = syncreq.Status(status)
	if err := json.Unmarshal(incoming, &out.IncomingData); err != nil {
		return nil, fmt.Errorf("decode incoming_data for %s: %w", out.ID, err)
	}
	if len(diff) > 0 {
		if err := json.Unmarshal(diff, &out.ChangesDiff); err != nil {
			return nil, fmt.Errorf("decode changes_diff for %s: %w", out.ID, err)
		}
	}
	return out, nil
}
