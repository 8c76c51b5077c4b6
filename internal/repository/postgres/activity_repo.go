package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/naitive/backend/internal/domain/syncreq"
)

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) Log(ctx context.Context, in syncreq.ActivityInput) error {
	payload := in.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	q := `
INSERT INTO activity_log (actor_id, action, target_type, target_id, payload)
VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5::jsonb)
`
	_, err := r.pool.Exec(ctx, q, in.ActorID, in.Action, in.TargetType, in.TargetID, payload)
	return err
}
