package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminDirectory lists the users that review lender sync requests.
type AdminDirectory struct {
	pool *pgxpool.Pool
}

func NewAdminDirectory(pool *pgxpool.Pool) *AdminDirectory {
	return &AdminDirectory{pool: pool}
}

func (d *AdminDirectory) ListAdminIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role = 'admin' ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
