package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CursorStore implements domain.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a new CursorStore backed by the given pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the stored position for a named subscription.
func (s *CursorStore) Get(ctx context.Context, name string) (uint64, int64, bool, error) {
	var block, logIndex int64
	err := s.pool.QueryRow(ctx,
		`SELECT block, log_index FROM listener_cursors WHERE name = $1`, name,
	).Scan(&block, &logIndex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("postgres: get cursor %s: %w", name, err)
	}
	return uint64(block), logIndex, true, nil
}

// Put stores the position, overwriting any previous value. logIndex may be
// -1 to mark a block with no processed log.
func (s *CursorStore) Put(ctx context.Context, name string, block uint64, logIndex int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listener_cursors (name, block, log_index, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET block = EXCLUDED.block, log_index = EXCLUDED.log_index, updated_at = NOW()`,
		name, int64(block), logIndex,
	)
	if err != nil {
		return fmt.Errorf("postgres: put cursor %s: %w", name, err)
	}
	return nil
}
