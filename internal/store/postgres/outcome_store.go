package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates a new OutcomeStore backed by the given pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

const outcomeSelectCols = `id, player_id, club_id, division, rarity, payer,
	recipient, payment_tx, mint_tx, asset_id, transfer_tx, status, stage,
	error, created_at, updated_at`

func scanOutcome(row pgx.Row) (*domain.MintOutcome, error) {
	var o domain.MintOutcome
	if err := row.Scan(
		&o.ID, &o.PlayerID, &o.ClubID, &o.Division, &o.Rarity, &o.Payer,
		&o.Recipient, &o.PaymentTx, &o.MintTx, &o.AssetID, &o.TransferTx,
		&o.Status, &o.Stage, &o.Error, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts a new outcome. A payment transaction already on record is
// reported as domain.ErrDuplicateRequest via the unique index.
func (s *OutcomeStore) Create(ctx context.Context, o *domain.MintOutcome) error {
	const query = `
		INSERT INTO mint_outcomes (
			id, player_id, club_id, division, rarity, payer,
			recipient, payment_tx, mint_tx, asset_id, transfer_tx,
			status, stage, error, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.PlayerID, o.ClubID, o.Division, o.Rarity, o.Payer,
		o.Recipient, o.PaymentTx, o.MintTx, o.AssetID, o.TransferTx,
		o.Status, o.Stage, o.Error, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: outcome for payment %s: %w", o.PaymentTx, domain.ErrDuplicateRequest)
		}
		return fmt.Errorf("postgres: insert outcome %s: %w", o.ID, err)
	}
	return nil
}

// Update writes the mutable fields of an existing outcome.
func (s *OutcomeStore) Update(ctx context.Context, o *domain.MintOutcome) error {
	const query = `
		UPDATE mint_outcomes SET
			mint_tx = $2, asset_id = $3, transfer_tx = $4,
			status = $5, stage = $6, error = $7, updated_at = $8
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		o.ID, o.MintTx, o.AssetID, o.TransferTx,
		o.Status, o.Stage, o.Error, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update outcome %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update outcome %s: %w", o.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns an outcome by its id.
func (s *OutcomeStore) GetByID(ctx context.Context, id string) (*domain.MintOutcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM mint_outcomes WHERE id = $1`

	o, err := scanOutcome(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: outcome %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get outcome %s: %w", id, err)
	}
	return o, nil
}

// GetByPaymentTx returns the outcome recorded for a payment transaction.
func (s *OutcomeStore) GetByPaymentTx(ctx context.Context, paymentTx string) (*domain.MintOutcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM mint_outcomes WHERE payment_tx = $1`

	o, err := scanOutcome(s.pool.QueryRow(ctx, query, paymentTx))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: outcome for payment %s: %w", paymentTx, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get outcome for payment %s: %w", paymentTx, err)
	}
	return o, nil
}

// ListTerminalBefore returns up to limit delivered/failed outcomes last
// updated before the cutoff, oldest first.
func (s *OutcomeStore) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]*domain.MintOutcome, error) {
	query := `SELECT ` + outcomeSelectCols + `
		FROM mint_outcomes
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4`

	rows, err := s.pool.Query(ctx, query,
		domain.MintStatusDelivered, domain.MintStatusFailed, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal outcomes: %w", err)
	}
	defer rows.Close()

	var out []*domain.MintOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list terminal outcomes: %w", err)
	}
	return out, nil
}

// DeleteByIDs removes outcomes by id, returning the number deleted.
func (s *OutcomeStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM mint_outcomes WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete outcomes: %w", err)
	}
	return tag.RowsAffected(), nil
}
