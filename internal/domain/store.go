package domain

import (
	"context"
	"time"
)

// OutcomeStore persists MintOutcome records. An asset id maps to at most one
// outcome; implementations enforce this with a uniqueness constraint.
type OutcomeStore interface {
	// Create inserts a new outcome. Returns ErrDuplicateRequest if an
	// outcome already exists for the same payment transaction.
	Create(ctx context.Context, o *MintOutcome) error

	// Update writes the current status, stage, and stage-filled fields of an
	// existing outcome.
	Update(ctx context.Context, o *MintOutcome) error

	// GetByID returns an outcome by its id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*MintOutcome, error)

	// GetByPaymentTx returns the outcome recorded for a payment transaction,
	// or ErrNotFound.
	GetByPaymentTx(ctx context.Context, paymentTx string) (*MintOutcome, error)

	// ListTerminalBefore returns up to limit delivered/failed outcomes last
	// updated strictly before the cutoff, oldest first. Used by the
	// cold-storage archiver.
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]*MintOutcome, error)

	// DeleteByIDs removes outcomes by id after they have been archived.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// CursorStore persists the last processed (block, log index) position of a
// named log subscription so the listener can resume after a reconnect
// without re-processing confirmed mints. A logIndex of -1 marks a block in
// which no log has been processed yet, so a real log at index 0 of that
// block is still picked up.
type CursorStore interface {
	// Get returns the stored position. ok is false when no cursor has been
	// written yet.
	Get(ctx context.Context, name string) (block uint64, logIndex int64, ok bool, err error)

	// Put stores the position, overwriting any previous value.
	Put(ctx context.Context, name string, block uint64, logIndex int64) error
}

// LockManager provides a cross-replica mutual exclusion guard keyed by
// player id. Acquire returns ErrLockHeld when another holder has the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
