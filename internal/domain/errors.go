package domain

import (
	"errors"
	"fmt"
)

// Stage failure sentinels. Every stage of the mint workflow fails with one of
// these so callers can branch on the exact kind; they are never collapsed
// into a generic error.
var (
	// ErrUnknownDivision: the division tag is absent from the pricing table.
	// Policy/config error; reject, never coerce to a zero price.
	ErrUnknownDivision = errors.New("unknown division")

	// ErrPaymentMismatch: declared or on-chain payment does not equal the
	// expected amount. Hard rejection, no retry.
	ErrPaymentMismatch = errors.New("payment mismatch")

	// ErrProofUnavailable: the metadata service returned no eligibility
	// proof. The mint never proceeds without one.
	ErrProofUnavailable = errors.New("eligibility proof unavailable")

	// ErrSubmissionError: the transaction could not be handed to the ledger
	// node. Safe to retry while no receipt exists.
	ErrSubmissionError = errors.New("transaction submission failed")

	// ErrMintTimedOut: no receipt within the configured wait. Ambiguous; the
	// transaction may still land, so the attempt stays outstanding and must
	// not be blindly resubmitted.
	ErrMintTimedOut = errors.New("mint confirmation timed out")

	// ErrMintEventNotFound: the receipt arrived but carried no mint event.
	ErrMintEventNotFound = errors.New("mint event not found in receipt")

	// ErrAssetIDMissing: the mint event decoded but carried no asset id.
	ErrAssetIDMissing = errors.New("asset id missing from mint event")

	// ErrUnexpectedOwner: the minted asset is not held by the operator's
	// custodial address, so a transfer cannot be authorized.
	ErrUnexpectedOwner = errors.New("unexpected asset owner")

	// ErrTransferFailed: the asset was minted but delivery failed. Partial
	// success; retryable at the transfer stage alone.
	ErrTransferFailed = errors.New("asset transfer failed")

	// ErrDuplicateRequest: an outcome already exists for this payment
	// transaction.
	ErrDuplicateRequest = errors.New("duplicate mint request")

	// ErrMintInFlight: another replica holds the mint lock for this player.
	ErrMintInFlight = errors.New("mint already in flight for player")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld is returned by the lock manager when a lock is taken.
	ErrLockHeld = errors.New("lock already held")
)

// Stage names used in StageError and MintOutcome.Stage.
const (
	StageVerify   = "verify"
	StageProof    = "proof"
	StageMint     = "mint"
	StageTransfer = "transfer"
)

// StageError wraps a stage failure with the stage name and the identifiers
// the operator needs for remediation.
type StageError struct {
	Stage    string
	PlayerID string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for player %s: %v", e.Stage, e.PlayerID, e.Err)
}

// Unwrap exposes the underlying sentinel for errors.Is branching.
func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with stage context.
func NewStageError(stage, playerID string, err error) *StageError {
	return &StageError{Stage: stage, PlayerID: playerID, Err: err}
}
