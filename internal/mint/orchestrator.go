package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// OrchestratorConfig holds the workflow-level parameters.
type OrchestratorConfig struct {
	// LockTTL bounds how long the cross-replica player lock may be held
	// before it expires on its own.
	LockTTL time.Duration
}

// Orchestrator runs the full mint workflow for one request: duplicate and
// concurrency guards, payment verification, proof fetching, the privileged
// mint, and delivery of the minted asset to the recipient. Exactly one
// attempt runs per player at a time.
type Orchestrator struct {
	verifier  *Verifier
	proofs    ProofFetcher
	executor  *Executor
	transfers *TransferExecutor
	store     domain.OutcomeStore
	locks     *keyLock
	lockMgr   domain.LockManager
	publisher Publisher
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. lockMgr and publisher may be nil;
// a nil lockMgr limits mutual exclusion to this process.
func NewOrchestrator(
	verifier *Verifier,
	proofs ProofFetcher,
	executor *Executor,
	transfers *TransferExecutor,
	store domain.OutcomeStore,
	lockMgr domain.LockManager,
	publisher Publisher,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Orchestrator{
		verifier:  verifier,
		proofs:    proofs,
		executor:  executor,
		transfers: transfers,
		store:     store,
		locks:     newKeyLock(),
		lockMgr:   lockMgr,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Execute runs the workflow for req. Pre-submission failures (duplicate,
// mismatch, missing proof) return a nil outcome because nothing happened on
// chain. Once a mint transaction exists an outcome is always recorded and
// returned, including alongside a non-nil error, so partial progress is
// never lost.
func (o *Orchestrator) Execute(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	if existing, err := o.store.GetByPaymentTx(ctx, req.PaymentTx.Hex()); err == nil {
		return existing, fmt.Errorf("mint: %w: payment %s already recorded as outcome %s",
			domain.ErrDuplicateRequest, req.PaymentTx.Hex(), existing.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("mint: duplicate check for payment %s: %w", req.PaymentTx.Hex(), err)
	}

	release, err := o.acquirePlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-check under the lock: a concurrent request for the same payment may
	// have completed while this one waited.
	if existing, err := o.store.GetByPaymentTx(ctx, req.PaymentTx.Hex()); err == nil {
		return existing, fmt.Errorf("mint: %w: payment %s already recorded as outcome %s",
			domain.ErrDuplicateRequest, req.PaymentTx.Hex(), existing.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("mint: duplicate check for payment %s: %w", req.PaymentTx.Hex(), err)
	}

	if err := o.verifier.Verify(ctx, req); err != nil {
		return nil, domain.NewStageError(domain.StageVerify, req.PlayerID, err)
	}

	proof, err := o.proofs.FetchProof(ctx, req.PlayerID)
	if err != nil {
		return nil, domain.NewStageError(domain.StageProof, req.PlayerID, err)
	}

	// Everything past submission runs detached from the caller: a dropped
	// request must never abandon a live on-chain transaction or its record.
	dctx := context.WithoutCancel(ctx)

	var outcome *domain.MintOutcome
	result, err := o.executor.Execute(ctx, req, proof, func(txHash common.Hash) {
		outcome = domain.NewMintOutcome(req, txHash)
		if cerr := o.store.Create(dctx, outcome); cerr != nil {
			o.logger.Error("failed to record submitted mint",
				slog.String("player_id", req.PlayerID),
				slog.String("tx", txHash.Hex()),
				slog.Any("error", cerr),
			)
		}
		o.publish(outcome)
	})
	if err != nil {
		if outcome == nil {
			// No transaction reference exists, so nothing to record.
			if !errors.Is(err, domain.ErrUnknownDivision) && !errors.Is(err, domain.ErrSubmissionError) && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%w: %v", domain.ErrSubmissionError, err)
			}
			return nil, domain.NewStageError(domain.StageMint, req.PlayerID, err)
		}
		if errors.Is(err, domain.ErrMintTimedOut) {
			outcome.Status = domain.MintStatusOutstanding
		} else {
			outcome.Status = domain.MintStatusFailed
		}
		o.fail(dctx, outcome, domain.StageMint, err)
		return outcome, domain.NewStageError(domain.StageMint, req.PlayerID, err)
	}

	outcome.AssetID = result.AssetID.String()
	outcome.Status = domain.MintStatusConfirmed
	o.update(dctx, outcome)

	outcome.Status = domain.MintStatusTransferring
	outcome.Stage = domain.StageTransfer
	o.update(dctx, outcome)

	transferTx, err := o.transfers.Deliver(dctx, result.AssetID, req.Recipient)
	if transferTx != (common.Hash{}) {
		outcome.TransferTx = transferTx.Hex()
	}
	if err != nil {
		outcome.Status = domain.MintStatusUndelivered
		o.fail(dctx, outcome, domain.StageTransfer, err)
		return outcome, domain.NewStageError(domain.StageTransfer, req.PlayerID, err)
	}

	outcome.Status = domain.MintStatusDelivered
	outcome.Error = ""
	o.update(dctx, outcome)

	o.logger.InfoContext(ctx, "mint workflow complete",
		slog.String("outcome_id", outcome.ID),
		slog.String("player_id", req.PlayerID),
		slog.String("asset_id", outcome.AssetID),
	)
	return outcome, nil
}

// RetryTransfer re-runs the delivery stage of an undelivered outcome. The
// mint stage is never repeated; only the transfer is attempted again.
func (o *Orchestrator) RetryTransfer(ctx context.Context, outcomeID string) (*domain.MintOutcome, error) {
	outcome, err := o.store.GetByID(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	if outcome.Status != domain.MintStatusUndelivered {
		return outcome, fmt.Errorf("mint: outcome %s is %s, only undelivered outcomes can retry transfer",
			outcome.ID, outcome.Status)
	}
	if outcome.AssetID == "" {
		return outcome, fmt.Errorf("mint: %w: outcome %s", domain.ErrAssetIDMissing, outcome.ID)
	}
	assetID, ok := new(big.Int).SetString(outcome.AssetID, 10)
	if !ok {
		return outcome, fmt.Errorf("mint: outcome %s has malformed asset id %q", outcome.ID, outcome.AssetID)
	}
	if !common.IsHexAddress(outcome.Recipient) {
		return outcome, fmt.Errorf("mint: outcome %s has malformed recipient %q", outcome.ID, outcome.Recipient)
	}

	release, err := o.acquirePlayer(ctx, outcome.PlayerID)
	if err != nil {
		return outcome, err
	}
	defer release()

	dctx := context.WithoutCancel(ctx)

	outcome.Status = domain.MintStatusTransferring
	outcome.Stage = domain.StageTransfer
	outcome.Error = ""
	o.update(dctx, outcome)

	transferTx, err := o.transfers.Deliver(dctx, assetID, common.HexToAddress(outcome.Recipient))
	if transferTx != (common.Hash{}) {
		outcome.TransferTx = transferTx.Hex()
	}
	if err != nil {
		outcome.Status = domain.MintStatusUndelivered
		o.fail(dctx, outcome, domain.StageTransfer, err)
		return outcome, domain.NewStageError(domain.StageTransfer, outcome.PlayerID, err)
	}

	outcome.Status = domain.MintStatusDelivered
	outcome.Error = ""
	o.update(dctx, outcome)
	return outcome, nil
}

// acquirePlayer takes the in-process lock and, when configured, the
// cross-replica lock for a player id. The in-process lock blocks; the
// cross-replica lock does not, so a holder elsewhere surfaces as
// ErrMintInFlight.
func (o *Orchestrator) acquirePlayer(ctx context.Context, playerID string) (func(), error) {
	localRelease, err := o.locks.Acquire(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if o.lockMgr == nil {
		return localRelease, nil
	}
	remoteRelease, err := o.lockMgr.Acquire(ctx, "mint:"+playerID, o.cfg.LockTTL)
	if err != nil {
		localRelease()
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("mint: %w: player %s", domain.ErrMintInFlight, playerID)
		}
		return nil, fmt.Errorf("mint: acquire lock for player %s: %w", playerID, err)
	}
	return func() {
		remoteRelease()
		localRelease()
	}, nil
}

func (o *Orchestrator) fail(ctx context.Context, outcome *domain.MintOutcome, stage string, err error) {
	outcome.Stage = stage
	outcome.Error = err.Error()
	o.update(ctx, outcome)
	o.logger.Error("mint stage failed",
		slog.String("outcome_id", outcome.ID),
		slog.String("player_id", outcome.PlayerID),
		slog.String("stage", stage),
		slog.String("status", string(outcome.Status)),
		slog.Any("error", err),
	)
}

func (o *Orchestrator) update(ctx context.Context, outcome *domain.MintOutcome) {
	outcome.UpdatedAt = time.Now().UTC()
	if err := o.store.Update(ctx, outcome); err != nil {
		o.logger.Error("failed to persist outcome update",
			slog.String("outcome_id", outcome.ID),
			slog.String("status", string(outcome.Status)),
			slog.Any("error", err),
		)
	}
	o.publish(outcome)
}

func (o *Orchestrator) publish(outcome *domain.MintOutcome) {
	if o.publisher == nil || outcome == nil {
		return
	}
	snapshot := *outcome
	o.publisher.PublishOutcome(&snapshot)
}
