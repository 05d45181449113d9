package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/ledger"
	"github.com/alanyoungcy/academymint/internal/pricing"
)

// errPollTimeout signals that a receipt did not appear within the bounded
// wait. Callers map it to the stage-appropriate failure kind.
var errPollTimeout = errors.New("receipt poll timed out")

// ExecutorConfig holds the confirmation-poll parameters.
type ExecutorConfig struct {
	// PollInterval is the fixed interval between receipt lookups.
	PollInterval time.Duration
	// ConfirmTimeout is the maximum total wait for the mint receipt before
	// the attempt is reported as timed out.
	ConfirmTimeout time.Duration
}

// MintResult is the terminal success state of one mint attempt.
type MintResult struct {
	TxHash  common.Hash
	AssetID *big.Int
	Event   *ledger.MintedEvent
}

// Executor drives one mint attempt through its states: submit the privileged
// call, poll for the receipt, decode the mint event, and extract the newly
// assigned asset id.
type Executor struct {
	ledger Ledger
	policy *pricing.Policy
	cfg    ExecutorConfig
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(l Ledger, policy *pricing.Policy, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	return &Executor{
		ledger: l,
		policy: policy,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "mint_executor")),
	}
}

// Execute submits the mint and tracks it to a terminal state. onSubmitted is
// invoked as soon as a transaction hash exists so the caller can record the
// attempt before confirmation; once submitted, tracking continues on a
// detached context so caller cancellation never abandons a live on-chain
// transaction.
//
// Post-submission failures return the partial result (with TxHash set)
// alongside the error so the attempt stays traceable.
func (e *Executor) Execute(ctx context.Context, req domain.MintRequest, proof domain.EligibilityProof, onSubmitted func(common.Hash)) (*MintResult, error) {
	price, err := e.policy.MintPrice(req.Division, req.Rarity)
	if err != nil {
		return nil, err
	}

	// Cancellation before submission is safe; nothing has happened yet.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txHash, err := e.ledger.SubmitMint(ctx, req.ClubID, req.PlayerID, proof, price)
	if err != nil {
		return nil, err
	}
	if onSubmitted != nil {
		onSubmitted(txHash)
	}

	e.logger.InfoContext(ctx, "mint submitted",
		slog.String("player_id", req.PlayerID),
		slog.String("tx", txHash.Hex()),
		slog.String("mint_price_wei", price.String()),
	)

	result := &MintResult{TxHash: txHash}

	receipt, err := awaitReceipt(ctx, e.ledger, txHash, e.cfg.PollInterval, e.cfg.ConfirmTimeout, e.logger)
	if err != nil {
		if errors.Is(err, errPollTimeout) {
			return result, fmt.Errorf("mint: %w: tx %s after %s", domain.ErrMintTimedOut, txHash.Hex(), e.cfg.ConfirmTimeout)
		}
		return result, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, fmt.Errorf("mint: %w: tx %s reverted", domain.ErrMintEventNotFound, txHash.Hex())
	}

	// First log matching the mint event signature wins; non-matching logs
	// are filtered, not fatal.
	var minted *ledger.MintedEvent
	for _, lg := range receipt.Logs {
		decoded, ok := ledger.DecodeLog(*lg, &ledger.MintABI, ledger.EventAcademyPlayerMinted)
		if !ok {
			continue
		}
		minted, err = ledger.ParseMintedEvent(*decoded)
		if err != nil {
			continue
		}
		break
	}
	if minted == nil {
		return result, fmt.Errorf("mint: %w: tx %s emitted no matching event", domain.ErrMintEventNotFound, txHash.Hex())
	}
	if minted.AssetID == nil {
		return result, fmt.Errorf("mint: %w: tx %s", domain.ErrAssetIDMissing, txHash.Hex())
	}

	result.AssetID = minted.AssetID
	result.Event = minted

	e.logger.InfoContext(ctx, "mint confirmed",
		slog.String("player_id", req.PlayerID),
		slog.String("tx", txHash.Hex()),
		slog.String("asset_id", minted.AssetID.String()),
	)
	return result, nil
}

// awaitReceipt polls for a receipt on a fixed interval until it appears or
// the bounded wait elapses. Absence of a receipt is "not yet", never a
// failure; transient lookup errors are tolerated and retried on the next
// tick. The poll runs on a context detached from the caller's so a
// cancelled request still gets tracked to completion.
func awaitReceipt(ctx context.Context, l Ledger, txHash common.Hash, interval, timeout time.Duration, logger *slog.Logger) (*types.Receipt, error) {
	pollCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, found, err := l.Receipt(pollCtx, txHash)
		if err != nil {
			logger.WarnContext(pollCtx, "receipt lookup failed, retrying",
				slog.String("tx", txHash.Hex()),
				slog.String("error", err.Error()),
			)
		} else if found {
			return receipt, nil
		}

		select {
		case <-pollCtx.Done():
			return nil, errPollTimeout
		case <-ticker.C:
		}
	}
}
