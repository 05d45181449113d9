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
)

// TransferConfig holds the delivery confirmation parameters.
type TransferConfig struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// TransferExecutor delivers a minted asset to its recipient. It refuses to
// submit a transfer the operator cannot authorize: current ownership is
// checked against the custodial address first, which also guards against
// acting on a stale or reused asset id.
type TransferExecutor struct {
	ledger Ledger
	cfg    TransferConfig
	logger *slog.Logger
}

// NewTransferExecutor creates a TransferExecutor.
func NewTransferExecutor(l Ledger, cfg TransferConfig, logger *slog.Logger) *TransferExecutor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	return &TransferExecutor{
		ledger: l,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "transfer_executor")),
	}
}

// Deliver transfers the asset to the recipient and waits for confirmation.
// The mint itself is never rolled back on failure here; the caller reports
// delivery failure distinctly so it can be retried at this stage alone.
func (t *TransferExecutor) Deliver(ctx context.Context, assetID *big.Int, recipient common.Address) (common.Hash, error) {
	owner, err := t.ledger.OwnerOf(ctx, assetID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("mint: %w: owner lookup for asset %s: %v", domain.ErrTransferFailed, assetID, err)
	}

	operator := t.ledger.OperatorAddress()
	if owner != operator {
		return common.Hash{}, fmt.Errorf("mint: %w: asset %s held by %s, not custodial address %s",
			domain.ErrUnexpectedOwner, assetID, owner.Hex(), operator.Hex())
	}

	txHash, err := t.ledger.SubmitTransfer(ctx, recipient, assetID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("mint: %w: submit transfer of asset %s: %v", domain.ErrTransferFailed, assetID, err)
	}

	t.logger.InfoContext(ctx, "transfer submitted",
		slog.String("asset_id", assetID.String()),
		slog.String("recipient", recipient.Hex()),
		slog.String("tx", txHash.Hex()),
	)

	receipt, err := awaitReceipt(ctx, t.ledger, txHash, t.cfg.PollInterval, t.cfg.ConfirmTimeout, t.logger)
	if err != nil {
		if errors.Is(err, errPollTimeout) {
			return txHash, fmt.Errorf("mint: %w: transfer %s unconfirmed after %s",
				domain.ErrTransferFailed, txHash.Hex(), t.cfg.ConfirmTimeout)
		}
		return txHash, fmt.Errorf("mint: %w: transfer %s: %v", domain.ErrTransferFailed, txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("mint: %w: transfer %s reverted", domain.ErrTransferFailed, txHash.Hex())
	}

	t.logger.InfoContext(ctx, "asset delivered",
		slog.String("asset_id", assetID.String()),
		slog.String("recipient", recipient.Hex()),
		slog.String("tx", txHash.Hex()),
	)
	return txHash, nil
}
