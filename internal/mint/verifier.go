// Package mint implements the mint orchestration workflow: payment
// verification, eligibility proof fetching, privileged mint submission with
// confirmation tracking, and delivery of the minted asset to the payer.
package mint

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/ledger"
	"github.com/alanyoungcy/academymint/internal/pricing"
)

// Ledger is the subset of the ledger client the mint workflow uses. Split
// per capability consumer so each stage is independently mockable.
type Ledger interface {
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, bool, error)
	Transaction(ctx context.Context, txHash common.Hash) (*ledger.TxInfo, bool, error)
	SubmitMint(ctx context.Context, clubID *big.Int, playerID string, proof domain.EligibilityProof, value *big.Int) (common.Hash, error)
	SubmitTransfer(ctx context.Context, to common.Address, tokenID *big.Int) (common.Hash, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	OperatorAddress() common.Address
	PaymentContract() common.Address
}

// ProofFetcher obtains the eligibility proof required by the mint call.
type ProofFetcher interface {
	FetchProof(ctx context.Context, playerID string) (domain.EligibilityProof, error)
}

// Publisher receives outcome transitions for live progress streaming.
// Optional; a nil publisher disables streaming.
type Publisher interface {
	PublishOutcome(o *domain.MintOutcome)
}

// Verifier validates a claimed payment against the pricing policy and the
// ledger before any privileged action is taken. Client-declared figures are
// advisory; the on-chain transaction is the authority.
type Verifier struct {
	policy *pricing.Policy
	ledger Ledger
	logger *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(policy *pricing.Policy, l Ledger, logger *slog.Logger) *Verifier {
	return &Verifier{
		policy: policy,
		ledger: l,
		logger: logger.With(slog.String("component", "verifier")),
	}
}

// Verify checks the declared amount and the referenced payment transaction
// against the expected price for the request's division and rarity. Every
// comparison is exact wei equality. Any mismatch is ErrPaymentMismatch: a
// hard, non-retryable rejection raised before anything privileged runs.
func (v *Verifier) Verify(ctx context.Context, req domain.MintRequest) error {
	expected, err := v.policy.ExpectedPayment(req.Division, req.Rarity)
	if err != nil {
		return err
	}

	if req.AmountWei.Cmp(expected) != 0 {
		return fmt.Errorf("mint: %w: declared %s wei, expected %s wei for %s/%s",
			domain.ErrPaymentMismatch, req.AmountWei, expected, req.Division, req.Rarity)
	}

	// A claimed figure alone is never enough; the payment must be located
	// on the ledger.
	if req.PaymentTx == (common.Hash{}) {
		return fmt.Errorf("mint: %w: no payment transaction reference supplied", domain.ErrPaymentMismatch)
	}

	tx, found, err := v.ledger.Transaction(ctx, req.PaymentTx)
	if err != nil {
		return fmt.Errorf("mint: verify payment %s: %w", req.PaymentTx.Hex(), err)
	}
	if !found {
		return fmt.Errorf("mint: %w: payment transaction %s not found on ledger",
			domain.ErrPaymentMismatch, req.PaymentTx.Hex())
	}
	if tx.Pending {
		return fmt.Errorf("mint: %w: payment transaction %s not yet included",
			domain.ErrPaymentMismatch, req.PaymentTx.Hex())
	}
	if tx.Value.Cmp(expected) != 0 {
		return fmt.Errorf("mint: %w: on-chain value %s wei, expected %s wei",
			domain.ErrPaymentMismatch, tx.Value, expected)
	}
	if tx.From != req.Payer {
		return fmt.Errorf("mint: %w: payment sent by %s, not payer %s",
			domain.ErrPaymentMismatch, tx.From.Hex(), req.Payer.Hex())
	}
	if payTo := v.ledger.PaymentContract(); tx.To == nil || *tx.To != payTo {
		return fmt.Errorf("mint: %w: payment not sent to the payment contract", domain.ErrPaymentMismatch)
	}

	v.logger.DebugContext(ctx, "payment verified",
		slog.String("player_id", req.PlayerID),
		slog.String("payment_tx", req.PaymentTx.Hex()),
		slog.String("amount_wei", expected.String()),
	)
	return nil
}
