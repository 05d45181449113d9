// Package domain defines the core types of the academy mint service: the
// validated mint request, the append-only mint outcome record, decoded ledger
// events, and the store interfaces implemented by the persistence layers.
package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RarityRare is the rarity tag whose fixed price override supersedes the
// per-division pricing tables.
const RarityRare = "Rare"

// MintRequest is one request to mint an academy player and deliver it to the
// payer's wallet. It is constructed once at the boundary (HTTP handler or
// event listener), validated, and never mutated afterwards.
type MintRequest struct {
	// Payer is the wallet that paid for the mint.
	Payer common.Address

	// PaymentTx is the hash of the payment transaction, when the caller
	// supplied one. Zero means no on-chain reference was claimed; the
	// verifier then rejects the request outright since declared figures
	// alone are never sufficient.
	PaymentTx common.Hash

	// Division is the pricing division tag, e.g. "div3".
	Division string

	// Rarity is the player rarity tag, e.g. "Common" or "Rare".
	Rarity string

	// PlayerID is the composite academy player identifier, e.g. "5-1808-4".
	PlayerID string

	// ClubID is the club component of the player identifier.
	ClubID *big.Int

	// AmountWei is the payment amount the caller claims to have sent, in wei.
	AmountWei *big.Int

	// MintPriceWei is the mint price the caller claims, in wei. Advisory
	// only; the executor always attaches the price from the pricing policy.
	MintPriceWei *big.Int

	// Recipient is the wallet the minted asset is delivered to.
	Recipient common.Address
}

// NewMintRequest validates the raw boundary values and builds an immutable
// MintRequest. Address and amount strings are rejected here so no stage ever
// sees a malformed request.
func NewMintRequest(payer, recipient, paymentTx, division, rarity, playerID string, clubID int64, amountWei, mintPriceWei *big.Int) (MintRequest, error) {
	var req MintRequest

	if !common.IsHexAddress(payer) {
		return req, fmt.Errorf("domain: invalid payer address %q", payer)
	}
	if !common.IsHexAddress(recipient) {
		return req, fmt.Errorf("domain: invalid recipient address %q", recipient)
	}
	if strings.TrimSpace(playerID) == "" {
		return req, fmt.Errorf("domain: player id is required")
	}
	if strings.TrimSpace(division) == "" {
		return req, fmt.Errorf("domain: division is required")
	}
	if strings.TrimSpace(rarity) == "" {
		return req, fmt.Errorf("domain: rarity is required")
	}
	if clubID <= 0 {
		return req, fmt.Errorf("domain: invalid club id %d", clubID)
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return req, fmt.Errorf("domain: amount sent must be positive")
	}

	req = MintRequest{
		Payer:        common.HexToAddress(payer),
		Recipient:    common.HexToAddress(recipient),
		Division:     division,
		Rarity:       rarity,
		PlayerID:     playerID,
		ClubID:       big.NewInt(clubID),
		AmountWei:    new(big.Int).Set(amountWei),
		MintPriceWei: new(big.Int),
	}
	if mintPriceWei != nil {
		req.MintPriceWei.Set(mintPriceWei)
	}
	if paymentTx != "" {
		b, err := hexutilDecodeHash(paymentTx)
		if err != nil {
			return MintRequest{}, fmt.Errorf("domain: invalid payment tx %q: %w", paymentTx, err)
		}
		req.PaymentTx = b
	}
	return req, nil
}

func hexutilDecodeHash(s string) (common.Hash, error) {
	h := strings.TrimPrefix(s, "0x")
	if len(h) != 64 {
		return common.Hash{}, fmt.Errorf("expected 32-byte hex hash")
	}
	for _, c := range h {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return common.Hash{}, fmt.Errorf("non-hex character %q", c)
		}
	}
	return common.HexToHash(s), nil
}

// MintStatus tracks the outcome lifecycle. Transitions only move forward;
// fields filled at earlier stages are never retracted.
type MintStatus string

const (
	// MintStatusSubmitted means the mint transaction was sent and is awaiting
	// its receipt.
	MintStatusSubmitted MintStatus = "submitted"
	// MintStatusConfirmed means the receipt arrived and the minted asset id
	// was decoded from the emitted event.
	MintStatusConfirmed MintStatus = "confirmed"
	// MintStatusTransferring means the delivery transfer was submitted.
	MintStatusTransferring MintStatus = "transferring"
	// MintStatusDelivered is terminal success: the asset reached the
	// recipient wallet.
	MintStatusDelivered MintStatus = "delivered"
	// MintStatusOutstanding means the confirmation poll timed out. The mint
	// transaction may still land; the attempt must not be resubmitted and
	// needs operator attention.
	MintStatusOutstanding MintStatus = "outstanding"
	// MintStatusUndelivered means the asset was minted but the delivery
	// transfer failed. Retryable at the transfer stage alone.
	MintStatusUndelivered MintStatus = "undelivered"
	// MintStatusFailed is terminal failure after submission (reverted call,
	// missing event, missing asset id).
	MintStatusFailed MintStatus = "failed"
)

// Terminal reports whether the status is an end state that will never
// progress without operator intervention.
func (s MintStatus) Terminal() bool {
	switch s {
	case MintStatusDelivered, MintStatusFailed:
		return true
	default:
		return false
	}
}

// MintOutcome is the persistent, append-only record of one mint attempt. It
// is created only once a mint transaction reference exists; earlier failures
// (payment mismatch, missing proof) leave no outcome because they have no
// on-chain side effect.
type MintOutcome struct {
	ID         string
	PlayerID   string
	ClubID     string
	Division   string
	Rarity     string
	Payer      string
	Recipient  string
	PaymentTx  string
	MintTx     string
	AssetID    string // decimal token id, empty until the mint event decodes
	TransferTx string
	Status     MintStatus
	Stage      string // stage that produced the current status
	Error      string // failure detail, empty on success
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewMintOutcome creates the initial outcome record for a submitted mint
// transaction.
func NewMintOutcome(req MintRequest, mintTx common.Hash) *MintOutcome {
	now := time.Now().UTC()
	return &MintOutcome{
		ID:        uuid.New().String(),
		PlayerID:  req.PlayerID,
		ClubID:    req.ClubID.String(),
		Division:  req.Division,
		Rarity:    req.Rarity,
		Payer:     req.Payer.Hex(),
		Recipient: req.Recipient.Hex(),
		PaymentTx: req.PaymentTx.Hex(),
		MintTx:    mintTx.Hex(),
		Status:    MintStatusSubmitted,
		Stage:     "mint",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
