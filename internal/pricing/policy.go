// Package pricing implements the pure pricing policy: expected payment and
// mint price lookups by division with a fixed rarity override, plus the
// seasonal club-to-division mapping. All amounts are exact wei integers; the
// tables are immutable after construction.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// Tables holds the raw pricing configuration, amounts as decimal ETH
// strings. It is converted once into a Policy at startup.
type Tables struct {
	// PaymentETH maps division tag to the payment amount a user must send.
	PaymentETH map[string]string
	// MintETH maps division tag to the value forwarded to the mint call.
	MintETH map[string]string
	// RarePaymentETH is the payment override for Rare players.
	RarePaymentETH string
	// RareMintETH is the mint-value override for Rare players.
	RareMintETH string
	// ClubDivisions maps a club token id (decimal string) to its division
	// tag for the current season.
	ClubDivisions map[string]string
}

// Policy answers pricing questions for the mint workflow. Pure and
// deterministic; no I/O.
type Policy struct {
	payment       map[string]*big.Int
	mint          map[string]*big.Int
	rarePayment   *big.Int
	rareMint      *big.Int
	clubDivisions map[string]string
}

// NewPolicy converts the configured tables into a Policy, parsing every
// amount into wei. Malformed amounts fail construction rather than
// surfacing later as a zero price.
func NewPolicy(t Tables) (*Policy, error) {
	p := &Policy{
		payment:       make(map[string]*big.Int, len(t.PaymentETH)),
		mint:          make(map[string]*big.Int, len(t.MintETH)),
		clubDivisions: make(map[string]string, len(t.ClubDivisions)),
	}

	var err error
	for div, s := range t.PaymentETH {
		if p.payment[div], err = ParseEther(s); err != nil {
			return nil, fmt.Errorf("pricing: payment table %s: %w", div, err)
		}
	}
	for div, s := range t.MintETH {
		if p.mint[div], err = ParseEther(s); err != nil {
			return nil, fmt.Errorf("pricing: mint table %s: %w", div, err)
		}
	}
	if p.rarePayment, err = ParseEther(t.RarePaymentETH); err != nil {
		return nil, fmt.Errorf("pricing: rare payment override: %w", err)
	}
	if p.rareMint, err = ParseEther(t.RareMintETH); err != nil {
		return nil, fmt.Errorf("pricing: rare mint override: %w", err)
	}
	for club, div := range t.ClubDivisions {
		p.clubDivisions[club] = div
	}
	return p, nil
}

// ExpectedPayment returns the exact wei amount a payer must have sent for the
// given division and rarity. A Rare rarity returns the fixed override and
// ignores the division entirely; otherwise the division is looked up in the
// payment table and an absent tag is ErrUnknownDivision, never zero.
func (p *Policy) ExpectedPayment(division, rarity string) (*big.Int, error) {
	if rarity == domain.RarityRare {
		return new(big.Int).Set(p.rarePayment), nil
	}
	amount, ok := p.payment[division]
	if !ok {
		return nil, fmt.Errorf("pricing: %w: %q", domain.ErrUnknownDivision, division)
	}
	return new(big.Int).Set(amount), nil
}

// MintPrice returns the wei value attached to the privileged mint call. It is
// a separate, smaller table than the payment amounts and is not required to
// equal ExpectedPayment.
func (p *Policy) MintPrice(division, rarity string) (*big.Int, error) {
	if rarity == domain.RarityRare {
		return new(big.Int).Set(p.rareMint), nil
	}
	price, ok := p.mint[division]
	if !ok {
		return nil, fmt.Errorf("pricing: %w: %q", domain.ErrUnknownDivision, division)
	}
	return new(big.Int).Set(price), nil
}

// DivisionForClub returns the season division tag for a club token id
// (decimal string). Used by the event listener to derive the division a
// payment log belongs to.
func (p *Policy) DivisionForClub(clubID string) (string, error) {
	div, ok := p.clubDivisions[clubID]
	if !ok {
		return "", fmt.Errorf("pricing: %w: no division for club %s", domain.ErrUnknownDivision, clubID)
	}
	return div, nil
}
