// Package service assembles read-model data for the API handlers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/academymint/internal/pricing"
	"github.com/alanyoungcy/academymint/internal/proof"
)

// academySlots is the number of academy players a club fields per season.
const academySlots = 7

// academyGeneration is the generation prefix of current academy player ids.
const academyGeneration = 5

// MetadataSource resolves player metadata from the metadata service.
type MetadataSource interface {
	FetchPlayerMetadata(ctx context.Context, playerID string) (*proof.PlayerMetadata, error)
}

// TokenIndexer lists asset token ids held by a wallet, via an external NFT
// indexer.
type TokenIndexer interface {
	TokenIDs(ctx context.Context, wallet, collection string, limit int) ([]string, error)
}

// AcademyPlayer is the assembled view of one mintable academy player: its
// metadata joined with the pricing the payer will be charged.
type AcademyPlayer struct {
	ID           string `json:"id"`
	ClubID       int64  `json:"club_id"`
	Division     string `json:"division"`
	Rarity       string `json:"rarity"`
	PaymentEth   string `json:"payment_eth"`
	MintPriceEth string `json:"mint_price_eth"`
}

// PlayerService assembles academy player data for a club.
type PlayerService struct {
	metadata   MetadataSource
	indexer    TokenIndexer
	policy     *pricing.Policy
	collection string
	logger     *slog.Logger
}

// NewPlayerService creates a PlayerService. indexer may be nil when no NFT
// indexer is configured; OwnedTokens then reports an error.
func NewPlayerService(metadata MetadataSource, indexer TokenIndexer, policy *pricing.Policy, collection string, logger *slog.Logger) *PlayerService {
	return &PlayerService{
		metadata:   metadata,
		indexer:    indexer,
		policy:     policy,
		collection: collection,
		logger:     logger,
	}
}

// ListAcademyPlayers assembles the club's academy roster: the fixed set of
// player id slots, each joined with its rarity from the metadata service and
// the prices for the club's division. Metadata lookups run concurrently; a
// slot whose metadata is missing is skipped rather than failing the roster.
func (s *PlayerService) ListAcademyPlayers(ctx context.Context, clubID int64) ([]AcademyPlayer, error) {
	division, err := s.policy.DivisionForClub(strconv.FormatInt(clubID, 10))
	if err != nil {
		return nil, err
	}

	players := make([]*AcademyPlayer, academySlots)
	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < academySlots; slot++ {
		g.Go(func() error {
			playerID := fmt.Sprintf("%d-%d-%d", academyGeneration, clubID, slot)
			meta, err := s.metadata.FetchPlayerMetadata(gctx, playerID)
			if err != nil {
				s.logger.DebugContext(gctx, "player_service: no metadata for slot",
					slog.String("player_id", playerID),
					slog.Any("error", err),
				)
				return nil
			}

			payment, err := s.policy.ExpectedPayment(division, meta.Rarity)
			if err != nil {
				return fmt.Errorf("player_service: payment for %s: %w", playerID, err)
			}
			mintPrice, err := s.policy.MintPrice(division, meta.Rarity)
			if err != nil {
				return fmt.Errorf("player_service: mint price for %s: %w", playerID, err)
			}

			players[slot] = &AcademyPlayer{
				ID:           playerID,
				ClubID:       clubID,
				Division:     division,
				Rarity:       meta.Rarity,
				PaymentEth:   pricing.FormatEther(payment),
				MintPriceEth: pricing.FormatEther(mintPrice),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]AcademyPlayer, 0, academySlots)
	for _, p := range players {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// OwnedTokens lists the player asset token ids a wallet holds, via the NFT
// indexer.
func (s *PlayerService) OwnedTokens(ctx context.Context, wallet string) ([]string, error) {
	if s.indexer == nil {
		return nil, fmt.Errorf("player_service: no NFT indexer configured")
	}
	tokens, err := s.indexer.TokenIDs(ctx, wallet, s.collection, 0)
	if err != nil {
		return nil, fmt.Errorf("player_service: owned tokens for %s: %w", wallet, err)
	}
	return tokens, nil
}
