package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/pricing"
	"github.com/alanyoungcy/academymint/internal/proof"
)

type fakeMetadata struct {
	mu     sync.Mutex
	rarity map[string]string // player id -> rarity; absent means not found
	calls  int
}

func (f *fakeMetadata) FetchPlayerMetadata(_ context.Context, playerID string) (*proof.PlayerMetadata, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	r, ok := f.rarity[playerID]
	if !ok {
		return nil, fmt.Errorf("metadata: player %s: %w", playerID, domain.ErrNotFound)
	}
	return &proof.PlayerMetadata{ID: playerID, Rarity: r, ClubID: 1808}, nil
}

type fakeIndexer struct {
	tokens     []string
	err        error
	collection string
}

func (f *fakeIndexer) TokenIDs(_ context.Context, wallet, collection string, limit int) ([]string, error) {
	f.collection = collection
	return f.tokens, f.err
}

func testPlayerPolicy(t *testing.T) *pricing.Policy {
	t.Helper()
	p, err := pricing.NewPolicy(pricing.Tables{
		PaymentETH:     map[string]string{"div3": "0.0502"},
		MintETH:        map[string]string{"div3": "0.0411"},
		RarePaymentETH: "0.192",
		RareMintETH:    "0.154",
		ClubDivisions:  map[string]string{"1808": "div3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestListAcademyPlayersAssemblesRoster(t *testing.T) {
	meta := &fakeMetadata{rarity: map[string]string{}}
	for slot := 0; slot < 7; slot++ {
		meta.rarity[fmt.Sprintf("5-1808-%d", slot)] = "Common"
	}
	meta.rarity["5-1808-2"] = "Rare"

	svc := NewPlayerService(meta, nil, testPlayerPolicy(t), "footium-players", slog.Default())

	players, err := svc.ListAcademyPlayers(context.Background(), 1808)
	if err != nil {
		t.Fatalf("ListAcademyPlayers() error: %v", err)
	}
	if len(players) != 7 {
		t.Fatalf("got %d players, want 7", len(players))
	}

	byID := make(map[string]AcademyPlayer, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}

	common := byID["5-1808-0"]
	if common.Division != "div3" || common.PaymentEth != "0.0502" || common.MintPriceEth != "0.0411" {
		t.Fatalf("common slot priced wrong: %+v", common)
	}
	rare := byID["5-1808-2"]
	if rare.Rarity != "Rare" || rare.PaymentEth != "0.192" || rare.MintPriceEth != "0.154" {
		t.Fatalf("rare slot priced wrong: %+v", rare)
	}
}

func TestListAcademyPlayersSkipsSlotsWithoutMetadata(t *testing.T) {
	meta := &fakeMetadata{rarity: map[string]string{
		"5-1808-0": "Common",
		"5-1808-4": "Common",
	}}
	svc := NewPlayerService(meta, nil, testPlayerPolicy(t), "footium-players", slog.Default())

	players, err := svc.ListAcademyPlayers(context.Background(), 1808)
	if err != nil {
		t.Fatalf("ListAcademyPlayers() error: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("got %d players, want 2", len(players))
	}
	if meta.calls != 7 {
		t.Fatalf("metadata fetched %d times, want 7", meta.calls)
	}
}

func TestListAcademyPlayersUnknownClub(t *testing.T) {
	svc := NewPlayerService(&fakeMetadata{}, nil, testPlayerPolicy(t), "footium-players", slog.Default())

	_, err := svc.ListAcademyPlayers(context.Background(), 9999)
	if !errors.Is(err, domain.ErrUnknownDivision) {
		t.Fatalf("err = %v, want ErrUnknownDivision", err)
	}
}

func TestOwnedTokens(t *testing.T) {
	idx := &fakeIndexer{tokens: []string{"101", "202"}}
	svc := NewPlayerService(&fakeMetadata{}, idx, testPlayerPolicy(t), "footium-players", slog.Default())

	tokens, err := svc.OwnedTokens(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("OwnedTokens() error: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "101" {
		t.Fatalf("tokens = %v", tokens)
	}
	if idx.collection != "footium-players" {
		t.Fatalf("collection = %q", idx.collection)
	}
}

func TestOwnedTokensWithoutIndexer(t *testing.T) {
	svc := NewPlayerService(&fakeMetadata{}, nil, testPlayerPolicy(t), "footium-players", slog.Default())
	if _, err := svc.OwnedTokens(context.Background(), "0xabc"); err == nil {
		t.Fatal("OwnedTokens() = nil error, want configuration error")
	}
}
