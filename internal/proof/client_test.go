package proof

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/academymint/internal/domain"
)

func proofServer(t *testing.T, handler func(query string, variables map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := map[string]any{"data": handler(req.Query, req.Variables)}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestFetchProof(t *testing.T) {
	srv := proofServer(t, func(query string, vars map[string]any) any {
		if !strings.Contains(query, "academyPlayerMerkleProof") {
			t.Errorf("unexpected query: %s", query)
		}
		if vars["playerId"] != "5-1808-4" {
			t.Errorf("playerId = %v", vars["playerId"])
		}
		return map[string]any{
			"academyPlayerMerkleProof": []string{
				"0x" + strings.Repeat("ab", 32),
				"0x" + strings.Repeat("cd", 32),
			},
		}
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	proof, err := c.FetchProof(context.Background(), "5-1808-4")
	if err != nil {
		t.Fatalf("FetchProof: %v", err)
	}
	if len(proof) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(proof))
	}
	if proof[0][0] != 0xab || proof[1][0] != 0xcd {
		t.Error("proof node bytes not decoded correctly")
	}
}

func TestFetchProof_Absent(t *testing.T) {
	srv := proofServer(t, func(string, map[string]any) any {
		return map[string]any{"academyPlayerMerkleProof": []string{}}
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.FetchProof(context.Background(), "5-1808-4")
	if !errors.Is(err, domain.ErrProofUnavailable) {
		t.Fatalf("expected ErrProofUnavailable, got %v", err)
	}
}

func TestFetchProof_MalformedNode(t *testing.T) {
	srv := proofServer(t, func(string, map[string]any) any {
		return map[string]any{"academyPlayerMerkleProof": []string{"0x1234"}}
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.FetchProof(context.Background(), "5-1808-4")
	if !errors.Is(err, domain.ErrProofUnavailable) {
		t.Fatalf("expected ErrProofUnavailable, got %v", err)
	}
}

func TestFetchProof_NetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	_, err := c.FetchProof(context.Background(), "5-1808-4")
	if !errors.Is(err, domain.ErrProofUnavailable) {
		t.Fatalf("expected ErrProofUnavailable, got %v", err)
	}
}

func TestFetchPlayerMetadata(t *testing.T) {
	srv := proofServer(t, func(query string, vars map[string]any) any {
		return map[string]any{
			"player": map[string]any{
				"id":     "5-1808-4",
				"rarity": "Rare",
				"club":   map[string]any{"id": 1808},
			},
		}
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	meta, err := c.FetchPlayerMetadata(context.Background(), "5-1808-4")
	if err != nil {
		t.Fatalf("FetchPlayerMetadata: %v", err)
	}
	if meta.Rarity != "Rare" || meta.ClubID != 1808 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestFetchPlayerMetadata_Missing(t *testing.T) {
	srv := proofServer(t, func(string, map[string]any) any {
		return map[string]any{"player": nil}
	})
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.FetchPlayerMetadata(context.Background(), "5-9999-0")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
