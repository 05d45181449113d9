// Package proof fetches cryptographic eligibility proofs and player metadata
// from the Footium GraphQL API. Proofs are fetched fresh for every mint
// attempt and never cached; they rotate upstream.
package proof

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// Client is a GraphQL client for the metadata service.
type Client struct {
	graphqlURL string
	httpClient *http.Client
}

// NewClient creates a proof client for the given GraphQL endpoint, e.g.
// "https://live.api.footium.club/api/graphql".
func NewClient(graphqlURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchProof returns the Merkle inclusion proof authorizing the mint of one
// academy player. Any failure -- network error, malformed response, or an
// absent proof -- is ErrProofUnavailable: the mint must never proceed
// without a proof the contract will accept.
func (c *Client) FetchProof(ctx context.Context, playerID string) (domain.EligibilityProof, error) {
	const query = `
		query GetMerkleProof($playerId: String!) {
			academyPlayerMerkleProof(playerId: $playerId)
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{"playerId": playerID})
	if err != nil {
		return nil, fmt.Errorf("proof: %w for player %s: %v", domain.ErrProofUnavailable, playerID, err)
	}

	var result struct {
		AcademyPlayerMerkleProof []string `json:"academyPlayerMerkleProof"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("proof: %w for player %s: decode: %v", domain.ErrProofUnavailable, playerID, err)
	}
	if len(result.AcademyPlayerMerkleProof) == 0 {
		return nil, fmt.Errorf("proof: %w for player %s: empty proof", domain.ErrProofUnavailable, playerID)
	}

	out := make(domain.EligibilityProof, 0, len(result.AcademyPlayerMerkleProof))
	for i, h := range result.AcademyPlayerMerkleProof {
		node, err := parseProofHash(h)
		if err != nil {
			return nil, fmt.Errorf("proof: %w for player %s: node %d: %v", domain.ErrProofUnavailable, playerID, i, err)
		}
		out = append(out, node)
	}
	return out, nil
}

// PlayerMetadata is the subset of player metadata the mint service needs.
type PlayerMetadata struct {
	ID     string
	Rarity string
	ClubID int64
}

// FetchPlayerMetadata returns the rarity and club of an academy player. Used
// by the event listener to derive a rarity for pricing, and by the player
// data-assembly endpoint.
func (c *Client) FetchPlayerMetadata(ctx context.Context, playerID string) (*PlayerMetadata, error) {
	const query = `
		query getPlayerMetadata($where: PlayerWhereUniqueInput!) {
			player(where: $where) {
				id
				rarity
				club {
					id
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{
		"where": map[string]any{"id": playerID},
	})
	if err != nil {
		return nil, fmt.Errorf("proof: fetch metadata for %s: %w", playerID, err)
	}

	var result struct {
		Player *struct {
			ID     string `json:"id"`
			Rarity string `json:"rarity"`
			Club   *struct {
				ID int64 `json:"id"`
			} `json:"club"`
		} `json:"player"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("proof: decode metadata for %s: %w", playerID, err)
	}
	if result.Player == nil {
		return nil, fmt.Errorf("proof: player %s: %w", playerID, domain.ErrNotFound)
	}

	meta := &PlayerMetadata{
		ID:     result.Player.ID,
		Rarity: result.Player.Rarity,
	}
	if result.Player.Club != nil {
		meta.ClubID = result.Player.Club.ID
	}
	return meta, nil
}

// doQuery executes one GraphQL request and returns the raw data payload.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	return envelope.Data, nil
}

func parseProofHash(s string) ([32]byte, error) {
	var node [32]byte
	h := strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(h)
	if err != nil {
		return node, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != 32 {
		return node, fmt.Errorf("expected 32-byte hash, got %d bytes", len(raw))
	}
	copy(node[:], raw)
	return node, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
