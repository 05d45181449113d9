// Package indexer provides a read-only client for the OpenSea v2 API, used
// by the player data-assembly endpoint to list the club NFTs a wallet holds.
// The mint orchestrator never depends on this package.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client queries the marketplace indexer for NFTs owned by a wallet.
type Client struct {
	baseURL    string
	apiKey     string
	chain      string
	httpClient *http.Client
}

// NewClient creates an indexer client. baseURL defaults to the public
// OpenSea API; chain is the chain slug (e.g. "arbitrum").
func NewClient(baseURL, apiKey, chain string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.opensea.io"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		chain:      chain,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// nftsResponse is the subset of the OpenSea account NFTs response we read.
type nftsResponse struct {
	NFTs []struct {
		Identifier string `json:"identifier"`
	} `json:"nfts"`
}

// TokenIDs returns the identifiers of NFTs in the named collection owned by
// the wallet, up to limit (capped at the API maximum of 200).
func (c *Client) TokenIDs(ctx context.Context, wallet, collection string, limit int) ([]string, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	endpoint := fmt.Sprintf("%s/api/v2/chain/%s/account/%s/nfts", c.baseURL, c.chain, wallet)
	q := url.Values{}
	q.Set("collection", collection)
	q.Set("limit", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("indexer: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch nfts for %s: %w", wallet, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("indexer: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer: status %d fetching nfts for %s", resp.StatusCode, wallet)
	}

	var parsed nftsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("indexer: decode nfts response: %w", err)
	}

	ids := make([]string, 0, len(parsed.NFTs))
	for _, nft := range parsed.NFTs {
		if nft.Identifier != "" {
			ids = append(ids, nft.Identifier)
		}
	}
	return ids, nil
}
