package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ChainReader reports the ledger head, used as a liveness probe for the RPC
// connection.
type ChainReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	chain  ChainReader
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. chain may be nil; the ledger
// probe is then skipped.
func NewHealthHandler(chain ChainReader, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{chain: chain, logger: logger}
}

// HealthCheck responds with the service status and, when available, the
// current ledger head. A failing RPC connection degrades the status but
// still returns 200; orchestration should not restart the service while a
// mint may be in flight.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.chain != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if head, err := h.chain.LatestBlock(ctx); err != nil {
			resp["status"] = "degraded"
			resp["ledger"] = "unreachable"
		} else {
			resp["ledger_head"] = head
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
