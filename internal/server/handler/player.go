package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/service"
)

// PlayerDataService defines the methods the player handler requires.
type PlayerDataService interface {
	ListAcademyPlayers(ctx context.Context, clubID int64) ([]service.AcademyPlayer, error)
	OwnedTokens(ctx context.Context, wallet string) ([]string, error)
}

// PlayerHandler serves academy player data endpoints.
type PlayerHandler struct {
	players PlayerDataService
	logger  *slog.Logger
}

// NewPlayerHandler creates a PlayerHandler.
func NewPlayerHandler(players PlayerDataService, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{players: players, logger: logger}
}

// ListPlayers returns the assembled academy roster of a club.
// GET /api/players?club_id=1808
func (h *PlayerHandler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "list_players")

	clubID, err := strconv.ParseInt(r.URL.Query().Get("club_id"), 10, 64)
	if err != nil || clubID <= 0 {
		writeError(w, http.StatusBadRequest, "club_id query parameter must be a positive integer")
		return
	}

	players, err := h.players.ListAcademyPlayers(r.Context(), clubID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDivision) {
			writeError(w, http.StatusNotFound, "club has no division mapping this season")
			return
		}
		log.Error("roster assembly failed",
			slog.Int64("club_id", clubID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadGateway, "failed to assemble academy roster")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

// ListOwnedTokens returns the player asset token ids held by a wallet.
// GET /api/players/owned?wallet=0x...
func (h *PlayerHandler) ListOwnedTokens(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "list_owned_tokens")

	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}

	tokens, err := h.players.OwnedTokens(r.Context(), wallet)
	if err != nil {
		log.Error("owned token lookup failed",
			slog.String("wallet", wallet),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadGateway, "failed to list owned tokens")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}
