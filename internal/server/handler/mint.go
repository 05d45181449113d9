package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// MintService defines the methods the mint handler requires from the
// workflow layer.
type MintService interface {
	Execute(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error)
	RetryTransfer(ctx context.Context, outcomeID string) (*domain.MintOutcome, error)
}

// OutcomeReader provides read access to recorded mint outcomes.
type OutcomeReader interface {
	GetByID(ctx context.Context, id string) (*domain.MintOutcome, error)
	GetByPaymentTx(ctx context.Context, paymentTx string) (*domain.MintOutcome, error)
}

// MintHandler serves the mint workflow HTTP endpoints.
type MintHandler struct {
	mints    MintService
	outcomes OutcomeReader
	logger   *slog.Logger
}

// NewMintHandler creates a MintHandler.
func NewMintHandler(mints MintService, outcomes OutcomeReader, logger *slog.Logger) *MintHandler {
	return &MintHandler{
		mints:    mints,
		outcomes: outcomes,
		logger:   logger,
	}
}

// mintRequestBody is the JSON payload for POST /api/mint. Amounts are decimal
// wei strings; JSON numbers cannot carry 18-decimal token amounts safely.
type mintRequestBody struct {
	Payer        string `json:"payer"`
	Recipient    string `json:"recipient"`
	PaymentTx    string `json:"payment_tx"`
	Division     string `json:"division"`
	Rarity       string `json:"rarity"`
	PlayerID     string `json:"player_id"`
	ClubID       int64  `json:"club_id"`
	AmountWei    string `json:"amount_wei"`
	MintPriceWei string `json:"mint_price_wei"`
}

// mintResponse wraps an outcome, with the failure detail when the workflow
// ended short of delivery.
type mintResponse struct {
	Outcome *domain.MintOutcome `json:"outcome"`
	Error   string              `json:"error,omitempty"`
}

// Mint runs the full mint workflow for a claimed payment.
// POST /api/mint
func (h *MintHandler) Mint(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "mint")

	var body mintRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.Recipient == "" {
		// The payer receives the asset unless a distinct recipient is named.
		body.Recipient = body.Payer
	}

	amount, ok := parseWei(body.AmountWei)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount_wei must be a decimal wei string")
		return
	}
	var mintPrice *big.Int
	if body.MintPriceWei != "" {
		if mintPrice, ok = parseWei(body.MintPriceWei); !ok {
			writeError(w, http.StatusBadRequest, "mint_price_wei must be a decimal wei string")
			return
		}
	}

	req, err := domain.NewMintRequest(
		body.Payer, body.Recipient, body.PaymentTx,
		body.Division, body.Rarity, body.PlayerID, body.ClubID,
		amount, mintPrice,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.mints.Execute(r.Context(), req)
	if err != nil {
		log.Warn("mint request failed",
			slog.String("player_id", req.PlayerID),
			slog.Any("error", err),
		)
		writeJSON(w, statusForError(err), mintResponse{Outcome: outcome, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, mintResponse{Outcome: outcome})
}

// GetOutcome returns one recorded outcome.
// GET /api/mints/{id}
func (h *MintHandler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	outcome, err := h.outcomes.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "outcome not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load outcome")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// FindOutcome looks up the outcome recorded for a payment transaction.
// GET /api/mints?payment_tx=0x...
func (h *MintHandler) FindOutcome(w http.ResponseWriter, r *http.Request) {
	paymentTx := r.URL.Query().Get("payment_tx")
	if paymentTx == "" {
		writeError(w, http.StatusBadRequest, "payment_tx query parameter required")
		return
	}
	outcome, err := h.outcomes.GetByPaymentTx(r.Context(), paymentTx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no outcome for payment transaction")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load outcome")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// RetryTransfer re-runs the delivery stage of an undelivered outcome.
// POST /api/mints/{id}/retry-transfer
func (h *MintHandler) RetryTransfer(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "retry_transfer")
	id := pathParam(r, "id")

	outcome, err := h.mints.RetryTransfer(r.Context(), id)
	if err != nil {
		log.Warn("transfer retry failed",
			slog.String("outcome_id", id),
			slog.Any("error", err),
		)
		writeJSON(w, statusForError(err), mintResponse{Outcome: outcome, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, mintResponse{Outcome: outcome})
}

// parseWei parses a decimal wei string into a positive big integer.
func parseWei(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}
