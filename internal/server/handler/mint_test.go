package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/academymint/internal/domain"
)

type fakeMintService struct {
	outcome *domain.MintOutcome
	err     error
	lastReq *domain.MintRequest
}

func (f *fakeMintService) Execute(_ context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	f.lastReq = &req
	return f.outcome, f.err
}

func (f *fakeMintService) RetryTransfer(_ context.Context, _ string) (*domain.MintOutcome, error) {
	return f.outcome, f.err
}

type fakeOutcomeReader struct {
	outcome *domain.MintOutcome
	err     error
}

func (f *fakeOutcomeReader) GetByID(context.Context, string) (*domain.MintOutcome, error) {
	return f.outcome, f.err
}

func (f *fakeOutcomeReader) GetByPaymentTx(context.Context, string) (*domain.MintOutcome, error) {
	return f.outcome, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validMintBody = `{
	"payer": "0x3000000000000000000000000000000000000003",
	"payment_tx": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	"division": "div3",
	"rarity": "Common",
	"player_id": "5-1808-4",
	"club_id": 1808,
	"amount_wei": "50200000000000000"
}`

func TestMintReturnsOutcome(t *testing.T) {
	svc := &fakeMintService{outcome: &domain.MintOutcome{ID: "o1", Status: domain.MintStatusDelivered}}
	h := NewMintHandler(svc, &fakeOutcomeReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/mint", strings.NewReader(validMintBody))
	rec := httptest.NewRecorder()
	h.Mint(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp mintResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Outcome == nil || resp.Outcome.ID != "o1" {
		t.Fatalf("response = %+v", resp)
	}
	if svc.lastReq == nil || svc.lastReq.PlayerID != "5-1808-4" {
		t.Fatalf("service req = %+v", svc.lastReq)
	}
	// Recipient defaults to the payer when omitted.
	if svc.lastReq.Recipient != svc.lastReq.Payer {
		t.Fatalf("recipient = %s, want payer", svc.lastReq.Recipient.Hex())
	}
}

func TestMintRejectsBadAmount(t *testing.T) {
	h := NewMintHandler(&fakeMintService{}, &fakeOutcomeReader{}, discardLogger())

	body := strings.Replace(validMintBody, `"50200000000000000"`, `"0.0502"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/mint", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Mint(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMintStatusByErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"payment mismatch", domain.NewStageError(domain.StageVerify, "p", domain.ErrPaymentMismatch), http.StatusBadRequest},
		{"unknown division", domain.ErrUnknownDivision, http.StatusBadRequest},
		{"duplicate", domain.ErrDuplicateRequest, http.StatusConflict},
		{"in flight", domain.ErrMintInFlight, http.StatusConflict},
		{"proof unavailable", domain.NewStageError(domain.StageProof, "p", domain.ErrProofUnavailable), http.StatusBadRequest},
		{"timed out", domain.NewStageError(domain.StageMint, "p", domain.ErrMintTimedOut), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMintHandler(&fakeMintService{err: tc.err}, &fakeOutcomeReader{}, discardLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/mint", strings.NewReader(validMintBody))
			rec := httptest.NewRecorder()
			h.Mint(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestGetOutcomeNotFound(t *testing.T) {
	h := NewMintHandler(&fakeMintService{}, &fakeOutcomeReader{err: domain.ErrNotFound}, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/mints/{id}", h.GetOutcome)

	req := httptest.NewRequest(http.MethodGet, "/api/mints/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFindOutcomeRequiresPaymentTx(t *testing.T) {
	h := NewMintHandler(&fakeMintService{}, &fakeOutcomeReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/mints", nil)
	rec := httptest.NewRecorder()
	h.FindOutcome(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFindOutcomeByPaymentTx(t *testing.T) {
	reader := &fakeOutcomeReader{outcome: &domain.MintOutcome{ID: "o2", Status: domain.MintStatusOutstanding}}
	h := NewMintHandler(&fakeMintService{}, reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/mints?payment_tx=0xaa", nil)
	rec := httptest.NewRecorder()
	h.FindOutcome(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got domain.MintOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "o2" {
		t.Fatalf("outcome id = %q, want o2", got.ID)
	}
}
