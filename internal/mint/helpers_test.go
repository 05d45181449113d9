package mint

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/ledger"
	"github.com/alanyoungcy/academymint/internal/pricing"
)

var (
	testOperator    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testPaymentDest = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testPayer       = common.HexToAddress("0x3000000000000000000000000000000000000003")
	testPaymentTx   = common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testMintTx      = common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testTransferTx  = common.HexToHash("0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy(t *testing.T) *pricing.Policy {
	t.Helper()
	p, err := pricing.NewPolicy(pricing.Tables{
		PaymentETH:     map[string]string{"div3": "0.0502", "div6": "0.0123"},
		MintETH:        map[string]string{"div3": "0.0411", "div6": "0.0100"},
		RarePaymentETH: "0.192",
		RareMintETH:    "0.154",
		ClubDivisions:  map[string]string{"1808": "div3"},
	})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p
}

func wei(t *testing.T, eth string) *big.Int {
	t.Helper()
	v, err := pricing.ParseEther(eth)
	if err != nil {
		t.Fatalf("ParseEther(%q): %v", eth, err)
	}
	return v
}

func testRequest(t *testing.T) domain.MintRequest {
	t.Helper()
	req, err := domain.NewMintRequest(
		testPayer.Hex(), testPayer.Hex(), testPaymentTx.Hex(),
		"div3", "Common", "5-1808-4", 1808,
		wei(t, "0.0502"), nil,
	)
	if err != nil {
		t.Fatalf("NewMintRequest: %v", err)
	}
	return req
}

// mintedReceipt builds a successful receipt carrying an AcademyPlayerMinted
// log for the given ids.
func mintedReceipt(t *testing.T, txHash common.Hash, clubID, assetID *big.Int, playerID string, mintPrice *big.Int) *types.Receipt {
	t.Helper()
	ev := ledger.MintABI.Events[ledger.EventAcademyPlayerMinted]
	data, err := ev.Inputs.NonIndexed().Pack(playerID, mintPrice)
	if err != nil {
		t.Fatalf("pack minted event data: %v", err)
	}
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{{
			Topics: []common.Hash{ev.ID, common.BigToHash(clubID), common.BigToHash(assetID)},
			Data:   data,
			TxHash: txHash,
		}},
	}
}

// fakeLedger is an in-memory Ledger double. Zero value is usable; configure
// the fields a test cares about.
type fakeLedger struct {
	mu sync.Mutex

	txs      map[common.Hash]*ledger.TxInfo
	receipts map[common.Hash]*types.Receipt

	mintHash      common.Hash
	mintErr       error
	mintCalls     int
	transferHash  common.Hash
	transferErr   error
	transferCalls int

	owner    common.Address
	ownerErr error
}

func (f *fakeLedger) Receipt(_ context.Context, txHash common.Hash) (*types.Receipt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	return r, ok, nil
}

func (f *fakeLedger) Transaction(_ context.Context, txHash common.Hash) (*ledger.TxInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txHash]
	return tx, ok, nil
}

func (f *fakeLedger) SubmitMint(_ context.Context, _ *big.Int, _ string, _ domain.EligibilityProof, _ *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++
	if f.mintErr != nil {
		return common.Hash{}, f.mintErr
	}
	return f.mintHash, nil
}

func (f *fakeLedger) SubmitTransfer(_ context.Context, _ common.Address, _ *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	if f.transferErr != nil {
		return common.Hash{}, f.transferErr
	}
	return f.transferHash, nil
}

func (f *fakeLedger) OwnerOf(_ context.Context, _ *big.Int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner, f.ownerErr
}

func (f *fakeLedger) OperatorAddress() common.Address { return testOperator }
func (f *fakeLedger) PaymentContract() common.Address { return testPaymentDest }

func (f *fakeLedger) calls() (mints, transfers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mintCalls, f.transferCalls
}

// verifiedLedger returns a fakeLedger pre-loaded with a valid payment for
// testRequest and a confirmed mint receipt.
func verifiedLedger(t *testing.T, assetID *big.Int) *fakeLedger {
	t.Helper()
	dest := testPaymentDest
	return &fakeLedger{
		txs: map[common.Hash]*ledger.TxInfo{
			testPaymentTx: {
				Hash:  testPaymentTx,
				From:  testPayer,
				To:    &dest,
				Value: wei(t, "0.0502"),
			},
		},
		receipts: map[common.Hash]*types.Receipt{
			testMintTx:     mintedReceipt(t, testMintTx, big.NewInt(1808), assetID, "5-1808-4", wei(t, "0.0411")),
			testTransferTx: {Status: types.ReceiptStatusSuccessful},
		},
		mintHash:     testMintTx,
		transferHash: testTransferTx,
		owner:        testOperator,
	}
}

type fakeProofs struct {
	mu    sync.Mutex
	proof domain.EligibilityProof
	err   error
	calls int
}

func (f *fakeProofs) FetchProof(_ context.Context, _ string) (domain.EligibilityProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.proof, nil
}

// memOutcomeStore is a mutex-guarded in-memory OutcomeStore for tests.
type memOutcomeStore struct {
	mu       sync.Mutex
	byID     map[string]*domain.MintOutcome
	byPayTx  map[string]string
	failNext error
}

func newMemOutcomeStore() *memOutcomeStore {
	return &memOutcomeStore{
		byID:    make(map[string]*domain.MintOutcome),
		byPayTx: make(map[string]string),
	}
}

func (s *memOutcomeStore) Create(_ context.Context, o *domain.MintOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	if _, ok := s.byPayTx[o.PaymentTx]; ok {
		return domain.ErrDuplicateRequest
	}
	cp := *o
	s.byID[o.ID] = &cp
	s.byPayTx[o.PaymentTx] = o.ID
	return nil
}

func (s *memOutcomeStore) Update(_ context.Context, o *domain.MintOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *o
	s.byID[o.ID] = &cp
	return nil
}

func (s *memOutcomeStore) GetByID(_ context.Context, id string) (*domain.MintOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memOutcomeStore) GetByPaymentTx(_ context.Context, paymentTx string) (*domain.MintOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPayTx[paymentTx]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *memOutcomeStore) ListTerminalBefore(_ context.Context, before time.Time, limit int) ([]*domain.MintOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.MintOutcome
	for _, o := range s.byID {
		if o.Status.Terminal() && o.UpdatedAt.Before(before) {
			cp := *o
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memOutcomeStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		o, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byID, id)
		delete(s.byPayTx, o.PaymentTx)
		n++
	}
	return n, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	outcomes []*domain.MintOutcome
}

func (p *capturePublisher) PublishOutcome(o *domain.MintOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
}

func (p *capturePublisher) statuses() []domain.MintStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.MintStatus, len(p.outcomes))
	for i, o := range p.outcomes {
		out[i] = o.Status
	}
	return out
}

func fastConfig() (ExecutorConfig, TransferConfig) {
	return ExecutorConfig{PollInterval: time.Millisecond, ConfirmTimeout: 200 * time.Millisecond},
		TransferConfig{PollInterval: time.Millisecond, ConfirmTimeout: 200 * time.Millisecond}
}

func newTestOrchestrator(t *testing.T, l *fakeLedger, proofs *fakeProofs, store domain.OutcomeStore, lockMgr domain.LockManager, pub Publisher) *Orchestrator {
	t.Helper()
	logger := testLogger()
	policy := testPolicy(t)
	execCfg, xferCfg := fastConfig()
	return NewOrchestrator(
		NewVerifier(policy, l, logger),
		proofs,
		NewExecutor(l, policy, execCfg, logger),
		NewTransferExecutor(l, xferCfg, logger),
		store,
		lockMgr,
		pub,
		OrchestratorConfig{LockTTL: time.Minute},
		logger,
	)
}
