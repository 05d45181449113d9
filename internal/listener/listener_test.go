package listener

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/ledger"
	"github.com/alanyoungcy/academymint/internal/pricing"
	"github.com/alanyoungcy/academymint/internal/proof"
)

var (
	testPayer     = common.HexToAddress("0x3000000000000000000000000000000000000003")
	testRecipient = common.HexToAddress("0x5000000000000000000000000000000000000005")
	testContract  = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy(t *testing.T) *pricing.Policy {
	t.Helper()
	p, err := pricing.NewPolicy(pricing.Tables{
		PaymentETH:     map[string]string{"div3": "0.0502"},
		MintETH:        map[string]string{"div3": "0.0411"},
		RarePaymentETH: "0.192",
		RareMintETH:    "0.154",
		ClubDivisions:  map[string]string{"1808": "div3"},
	})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p
}

func paymentEvent(t *testing.T, block uint64, logIndex uint, playerID string) domain.LedgerEvent {
	t.Helper()
	amount, err := pricing.ParseEther("0.0502")
	if err != nil {
		t.Fatalf("ParseEther: %v", err)
	}
	mintPrice, err := pricing.ParseEther("0.0411")
	if err != nil {
		t.Fatalf("ParseEther: %v", err)
	}
	return domain.LedgerEvent{
		Name: ledger.EventFundsReceived,
		Args: map[string]any{
			"payer":     testPayer,
			"amount":    amount,
			"mintPrice": mintPrice,
			"clubId":    big.NewInt(1808),
			"playerId":  playerID,
			"recipient": testRecipient,
		},
		Contract:    testContract,
		TxHash:      common.BigToHash(big.NewInt(int64(block)*1000 + int64(logIndex))),
		BlockNumber: block,
		LogIndex:    logIndex,
	}
}

type fakeSource struct {
	head     uint64
	filtered []domain.LedgerEvent
	ws       bool
}

func (f *fakeSource) FilterEvents(_ context.Context, _ common.Address, _ *abi.ABI, _ string, fromBlock, toBlock uint64) ([]domain.LedgerEvent, error) {
	var out []domain.LedgerEvent
	for _, ev := range f.filtered {
		if ev.BlockNumber >= fromBlock && (toBlock == 0 || ev.BlockNumber <= toBlock) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeSource) SubscribeEvent(context.Context, common.Address, *abi.ABI, string, chan<- domain.LedgerEvent) (ethereum.Subscription, error) {
	return nil, errors.New("not used")
}

func (f *fakeSource) LatestBlock(context.Context) (uint64, error) { return f.head, nil }
func (f *fakeSource) SupportsSubscriptions() bool                 { return f.ws }
func (f *fakeSource) PaymentContract() common.Address             { return testContract }

type fakeMinter struct {
	mu   sync.Mutex
	reqs []domain.MintRequest
	err  error
}

func (f *fakeMinter) Execute(_ context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.MintOutcome{ID: "outcome-1", PlayerID: req.PlayerID}, nil
}

func (f *fakeMinter) requests() []domain.MintRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MintRequest(nil), f.reqs...)
}

type fakeMetadata struct {
	rarity string
	err    error
}

func (f *fakeMetadata) FetchPlayerMetadata(_ context.Context, playerID string) (*proof.PlayerMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &proof.PlayerMetadata{ID: playerID, Rarity: f.rarity, ClubID: 1808}, nil
}

type memCursors struct {
	mu    sync.Mutex
	block map[string]uint64
	index map[string]int64
}

func newMemCursors() *memCursors {
	return &memCursors{block: make(map[string]uint64), index: make(map[string]int64)}
}

func (m *memCursors) Get(_ context.Context, name string) (uint64, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.block[name]
	return b, m.index[name], ok, nil
}

func (m *memCursors) Put(_ context.Context, name string, block uint64, logIndex int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block[name] = block
	m.index[name] = logIndex
	return nil
}

type captureAlerter struct {
	mu     sync.Mutex
	events []string
}

func (a *captureAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *captureAlerter) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func newTestListener(t *testing.T, src *fakeSource, minter *fakeMinter, meta *fakeMetadata, cursors *memCursors, alerter Alerter) *Listener {
	t.Helper()
	return New(src, minter, meta, testPolicy(t), cursors, alerter,
		Config{ReconnectDelay: time.Millisecond, PollInterval: time.Millisecond, MaxConcurrent: 1}, testLogger())
}

func TestBackfillMintsPaymentsPastCursor(t *testing.T) {
	src := &fakeSource{
		head: 120,
		filtered: []domain.LedgerEvent{
			paymentEvent(t, 100, 3, "5-1808-1"), // at cursor, already processed
			paymentEvent(t, 100, 4, "5-1808-2"),
			paymentEvent(t, 110, 0, "5-1808-3"),
		},
	}
	minter := &fakeMinter{}
	cursors := newMemCursors()
	if err := cursors.Put(context.Background(), cursorName, 100, 3); err != nil {
		t.Fatal(err)
	}
	l := newTestListener(t, src, minter, &fakeMetadata{rarity: "Common"}, cursors, nil)

	if err := l.loadCursor(context.Background()); err != nil {
		t.Fatalf("loadCursor: %v", err)
	}
	if err := l.backfill(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	l.wg.Wait()

	reqs := minter.requests()
	if len(reqs) != 2 {
		t.Fatalf("minted %d payments, want 2", len(reqs))
	}
	if reqs[0].PlayerID != "5-1808-2" || reqs[1].PlayerID != "5-1808-3" {
		t.Fatalf("wrong players minted: %s, %s", reqs[0].PlayerID, reqs[1].PlayerID)
	}

	block, idx, ok, err := cursors.Get(context.Background(), cursorName)
	if err != nil || !ok {
		t.Fatalf("cursor missing after backfill: ok=%v err=%v", ok, err)
	}
	if block != 110 || idx != 0 {
		t.Fatalf("cursor = (%d, %d), want (110, 0)", block, idx)
	}
}

func TestFirstBootStartsAtHead(t *testing.T) {
	src := &fakeSource{
		head:     500,
		filtered: []domain.LedgerEvent{paymentEvent(t, 400, 0, "5-1808-1")},
	}
	minter := &fakeMinter{}
	cursors := newMemCursors()
	l := newTestListener(t, src, minter, &fakeMetadata{rarity: "Common"}, cursors, nil)

	if err := l.loadCursor(context.Background()); err != nil {
		t.Fatalf("loadCursor: %v", err)
	}
	if err := l.backfill(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if n := len(minter.requests()); n != 0 {
		t.Fatalf("first boot minted %d historical payments, want 0", n)
	}
	block, idx, ok, _ := cursors.Get(context.Background(), cursorName)
	if !ok || block != 500 || idx != noLogYet {
		t.Fatalf("cursor = (%d, %d, ok=%v), want head 500 with no log processed", block, idx, ok)
	}
}

func TestFirstBootStillMintsHeadBlockLog(t *testing.T) {
	src := &fakeSource{head: 500}
	minter := &fakeMinter{}
	cursors := newMemCursors()
	l := newTestListener(t, src, minter, &fakeMetadata{rarity: "Common"}, cursors, nil)

	if err := l.backfill(context.Background()); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	// A payment landing in the head block itself, at log index 0, arrives
	// right after the cursor was initialized. It must still be minted.
	l.dispatch(context.Background(), paymentEvent(t, 500, 0, "5-1808-1"))
	l.wg.Wait()

	reqs := minter.requests()
	if len(reqs) != 1 || reqs[0].PlayerID != "5-1808-1" {
		t.Fatalf("head-block payment not minted: %v", reqs)
	}
}

func TestHandleBuildsFullRequest(t *testing.T) {
	minter := &fakeMinter{}
	l := newTestListener(t, &fakeSource{}, minter, &fakeMetadata{rarity: "Rare"}, newMemCursors(), nil)

	ev := paymentEvent(t, 200, 1, "5-1808-4")
	l.handle(context.Background(), ev)

	reqs := minter.requests()
	if len(reqs) != 1 {
		t.Fatalf("minted %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Division != "div3" {
		t.Fatalf("division = %q, want div3 from club mapping", req.Division)
	}
	if req.Rarity != "Rare" {
		t.Fatalf("rarity = %q, want Rare from metadata", req.Rarity)
	}
	if req.PaymentTx != ev.TxHash {
		t.Fatalf("payment tx = %s, want the event's tx", req.PaymentTx.Hex())
	}
	if req.Payer != testPayer || req.Recipient != testRecipient {
		t.Fatalf("payer/recipient not carried from event")
	}
}

func TestHandleAlertsOnMintFailure(t *testing.T) {
	minter := &fakeMinter{err: domain.ErrPaymentMismatch}
	alerter := &captureAlerter{}
	l := newTestListener(t, &fakeSource{}, minter, &fakeMetadata{rarity: "Common"}, newMemCursors(), alerter)

	l.handle(context.Background(), paymentEvent(t, 200, 1, "5-1808-4"))

	events := alerter.seen()
	if len(events) != 1 || events[0] != EventMintFailed {
		t.Fatalf("alerts = %v, want [%s]", events, EventMintFailed)
	}
}

func TestHandleDuplicateIsSilent(t *testing.T) {
	minter := &fakeMinter{err: domain.ErrDuplicateRequest}
	alerter := &captureAlerter{}
	l := newTestListener(t, &fakeSource{}, minter, &fakeMetadata{rarity: "Common"}, newMemCursors(), alerter)

	l.handle(context.Background(), paymentEvent(t, 200, 1, "5-1808-4"))

	if events := alerter.seen(); len(events) != 0 {
		t.Fatalf("duplicate payment raised alerts: %v", events)
	}
}

func TestHandleUnparseableEventNeverMints(t *testing.T) {
	minter := &fakeMinter{}
	alerter := &captureAlerter{}
	cursors := newMemCursors()
	l := newTestListener(t, &fakeSource{}, minter, &fakeMetadata{rarity: "Common"}, cursors, alerter)

	ev := paymentEvent(t, 200, 1, "5-1808-4")
	delete(ev.Args, "recipient")
	l.dispatch(context.Background(), ev)
	l.wg.Wait()

	if n := len(minter.requests()); n != 0 {
		t.Fatalf("unparseable event produced %d mints, want 0", n)
	}
	events := alerter.seen()
	if len(events) != 1 || events[0] != EventListenerError {
		t.Fatalf("alerts = %v, want [%s]", events, EventListenerError)
	}
	if block, idx, ok, _ := cursors.Get(context.Background(), cursorName); !ok || block != 200 || idx != 1 {
		t.Fatalf("cursor = (%d, %d, ok=%v), want advanced past the bad event", block, idx, ok)
	}
}

func TestHandleUnknownClubAlerts(t *testing.T) {
	minter := &fakeMinter{}
	alerter := &captureAlerter{}
	l := newTestListener(t, &fakeSource{}, minter, &fakeMetadata{rarity: "Common"}, newMemCursors(), alerter)

	ev := paymentEvent(t, 200, 1, "5-9999-4")
	ev.Args["clubId"] = big.NewInt(9999)
	l.handle(context.Background(), ev)

	if n := len(minter.requests()); n != 0 {
		t.Fatalf("unknown club produced %d mints, want 0", n)
	}
	if events := alerter.seen(); len(events) != 1 || events[0] != EventListenerError {
		t.Fatalf("alerts = %v, want [%s]", events, EventListenerError)
	}
}

// stallMinter blocks one player's mint until released, so tests can hold an
// event in flight while later events arrive.
type stallMinter struct {
	fakeMinter
	stall   string
	started chan string
	release chan struct{}
}

func (f *stallMinter) Execute(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	f.started <- req.PlayerID
	if req.PlayerID == f.stall {
		<-f.release
	}
	return f.fakeMinter.Execute(ctx, req)
}

func TestSlowPaymentDoesNotBlockLaterEvents(t *testing.T) {
	minter := &stallMinter{
		stall:   "5-1808-1",
		started: make(chan string, 4),
		release: make(chan struct{}),
	}
	cursors := newMemCursors()
	l := New(&fakeSource{}, minter, &fakeMetadata{rarity: "Common"}, testPolicy(t), cursors, nil,
		Config{ReconnectDelay: time.Millisecond, PollInterval: time.Millisecond, MaxConcurrent: 4}, testLogger())

	ctx := context.Background()
	l.dispatch(ctx, paymentEvent(t, 200, 0, "5-1808-1"))
	l.dispatch(ctx, paymentEvent(t, 200, 1, "5-1808-2"))

	// Both handlers must be running even though the first is stalled.
	for i := 0; i < 2; i++ {
		select {
		case <-minter.started:
		case <-time.After(time.Second):
			t.Fatal("second payment did not start while the first was in flight")
		}
	}

	// Wait for the second payment to finish.
	deadline := time.Now().Add(time.Second)
	for len(minter.requests()) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("second payment never completed")
		}
		time.Sleep(time.Millisecond)
	}

	// The cursor must not move past the still-running first payment.
	if _, _, ok, _ := cursors.Get(ctx, cursorName); ok {
		t.Fatal("cursor advanced past an unfinished payment")
	}

	close(minter.release)
	l.wg.Wait()

	block, idx, ok, _ := cursors.Get(ctx, cursorName)
	if !ok || block != 200 || idx != 1 {
		t.Fatalf("cursor = (%d, %d, ok=%v), want (200, 1) after both completed", block, idx, ok)
	}
}

func TestDispatchSkipsReplayedEvents(t *testing.T) {
	minter := &fakeMinter{}
	l := newTestListener(t, &fakeSource{}, minter, &fakeMetadata{rarity: "Common"}, newMemCursors(), nil)

	ctx := context.Background()
	ev := paymentEvent(t, 200, 1, "5-1808-4")
	l.dispatch(ctx, ev)
	l.dispatch(ctx, ev)
	l.wg.Wait()

	if n := len(minter.requests()); n != 1 {
		t.Fatalf("replayed event minted %d times, want 1", n)
	}
}
