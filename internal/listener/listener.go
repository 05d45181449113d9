// Package listener drives event-triggered mints: it watches the payment
// contract for FundsReceived logs and feeds each confirmed payment into the
// mint workflow. Payments are handled concurrently, one worker per event up
// to a configured bound; per-player exclusion is the mint workflow's job.
// Delivery from the ledger is at-least-once across reconnects, so progress
// is tracked with a persisted (block, log index) cursor that only advances
// past an event once it and everything before it have been handled.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/ledger"
	"github.com/alanyoungcy/academymint/internal/pricing"
	"github.com/alanyoungcy/academymint/internal/proof"
)

// cursorName keys the listener's position in the cursor store.
const cursorName = "funds_received"

// noLogYet is the cursor log index for a block in which no log has been
// processed. A real log at index 0 of the cursor block is still picked up.
const noLogYet int64 = -1

// Notification event types emitted by the listener.
const (
	EventMintFailed    = "mint_failed"
	EventListenerError = "listener_error"
)

// LedgerSource is the subset of the ledger client the listener uses.
type LedgerSource interface {
	FilterEvents(ctx context.Context, contract common.Address, contractABI *abi.ABI, event string, fromBlock, toBlock uint64) ([]domain.LedgerEvent, error)
	SubscribeEvent(ctx context.Context, contract common.Address, contractABI *abi.ABI, event string, ch chan<- domain.LedgerEvent) (ethereum.Subscription, error)
	LatestBlock(ctx context.Context) (uint64, error)
	SupportsSubscriptions() bool
	PaymentContract() common.Address
}

// Minter runs the mint workflow for one payment.
type Minter interface {
	Execute(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error)
}

// MetadataFetcher resolves a player's rarity for pricing.
type MetadataFetcher interface {
	FetchPlayerMetadata(ctx context.Context, playerID string) (*proof.PlayerMetadata, error)
}

// Alerter forwards operator notifications. Optional.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the listener parameters.
type Config struct {
	// ReconnectDelay is the pause between subscription attempts after a
	// failure.
	ReconnectDelay time.Duration
	// PollInterval is the log-scan interval when the ledger endpoint has no
	// websocket support and the listener falls back to polling.
	PollInterval time.Duration
	// EventBuffer sizes the decoded-event channel.
	EventBuffer int
	// MaxConcurrent bounds how many payments are handled at once. One slow
	// receipt poll must not stall every payment behind it.
	MaxConcurrent int
}

// pendingEvent tracks one dispatched event for the cursor low-watermark.
type pendingEvent struct {
	block uint64
	index int64
	done  bool
}

// Listener consumes FundsReceived events and mints the paid-for player.
type Listener struct {
	ledger   LedgerSource
	minter   Minter
	metadata MetadataFetcher
	policy   *pricing.Policy
	cursors  domain.CursorStore
	alerter  Alerter
	cfg      Config
	logger   *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	// mu guards the dispatch frontier and the pending watermark list. The
	// frontier is where dedup happens; the persisted cursor trails it,
	// advancing only past fully handled events.
	mu         sync.Mutex
	block      uint64
	logIndex   int64
	haveCursor bool
	pending    []*pendingEvent
}

// New creates a Listener. alerter may be nil.
func New(l LedgerSource, minter Minter, metadata MetadataFetcher, policy *pricing.Policy, cursors domain.CursorStore, alerter Alerter, cfg Config, logger *slog.Logger) *Listener {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Listener{
		ledger:   l,
		minter:   minter,
		metadata: metadata,
		policy:   policy,
		cursors:  cursors,
		alerter:  alerter,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		logger:   logger.With(slog.String("component", "listener")),
	}
}

// Run consumes payment events until ctx is cancelled, reconnecting after
// failures. Returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.loadCursor(ctx); err != nil {
		return err
	}

	for {
		err := l.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.logger.Error("listener stream ended, reconnecting",
				slog.Duration("delay", l.cfg.ReconnectDelay),
				slog.Any("error", err),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.ReconnectDelay):
		}
	}
}

func (l *Listener) loadCursor(ctx context.Context) error {
	block, logIndex, ok, err := l.cursors.Get(ctx, cursorName)
	if err != nil {
		return fmt.Errorf("listener: load cursor: %w", err)
	}
	l.mu.Lock()
	l.block, l.logIndex, l.haveCursor = block, logIndex, ok
	l.mu.Unlock()
	if ok {
		l.logger.Info("resuming from cursor",
			slog.Uint64("block", block),
			slog.Int64("log_index", logIndex),
		)
	}
	return nil
}

// runOnce catches up from the cursor, then consumes live events until the
// stream breaks or ctx ends. It waits for in-flight handlers before
// returning, so a reconnect never races its own workers.
func (l *Listener) runOnce(ctx context.Context) error {
	defer l.wg.Wait()

	if err := l.backfill(ctx); err != nil {
		return err
	}
	if !l.ledger.SupportsSubscriptions() {
		return l.poll(ctx)
	}

	ch := make(chan domain.LedgerEvent, l.cfg.EventBuffer)
	sub, err := l.ledger.SubscribeEvent(ctx, l.ledger.PaymentContract(), &ledger.PaymentABI, ledger.EventFundsReceived, ch)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("listener: subscription broke: %w", err)
		case ev := <-ch:
			l.dispatch(ctx, ev)
		}
	}
}

// backfill scans logs between the cursor and the head so payments made while
// the listener was down are still honored. Without a cursor the listener
// starts at the head; it never mints retroactively on first boot.
func (l *Listener) backfill(ctx context.Context) error {
	head, err := l.ledger.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("listener: head lookup: %w", err)
	}

	l.mu.Lock()
	haveCursor := l.haveCursor
	if !haveCursor {
		l.block, l.logIndex, l.haveCursor = head, noLogYet, true
	}
	from := l.block
	l.mu.Unlock()

	if !haveCursor {
		if err := l.cursors.Put(ctx, cursorName, head, noLogYet); err != nil {
			return fmt.Errorf("listener: init cursor: %w", err)
		}
		return nil
	}

	events, err := l.ledger.FilterEvents(ctx, l.ledger.PaymentContract(), &ledger.PaymentABI, ledger.EventFundsReceived, from, head)
	if err != nil {
		return fmt.Errorf("listener: backfill from block %d: %w", from, err)
	}
	for _, ev := range events {
		l.dispatch(ctx, ev)
	}
	return nil
}

// poll is the no-websocket fallback: a periodic FilterEvents scan from the
// cursor.
func (l *Listener) poll(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.backfill(ctx); err != nil {
				return err
			}
		}
	}
}

// dispatch hands one payment event to a worker. The dedup frontier advances
// immediately so a replayed log is skipped even while its first delivery is
// still being handled; the persisted cursor waits for completion. If ctx
// ends before a worker slot frees up, the event is left for the next run's
// backfill.
func (l *Listener) dispatch(ctx context.Context, ev domain.LedgerEvent) {
	l.mu.Lock()
	if l.seenLocked(ev) {
		l.mu.Unlock()
		return
	}
	l.block, l.logIndex, l.haveCursor = ev.BlockNumber, int64(ev.LogIndex), true
	p := &pendingEvent{block: ev.BlockNumber, index: int64(ev.LogIndex)}
	l.pending = append(l.pending, p)
	l.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() { <-l.sem }()
		l.handle(ctx, ev)
		l.complete(p)
	}()
}

// complete marks an event handled and persists the cursor at the newest
// position every earlier event has also reached. Out-of-order completions
// therefore never move the cursor past an unfinished payment.
func (l *Listener) complete(p *pendingEvent) {
	l.mu.Lock()
	p.done = true
	var last *pendingEvent
	for len(l.pending) > 0 && l.pending[0].done {
		last = l.pending[0]
		l.pending = l.pending[1:]
	}
	l.mu.Unlock()

	if last == nil {
		return
	}

	// Persist with a fresh context so the cursor survives shutdown; the
	// worker's context is usually already cancelled by then.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.cursors.Put(ctx, cursorName, last.block, last.index); err != nil {
		l.logger.Error("failed to persist cursor",
			slog.Uint64("block", last.block),
			slog.Any("error", err),
		)
	}
}

// seenLocked reports whether the event is at or before the dedup frontier.
// Callers must hold l.mu.
func (l *Listener) seenLocked(ev domain.LedgerEvent) bool {
	if !l.haveCursor {
		return false
	}
	if ev.BlockNumber != l.block {
		return ev.BlockNumber < l.block
	}
	return int64(ev.LogIndex) <= l.logIndex
}

// handle processes one payment event. The cursor advances whether or not the
// mint succeeded: failures are recorded and alerted, and replaying a payment
// that deterministically fails would loop forever.
func (l *Listener) handle(ctx context.Context, ev domain.LedgerEvent) {
	logger := l.logger.With(
		slog.String("payment_tx", ev.TxHash.Hex()),
		slog.Uint64("block", ev.BlockNumber),
	)

	payment, err := ledger.ParseFundsReceived(ev)
	if err != nil {
		// A payment log the service cannot interpret must never become a
		// mint, but an operator has to know money arrived unhandled.
		logger.Error("unparseable payment event", slog.Any("error", err))
		l.alert(ctx, EventListenerError, "Unparseable payment event",
			fmt.Sprintf("payment tx %s: %v", ev.TxHash.Hex(), err))
		return
	}

	req, err := l.buildRequest(ctx, payment, ev.TxHash)
	if err != nil {
		logger.Error("payment cannot be turned into a mint request", slog.Any("error", err))
		l.alert(ctx, EventListenerError, "Payment left unminted",
			fmt.Sprintf("payment tx %s from %s: %v", ev.TxHash.Hex(), payment.Payer.Hex(), err))
		return
	}

	outcome, err := l.minter.Execute(ctx, req)
	switch {
	case err == nil:
		logger.Info("payment minted",
			slog.String("player_id", req.PlayerID),
			slog.String("outcome_id", outcome.ID),
		)
	case errors.Is(err, domain.ErrDuplicateRequest):
		// Expected under at-least-once delivery.
		logger.Debug("payment already processed", slog.String("player_id", req.PlayerID))
	default:
		logger.Error("mint failed for payment",
			slog.String("player_id", req.PlayerID),
			slog.Any("error", err),
		)
		l.alert(ctx, EventMintFailed, "Mint failed for confirmed payment",
			fmt.Sprintf("player %s, payment tx %s: %v", req.PlayerID, ev.TxHash.Hex(), err))
	}
}

// buildRequest derives the full mint request from the payment event: the
// division comes from the club's seasonal mapping, the rarity from player
// metadata.
func (l *Listener) buildRequest(ctx context.Context, payment *ledger.FundsReceivedEvent, txHash common.Hash) (domain.MintRequest, error) {
	division, err := l.policy.DivisionForClub(payment.ClubID.String())
	if err != nil {
		return domain.MintRequest{}, err
	}
	meta, err := l.metadata.FetchPlayerMetadata(ctx, payment.PlayerID)
	if err != nil {
		return domain.MintRequest{}, fmt.Errorf("resolve rarity for player %s: %w", payment.PlayerID, err)
	}
	return domain.NewMintRequest(
		payment.Payer.Hex(),
		payment.Recipient.Hex(),
		txHash.Hex(),
		division,
		meta.Rarity,
		payment.PlayerID,
		payment.ClubID.Int64(),
		payment.Amount,
		payment.MintPrice,
	)
}

func (l *Listener) alert(ctx context.Context, event, title, message string) {
	if l.alerter == nil {
		return
	}
	if err := l.alerter.Notify(ctx, event, title, message); err != nil {
		l.logger.Warn("notification failed", slog.Any("error", err))
	}
}
