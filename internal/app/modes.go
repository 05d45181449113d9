package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/academymint/internal/listener"
	"github.com/alanyoungcy/academymint/internal/mint"
	"github.com/alanyoungcy/academymint/internal/server"
	"github.com/alanyoungcy/academymint/internal/server/handler"
	"github.com/alanyoungcy/academymint/internal/server/ws"
	"github.com/alanyoungcy/academymint/internal/service"
)

// ServeMode runs the HTTP/WebSocket API without the payment listener. Mints
// are triggered only through the REST endpoint.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(g, ctx)
	orch := a.buildOrchestrator(deps, hub)
	a.startHTTPServer(ctx, g, deps, orch, hub)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// ListenMode runs only the payment event listener; every mint is triggered
// by an on-chain FundsReceived event. No HTTP surface is exposed.
func (a *App) ListenMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting listen mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := a.buildOrchestrator(deps, nil)
	a.startListener(ctx, g, deps, orch)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the API and the payment listener in one process. Both paths
// share the orchestrator, so the duplicate and per-player guards hold across
// REST-triggered and event-triggered mints.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(g, ctx)
	orch := a.buildOrchestrator(deps, hub)
	a.startHTTPServer(ctx, g, deps, orch, hub)
	a.startListener(ctx, g, deps, orch)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// newHub creates the WebSocket hub and starts its broadcast loop.
func (a *App) newHub(g *errgroup.Group, ctx context.Context) *ws.Hub {
	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	return hub
}

// buildOrchestrator assembles the mint workflow. publisher may be nil when no
// WebSocket hub is running.
func (a *App) buildOrchestrator(deps *Dependencies, publisher mint.Publisher) *mint.Orchestrator {
	verifier := mint.NewVerifier(deps.Policy, deps.Ledger, a.logger)
	executor := mint.NewExecutor(deps.Ledger, deps.Policy, mint.ExecutorConfig{
		PollInterval:   a.cfg.Mint.PollInterval.Duration,
		ConfirmTimeout: a.cfg.Mint.ConfirmTimeout.Duration,
	}, a.logger)
	transfers := mint.NewTransferExecutor(deps.Ledger, mint.TransferConfig{
		PollInterval:   a.cfg.Mint.TransferPollInterval.Duration,
		ConfirmTimeout: a.cfg.Mint.TransferConfirmTimeout.Duration,
	}, a.logger)

	return mint.NewOrchestrator(
		verifier,
		deps.Proofs,
		executor,
		transfers,
		deps.OutcomeStore,
		deps.LockManager,
		publisher,
		mint.OrchestratorConfig{LockTTL: a.cfg.Mint.LockTTL.Duration},
		a.logger,
	)
}

// startHTTPServer registers all handlers and runs the HTTP server until the
// context is cancelled, then shuts it down gracefully.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	orch *mint.Orchestrator,
	hub *ws.Hub,
) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by configuration")
		return
	}

	playerSvc := service.NewPlayerService(
		deps.Proofs, deps.Indexer, deps.Policy, a.cfg.Indexer.Collection, a.logger,
	)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Ledger, a.logger),
		Mints:   handler.NewMintHandler(orch, deps.OutcomeStore, a.logger),
		Players: handler.NewPlayerHandler(playerSvc, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startListener runs the FundsReceived listener.
func (a *App) startListener(ctx context.Context, g *errgroup.Group, deps *Dependencies, orch *mint.Orchestrator) {
	lst := listener.New(
		deps.Ledger,
		orch,
		deps.Proofs,
		deps.Policy,
		deps.CursorStore,
		deps.Notifier,
		listener.Config{
			ReconnectDelay: a.cfg.Listener.ReconnectDelay.Duration,
			PollInterval:   a.cfg.Listener.PollInterval.Duration,
			EventBuffer:    a.cfg.Listener.EventBuffer,
			MaxConcurrent:  a.cfg.Listener.MaxConcurrent,
		},
		a.logger,
	)
	g.Go(func() error {
		return lst.Run(ctx)
	})
}

// startArchiveLoop periodically moves settled outcomes older than the
// retention window into object storage. No-op when archival is disabled.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				before := time.Now().UTC().Add(-retention)
				n, err := deps.Archiver.ArchiveOutcomes(ctx, before)
				if err != nil {
					a.logger.WarnContext(ctx, "outcome archival failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if n > 0 {
					a.logger.InfoContext(ctx, "archived settled outcomes",
						slog.Int64("count", n),
						slog.Time("before", before),
					)
				}
			}
		}
	})
}
