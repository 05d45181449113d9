package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/academymint/internal/blob/s3"
	"github.com/alanyoungcy/academymint/internal/cache/redis"
	"github.com/alanyoungcy/academymint/internal/config"
	"github.com/alanyoungcy/academymint/internal/crypto"
	"github.com/alanyoungcy/academymint/internal/domain"
	"github.com/alanyoungcy/academymint/internal/indexer"
	"github.com/alanyoungcy/academymint/internal/ledger"
	"github.com/alanyoungcy/academymint/internal/notify"
	"github.com/alanyoungcy/academymint/internal/pricing"
	"github.com/alanyoungcy/academymint/internal/proof"
	"github.com/alanyoungcy/academymint/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Workflow components (orchestrator, listener,
// server) are assembled per mode on top of these.
type Dependencies struct {
	Ledger  *ledger.Client
	Policy  *pricing.Policy
	Proofs  *proof.Client
	Indexer *indexer.Client

	// Stores
	OutcomeStore domain.OutcomeStore
	CursorStore  domain.CursorStore

	// Redis-backed coordination; nil when no Redis is configured.
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage; nil unless archival is enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Operator key ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Operator.PrivateKey,
		EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
		KeyPassword:      cfg.Operator.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: operator key: %w", err)
	}

	// --- Ledger client ---
	ledgerClient, err := ledger.New(ctx, ledger.Config{
		HTTPURL:          cfg.RPC.HTTPURL,
		WSURL:            cfg.RPC.WSURL,
		ChainID:          cfg.RPC.ChainID,
		PrivateKeyHex:    keyHex,
		MintContract:     common.HexToAddress(cfg.Contracts.MintAddress),
		NFTContract:      common.HexToAddress(cfg.Contracts.NFTAddress),
		PaymentContract:  common.HexToAddress(cfg.Contracts.PaymentAddress),
		MintGasLimit:     cfg.Contracts.MintGasLimit,
		TransferGasLimit: cfg.Contracts.TransferGasLimit,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	closers = append(closers, ledgerClient.Close)
	deps.Ledger = ledgerClient

	// --- Pricing policy ---
	policy, err := pricing.NewPolicy(pricing.Tables{
		PaymentETH:     cfg.Pricing.PaymentETH,
		MintETH:        cfg.Pricing.MintETH,
		RarePaymentETH: cfg.Pricing.RarePaymentETH,
		RareMintETH:    cfg.Pricing.RareMintETH,
		ClubDivisions:  cfg.Pricing.ClubDivisions,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: pricing: %w", err)
	}
	deps.Policy = policy

	// --- Proof and indexer clients ---
	deps.Proofs = proof.NewClient(cfg.Proof.GraphQLURL, cfg.Proof.Timeout.Duration)
	deps.Indexer = indexer.NewClient(
		cfg.Indexer.BaseURL, cfg.Indexer.APIKey, cfg.Indexer.Chain, cfg.Indexer.Timeout.Duration,
	)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	outcomes := postgres.NewOutcomeStore(pool)
	deps.OutcomeStore = outcomes
	deps.CursorStore = postgres.NewCursorStore(pool)

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage (only when archival is on) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, outcomes, cfg.Archive.BatchSize, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
