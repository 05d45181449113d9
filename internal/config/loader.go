package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ACADEMYMINT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ACADEMYMINT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── RPC ──
	setStr(&cfg.RPC.HTTPURL, "ACADEMYMINT_RPC_HTTP_URL")
	setStr(&cfg.RPC.WSURL, "ACADEMYMINT_RPC_WS_URL")
	setInt64(&cfg.RPC.ChainID, "ACADEMYMINT_RPC_CHAIN_ID")

	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "ACADEMYMINT_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "ACADEMYMINT_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "ACADEMYMINT_OPERATOR_KEY_PASSWORD")

	// ── Contracts ──
	setStr(&cfg.Contracts.MintAddress, "ACADEMYMINT_CONTRACTS_MINT_ADDRESS")
	setStr(&cfg.Contracts.NFTAddress, "ACADEMYMINT_CONTRACTS_NFT_ADDRESS")
	setStr(&cfg.Contracts.PaymentAddress, "ACADEMYMINT_CONTRACTS_PAYMENT_ADDRESS")
	setUint64(&cfg.Contracts.MintGasLimit, "ACADEMYMINT_CONTRACTS_MINT_GAS_LIMIT")
	setUint64(&cfg.Contracts.TransferGasLimit, "ACADEMYMINT_CONTRACTS_TRANSFER_GAS_LIMIT")

	// ── Pricing ──
	setStr(&cfg.Pricing.RarePaymentETH, "ACADEMYMINT_PRICING_RARE_PAYMENT_ETH")
	setStr(&cfg.Pricing.RareMintETH, "ACADEMYMINT_PRICING_RARE_MINT_ETH")

	// ── Proof ──
	setStr(&cfg.Proof.GraphQLURL, "ACADEMYMINT_PROOF_GRAPHQL_URL")
	setDuration(&cfg.Proof.Timeout, "ACADEMYMINT_PROOF_TIMEOUT")

	// ── Indexer ──
	setStr(&cfg.Indexer.BaseURL, "ACADEMYMINT_INDEXER_BASE_URL")
	setStr(&cfg.Indexer.APIKey, "ACADEMYMINT_INDEXER_API_KEY")
	setStr(&cfg.Indexer.Chain, "ACADEMYMINT_INDEXER_CHAIN")
	setStr(&cfg.Indexer.Collection, "ACADEMYMINT_INDEXER_COLLECTION")
	setDuration(&cfg.Indexer.Timeout, "ACADEMYMINT_INDEXER_TIMEOUT")

	// ── Mint ──
	setDuration(&cfg.Mint.PollInterval, "ACADEMYMINT_MINT_POLL_INTERVAL")
	setDuration(&cfg.Mint.ConfirmTimeout, "ACADEMYMINT_MINT_CONFIRM_TIMEOUT")
	setDuration(&cfg.Mint.TransferPollInterval, "ACADEMYMINT_MINT_TRANSFER_POLL_INTERVAL")
	setDuration(&cfg.Mint.TransferConfirmTimeout, "ACADEMYMINT_MINT_TRANSFER_CONFIRM_TIMEOUT")
	setDuration(&cfg.Mint.LockTTL, "ACADEMYMINT_MINT_LOCK_TTL")

	// ── Listener ──
	setDuration(&cfg.Listener.ReconnectDelay, "ACADEMYMINT_LISTENER_RECONNECT_DELAY")
	setDuration(&cfg.Listener.PollInterval, "ACADEMYMINT_LISTENER_POLL_INTERVAL")
	setInt(&cfg.Listener.EventBuffer, "ACADEMYMINT_LISTENER_EVENT_BUFFER")
	setInt(&cfg.Listener.MaxConcurrent, "ACADEMYMINT_LISTENER_MAX_CONCURRENT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ACADEMYMINT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ACADEMYMINT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ACADEMYMINT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ACADEMYMINT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ACADEMYMINT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ACADEMYMINT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ACADEMYMINT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ACADEMYMINT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ACADEMYMINT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ACADEMYMINT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ACADEMYMINT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ACADEMYMINT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ACADEMYMINT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ACADEMYMINT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ACADEMYMINT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ACADEMYMINT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ACADEMYMINT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ACADEMYMINT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ACADEMYMINT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ACADEMYMINT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ACADEMYMINT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ACADEMYMINT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ACADEMYMINT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ACADEMYMINT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.BatchSize, "ACADEMYMINT_ARCHIVE_BATCH_SIZE")
	setInt(&cfg.Archive.RetentionDays, "ACADEMYMINT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ACADEMYMINT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ACADEMYMINT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ACADEMYMINT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ACADEMYMINT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ACADEMYMINT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ACADEMYMINT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ACADEMYMINT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ACADEMYMINT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ACADEMYMINT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ACADEMYMINT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ACADEMYMINT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ACADEMYMINT_MODE")
	setStr(&cfg.LogLevel, "ACADEMYMINT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
