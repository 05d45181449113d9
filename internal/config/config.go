// Package config defines the top-level configuration for the academy mint
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ACADEMYMINT_* environment variables.
type Config struct {
	RPC       RPCConfig       `toml:"rpc"`
	Operator  OperatorConfig  `toml:"operator"`
	Contracts ContractsConfig `toml:"contracts"`
	Pricing   PricingConfig   `toml:"pricing"`
	Proof     ProofConfig     `toml:"proof"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Mint      MintConfig      `toml:"mint"`
	Listener  ListenerConfig  `toml:"listener"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// RPCConfig holds the ledger node endpoints and chain parameters.
type RPCConfig struct {
	HTTPURL string `toml:"http_url"`
	// WSURL enables log subscriptions. Without it the payment listener
	// falls back to periodic log scans.
	WSURL   string `toml:"ws_url"`
	ChainID int64  `toml:"chain_id"`
}

// OperatorConfig holds the custodial signing key credentials.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ContractsConfig holds the on-chain contract addresses and gas limits.
type ContractsConfig struct {
	MintAddress      string `toml:"mint_address"`
	NFTAddress       string `toml:"nft_address"`
	PaymentAddress   string `toml:"payment_address"`
	MintGasLimit     uint64 `toml:"mint_gas_limit"`
	TransferGasLimit uint64 `toml:"transfer_gas_limit"`
}

// PricingConfig holds the per-division price tables and the seasonal
// club-to-division mapping. Amounts are decimal ETH strings; they are parsed
// into exact wei at startup.
type PricingConfig struct {
	PaymentETH     map[string]string `toml:"payment_eth"`
	MintETH        map[string]string `toml:"mint_eth"`
	RarePaymentETH string            `toml:"rare_payment_eth"`
	RareMintETH    string            `toml:"rare_mint_eth"`
	ClubDivisions  map[string]string `toml:"club_divisions"`
}

// ProofConfig holds the eligibility-proof GraphQL endpoint parameters.
type ProofConfig struct {
	GraphQLURL string   `toml:"graphql_url"`
	Timeout    duration `toml:"timeout"`
}

// IndexerConfig holds the NFT indexer API parameters used for owned-token
// listings.
type IndexerConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	Chain      string   `toml:"chain"`
	Collection string   `toml:"collection"`
	Timeout    duration `toml:"timeout"`
}

// MintConfig holds the mint workflow timing parameters.
type MintConfig struct {
	PollInterval           duration `toml:"poll_interval"`
	ConfirmTimeout         duration `toml:"confirm_timeout"`
	TransferPollInterval   duration `toml:"transfer_poll_interval"`
	TransferConfirmTimeout duration `toml:"transfer_confirm_timeout"`
	LockTTL                duration `toml:"lock_ttl"`
}

// ListenerConfig holds the payment listener parameters.
type ListenerConfig struct {
	ReconnectDelay duration `toml:"reconnect_delay"`
	PollInterval   duration `toml:"poll_interval"`
	EventBuffer    int      `toml:"event_buffer"`
	MaxConcurrent  int      `toml:"max_concurrent"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty addr disables
// Redis; mint mutual exclusion is then limited to a single process and API
// rate limiting is off.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the cold-storage archival policy for settled outcomes.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	BatchSize     int      `toml:"batch_size"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		RPC: RPCConfig{
			ChainID: 42161,
		},
		Contracts: ContractsConfig{
			MintGasLimit:     1_000_000,
			TransferGasLimit: 200_000,
		},
		Pricing: PricingConfig{
			PaymentETH:     map[string]string{},
			MintETH:        map[string]string{},
			RarePaymentETH: "0.192",
			RareMintETH:    "0.154",
			ClubDivisions:  map[string]string{},
		},
		Proof: ProofConfig{
			Timeout: duration{10 * time.Second},
		},
		Indexer: IndexerConfig{
			BaseURL:    "https://api.opensea.io",
			Chain:      "arbitrum",
			Collection: "footium-players",
			Timeout:    duration{10 * time.Second},
		},
		Mint: MintConfig{
			PollInterval:           duration{2 * time.Second},
			ConfirmTimeout:         duration{3 * time.Minute},
			TransferPollInterval:   duration{2 * time.Second},
			TransferConfirmTimeout: duration{2 * time.Minute},
			LockTTL:                duration{10 * time.Minute},
		},
		Listener: ListenerConfig{
			ReconnectDelay: duration{5 * time.Second},
			PollInterval:   duration{15 * time.Second},
			EventBuffer:    64,
			MaxConcurrent:  8,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "academymint",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "academymint-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			BatchSize:     500,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"mint_failed", "listener_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"listen": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, listen, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// RPC
	if c.RPC.HTTPURL == "" {
		errs = append(errs, "rpc: http_url must not be empty")
	}
	if c.RPC.ChainID <= 0 {
		errs = append(errs, "rpc: chain_id must be positive")
	}

	// Operator — one credential source must be specified.
	if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
		errs = append(errs, "operator: either private_key or encrypted_key_path must be set")
	}
	if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
		errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
	}

	// Contracts
	if !isHexAddress(c.Contracts.MintAddress) {
		errs = append(errs, fmt.Sprintf("contracts: mint_address %q is not a valid address", c.Contracts.MintAddress))
	}
	if !isHexAddress(c.Contracts.NFTAddress) {
		errs = append(errs, fmt.Sprintf("contracts: nft_address %q is not a valid address", c.Contracts.NFTAddress))
	}
	if !isHexAddress(c.Contracts.PaymentAddress) {
		errs = append(errs, fmt.Sprintf("contracts: payment_address %q is not a valid address", c.Contracts.PaymentAddress))
	}
	if c.Contracts.MintGasLimit == 0 {
		errs = append(errs, "contracts: mint_gas_limit must be > 0")
	}
	if c.Contracts.TransferGasLimit == 0 {
		errs = append(errs, "contracts: transfer_gas_limit must be > 0")
	}

	// Pricing — each table needs the same set of divisions, and every
	// configured club must map to a known division.
	if len(c.Pricing.PaymentETH) == 0 {
		errs = append(errs, "pricing: payment_eth table must not be empty")
	}
	for div := range c.Pricing.PaymentETH {
		if _, ok := c.Pricing.MintETH[div]; !ok {
			errs = append(errs, fmt.Sprintf("pricing: division %q has a payment price but no mint price", div))
		}
	}
	for div := range c.Pricing.MintETH {
		if _, ok := c.Pricing.PaymentETH[div]; !ok {
			errs = append(errs, fmt.Sprintf("pricing: division %q has a mint price but no payment price", div))
		}
	}
	if c.Pricing.RarePaymentETH == "" || c.Pricing.RareMintETH == "" {
		errs = append(errs, "pricing: rare_payment_eth and rare_mint_eth must be set")
	}
	for club, div := range c.Pricing.ClubDivisions {
		if _, ok := c.Pricing.PaymentETH[div]; !ok {
			errs = append(errs, fmt.Sprintf("pricing: club %s maps to unknown division %q", club, div))
		}
	}

	// Proof
	if c.Proof.GraphQLURL == "" {
		errs = append(errs, "proof: graphql_url must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis — optional; validated only when configured.
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — required only when archival is on.
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isHexAddress reports whether s looks like a 0x-prefixed 20-byte hex
// address. The ledger client does the canonical parse; this catches config
// typos at startup.
func isHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return false
	}
	for _, r := range s[2:] {
		ok := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !ok {
			return false
		}
	}
	return true
}
