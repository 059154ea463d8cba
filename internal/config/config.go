// Package config defines the top-level configuration for pegbot and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PEGBOT_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Wallet    WalletConfig    `toml:"wallet"`
	Anchor    AnchorConfig    `toml:"anchor"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Bots      []BotConfig     `toml:"bots"`
	Storage   StorageConfig   `toml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the LCD endpoint and transaction parameters.
type ChainConfig struct {
	LCDURL          string   `toml:"lcd_url"`
	FCDURL          string   `toml:"fcd_url"`
	ChainID         string   `toml:"chain_id"`
	GasAdjustment   float64  `toml:"gas_adjustment"`
	GasUpdatePeriod duration `toml:"gas_update_period"`
	RequestTimeout  duration `toml:"request_timeout"`
	// ResubmitWindow suppresses rebroadcasting an identical tx while the
	// first one is presumably still waiting for a block.
	ResubmitWindow duration `toml:"resubmit_window"`
}

// WalletConfig holds the signing account. The address is configured, not
// derived from the key.
type WalletConfig struct {
	Address          string `toml:"address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// AnchorConfig holds the idle-capital venue used by vault bots.
type AnchorConfig struct {
	MarketContract  string  `toml:"market_contract"`
	AUSTContract    string  `toml:"aust_contract"`
	MaxDepositRatio float64 `toml:"max_deposit_ratio"`
	MinWithdrawal   uint64  `toml:"min_withdrawal"`
}

// SchedulerConfig holds the polling cadence.
type SchedulerConfig struct {
	Interval         duration `toml:"interval"`
	RecoveryInterval duration `toml:"recovery_interval"`
}

// BotConfig describes one arbitrage bot. Unset numeric fields fall back to
// the defaults in BotDefaults.
type BotConfig struct {
	Name               string  `toml:"name"`
	Enabled            bool    `toml:"enabled"`
	PoolAddress        string  `toml:"pool_address"`
	Quote              string  `toml:"quote"`
	Mode               string  `toml:"mode"`
	ContractAddress    string  `toml:"contract_address"`
	ContractSchema     string  `toml:"contract_schema"`
	TradeAmount        uint64  `toml:"trade_amount"`
	ProfitMargin       float64 `toml:"profit_margin"`
	WithdrawMarginRate float64 `toml:"withdraw_margin_ratio"`
	DepositMarginRate  float64 `toml:"deposit_margin_ratio"`
	// FixedFee defaults to 80000 of the settlement denom.
	FixedFee     string  `toml:"fixed_fee"`
	FeePolicy    string  `toml:"fee_policy"`
	FeeDenom     string  `toml:"fee_denom"`
	MaxSpread    string  `toml:"max_spread"`
	LunaLegRatio float64 `toml:"luna_leg_ratio"`
	OfferBuffer  float64 `toml:"offer_buffer"`
	OfferReserve uint64  `toml:"offer_reserve"`

	// Token pool bots only.
	HubContract string  `toml:"hub_contract"`
	Validator   string  `toml:"validator"`
	SellMargin  float64 `toml:"sell_margin"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	AccountLock  bool     `toml:"account_lock"`
	LockTTL      duration `toml:"lock_ttl"`
	StreamMaxLen int      `toml:"stream_max_len"`
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

// ArchiveConfig controls moving old rows to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Bot modes.
const (
	BotModeDirect   = "direct"
	BotModeContract = "contract"
	// BotModeTokenSwap trades a CW20 token against luna in one pool, selling
	// the held token and buying it back with luna.
	BotModeTokenSwap = "token_swap"
	// BotModeTokenHub mints the token from luna at its hub and sells it into
	// the pool, or buys it in the pool and unbonds it at the hub.
	BotModeTokenHub = "token_hub"
)

// defaultFeeAmount is the fixed fee assumed when fixed_fee is unset.
const defaultFeeAmount = "80000"

// IsTokenPool reports whether the bot trades a CW20 token against luna
// rather than a stable against the market.
func (b BotConfig) IsTokenPool() bool {
	return b.Mode == BotModeTokenSwap || b.Mode == BotModeTokenHub
}

// SettlementDenom is the denom the bot measures profit and pays fees in: the
// quote for stable bots, luna for token pool bots.
func (b BotConfig) SettlementDenom() string {
	if b.IsTokenPool() {
		return "uluna"
	}
	return b.Quote
}

// FixedFeeOrDefault returns fixed_fee, or the default fee in the settlement
// denom when unset.
func (b BotConfig) FixedFeeOrDefault() string {
	if b.FixedFee != "" {
		return b.FixedFee
	}
	return defaultFeeAmount + b.SettlementDenom()
}

// BotDefaults returns the per-bot defaults applied to every [[bots]] entry.
func BotDefaults() BotConfig {
	return BotConfig{
		Enabled:            true,
		Quote:              "uusd",
		Mode:               BotModeDirect,
		ContractSchema:     "v2",
		TradeAmount:        95_000_000,
		ProfitMargin:       0.0015,
		WithdrawMarginRate: 3.0,
		DepositMarginRate:  0.5,
		FeePolicy:          "estimated",
		MaxSpread:          "0.01",
		LunaLegRatio:       0.995,
		OfferBuffer:        0.99,
		OfferReserve:       1_000_000,
		SellMargin:         -0.005,
	}
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			LCDURL:          "https://lcd.terra.dev",
			FCDURL:          "https://fcd.terra.dev",
			ChainID:         "columbus-4",
			GasAdjustment:   1.1,
			GasUpdatePeriod: duration{10 * time.Minute},
			RequestTimeout:  duration{30 * time.Second},
			ResubmitWindow:  duration{12 * time.Second},
		},
		Anchor: AnchorConfig{
			MaxDepositRatio: 0.9,
			MinWithdrawal:   50_000_000,
		},
		Scheduler: SchedulerConfig{
			Interval:         duration{3 * time.Second},
			RecoveryInterval: duration{10 * time.Second},
		},
		Storage: StorageConfig{
			Driver:     "postgres",
			SQLitePath: "data/pegbot.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			AccountLock:  true,
			LockTTL:      duration{time.Minute},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pegbot-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_submitted", "trade_failed", "bot_stopped"},
		},
		Mode:     "bot",
		LogLevel: "info",
	}
}

// GasUpdatePeriodDuration returns the gas-price refresh period.
func (c ChainConfig) GasUpdatePeriodDuration() time.Duration { return c.GasUpdatePeriod.Duration }

// RequestTimeoutDuration returns the LCD request timeout.
func (c ChainConfig) RequestTimeoutDuration() time.Duration { return c.RequestTimeout.Duration }

// ResubmitWindowDuration returns the duplicate-broadcast window.
func (c ChainConfig) ResubmitWindowDuration() time.Duration { return c.ResubmitWindow.Duration }

// IntervalDuration returns the normal sleep between cycles.
func (c SchedulerConfig) IntervalDuration() time.Duration { return c.Interval.Duration }

// RecoveryDuration returns the sleep after a transient failure.
func (c SchedulerConfig) RecoveryDuration() time.Duration { return c.RecoveryInterval.Duration }

// LockTTLDuration returns the account lock TTL.
func (c RedisConfig) LockTTLDuration() time.Duration { return c.LockTTL.Duration }

// IntervalDuration returns the archive interval.
func (c ArchiveConfig) IntervalDuration() time.Duration { return c.Interval.Duration }

// EnabledBots returns the bots with enabled = true.
func (c *Config) EnabledBots() []BotConfig {
	var out []BotConfig
	for _, b := range c.Bots {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

var validModes = map[string]bool{
	"bot": true, "monitor": true, "server": true, "archive": true, "full": true,
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validStorageDrivers = map[string]bool{
	"postgres": true, "sqlite": true, "none": true,
}

// Validate checks the configuration for logical errors and returns a combined
// error describing every problem found. It returns nil when the configuration
// is valid.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: bot, monitor, server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	runsBots := mode == "bot" || mode == "monitor" || mode == "full"

	// Chain
	if runsBots {
		if c.Chain.LCDURL == "" {
			errs = append(errs, "chain: lcd_url must not be empty")
		}
		if c.Chain.ChainID == "" {
			errs = append(errs, "chain: chain_id must not be empty")
		}
		if c.Chain.GasAdjustment < 1 {
			errs = append(errs, "chain: gas_adjustment must be >= 1")
		}
		if c.Chain.GasUpdatePeriod.Duration <= 0 {
			errs = append(errs, "chain: gas_update_period must be > 0")
		}
	}

	// Wallet: trading modes need an address and a key source.
	if runsBots {
		if c.Wallet.Address == "" {
			errs = append(errs, "wallet: address must be set for mode "+mode)
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Scheduler
	if c.Scheduler.Interval.Duration <= 0 {
		errs = append(errs, "scheduler: interval must be > 0")
	}
	if c.Scheduler.RecoveryInterval.Duration <= 0 {
		errs = append(errs, "scheduler: recovery_interval must be > 0")
	}

	// Bots
	enabled := c.EnabledBots()
	if runsBots && len(enabled) == 0 {
		errs = append(errs, "bots: at least one enabled [[bots]] entry is required for mode "+mode)
	}
	names := make(map[string]bool, len(c.Bots))
	usesAnchor := false
	for i, b := range c.Bots {
		prefix := fmt.Sprintf("bots[%d]", i)
		if b.Name == "" {
			errs = append(errs, prefix+": name must not be empty")
		} else if names[b.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate name %q", prefix, b.Name))
		}
		names[b.Name] = true
		if !b.Enabled {
			continue
		}
		errs = append(errs, b.validate(prefix)...)
		if b.Mode == BotModeContract {
			usesAnchor = true
		}
	}
	if runsBots && len(enabled) > 1 && !(c.Redis.Enabled && c.Redis.AccountLock) {
		errs = append(errs, "bots: more than one enabled bot shares the wallet; enable redis.account_lock")
	}

	// Anchor
	if runsBots && usesAnchor {
		if c.Anchor.MarketContract == "" || c.Anchor.AUSTContract == "" {
			errs = append(errs, "anchor: market_contract and aust_contract are required for contract-mode bots")
		}
		if c.Anchor.MaxDepositRatio <= 0 || c.Anchor.MaxDepositRatio >= 1 {
			errs = append(errs, fmt.Sprintf("anchor: max_deposit_ratio must be in (0, 1), got %g", c.Anchor.MaxDepositRatio))
		}
	}

	// Storage
	if !validStorageDrivers[c.Storage.Driver] {
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: postgres, sqlite, none)", c.Storage.Driver))
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		errs = append(errs, "storage: sqlite_path must not be empty for the sqlite driver")
	}
	if c.Storage.Driver == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.AccountLock && c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0 when account_lock is set")
		}
	}

	// Archive
	if c.Archive.Enabled || mode == "archive" {
		if c.Storage.Driver == "none" {
			errs = append(errs, "archive: requires a storage driver")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (b BotConfig) validate(prefix string) []string {
	var errs []string
	if b.PoolAddress == "" {
		errs = append(errs, prefix+": pool_address must not be empty")
	}
	cw20Quote := strings.HasPrefix(b.Quote, "terra1")
	if b.IsTokenPool() {
		if !cw20Quote {
			errs = append(errs, fmt.Sprintf("%s: quote must be a CW20 token address in %s mode", prefix, b.Mode))
		}
	} else if b.Quote == "" || cw20Quote {
		errs = append(errs, prefix+": quote must be a native denom (the market leg cannot swap a CW20 token)")
	}
	switch b.Mode {
	case BotModeDirect, BotModeTokenSwap:
	case BotModeTokenHub:
		if b.HubContract == "" || b.Validator == "" {
			errs = append(errs, prefix+": hub_contract and validator are required in token_hub mode")
		}
	case BotModeContract:
		if b.ContractAddress == "" {
			errs = append(errs, prefix+": contract_address is required in contract mode")
		}
		if b.ContractSchema != "v1" && b.ContractSchema != "v2" {
			errs = append(errs, fmt.Sprintf("%s: contract_schema must be v1 or v2, got %q", prefix, b.ContractSchema))
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown mode %q (valid: direct, contract, token_swap, token_hub)", prefix, b.Mode))
	}
	if b.TradeAmount == 0 {
		errs = append(errs, prefix+": trade_amount must be > 0")
	}
	if b.WithdrawMarginRate < 1 {
		errs = append(errs, prefix+": withdraw_margin_ratio must be >= 1")
	}
	if b.DepositMarginRate < 0 || b.DepositMarginRate > 1 {
		errs = append(errs, prefix+": deposit_margin_ratio must be in [0, 1]")
	}
	if b.FeePolicy != "fixed" && b.FeePolicy != "estimated" {
		errs = append(errs, fmt.Sprintf("%s: fee_policy must be fixed or estimated, got %q", prefix, b.FeePolicy))
	}
	if _, err := decimal.NewFromString(b.MaxSpread); err != nil {
		errs = append(errs, fmt.Sprintf("%s: max_spread %q is not a decimal", prefix, b.MaxSpread))
	}
	if b.LunaLegRatio <= 0 || b.LunaLegRatio > 1 {
		errs = append(errs, prefix+": luna_leg_ratio must be in (0, 1]")
	}
	if b.OfferBuffer <= 0 || b.OfferBuffer > 1 {
		errs = append(errs, prefix+": offer_buffer must be in (0, 1]")
	}
	if b.SellMargin <= -1 {
		errs = append(errs, prefix+": sell_margin must be > -1")
	}

	// Fees are netted against received amounts, so they must share a denom.
	settle := b.SettlementDenom()
	fee := b.FixedFeeOrDefault()
	if denom, ok := coinDenom(fee); !ok {
		errs = append(errs, fmt.Sprintf("%s: fixed_fee %q must look like 80000uusd", prefix, fee))
	} else if settle != "" && denom != settle {
		errs = append(errs, fmt.Sprintf("%s: fixed_fee %q must be in the settlement denom %s", prefix, fee, settle))
	}
	if b.FeeDenom != "" && b.FeeDenom != settle {
		errs = append(errs, fmt.Sprintf("%s: fee_denom %q must equal the settlement denom %s", prefix, b.FeeDenom, settle))
	}
	return errs
}

// coinDenom splits an amount-denom string like 80000uusd and returns the
// denom.
func coinDenom(s string) (string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return "", false
	}
	return s[i:], true
}
