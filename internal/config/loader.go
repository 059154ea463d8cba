package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PEGBOT_* environment variable overrides, and
// returns the final Config. Every [[bots]] entry starts from BotDefaults. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Decode bots a second time so fields absent from the file keep their
	// per-bot defaults instead of Go zero values.
	var raw struct {
		Bots []toml.Primitive `toml:"bots"`
	}
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, err
	}
	cfg.Bots = make([]BotConfig, 0, len(raw.Bots))
	for i, p := range raw.Bots {
		b := BotDefaults()
		if err := md.PrimitiveDecode(p, &b); err != nil {
			return nil, fmt.Errorf("config: bots[%d]: %w", i, err)
		}
		b.FixedFee = b.FixedFeeOrDefault()
		cfg.Bots = append(cfg.Bots, b)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PEGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.LCDURL, "PEGBOT_CHAIN_LCD_URL")
	setStr(&cfg.Chain.FCDURL, "PEGBOT_CHAIN_FCD_URL")
	setStr(&cfg.Chain.ChainID, "PEGBOT_CHAIN_CHAIN_ID")
	setFloat64(&cfg.Chain.GasAdjustment, "PEGBOT_CHAIN_GAS_ADJUSTMENT")
	setDuration(&cfg.Chain.GasUpdatePeriod, "PEGBOT_CHAIN_GAS_UPDATE_PERIOD")
	setDuration(&cfg.Chain.RequestTimeout, "PEGBOT_CHAIN_REQUEST_TIMEOUT")
	setDuration(&cfg.Chain.ResubmitWindow, "PEGBOT_CHAIN_RESUBMIT_WINDOW")

	// ── Wallet ──
	setStr(&cfg.Wallet.Address, "PEGBOT_WALLET_ADDRESS")
	setStr(&cfg.Wallet.PrivateKey, "PEGBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PEGBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PEGBOT_WALLET_KEY_PASSWORD")

	// ── Anchor ──
	setStr(&cfg.Anchor.MarketContract, "PEGBOT_ANCHOR_MARKET_CONTRACT")
	setStr(&cfg.Anchor.AUSTContract, "PEGBOT_ANCHOR_AUST_CONTRACT")
	setFloat64(&cfg.Anchor.MaxDepositRatio, "PEGBOT_ANCHOR_MAX_DEPOSIT_RATIO")
	setUint64(&cfg.Anchor.MinWithdrawal, "PEGBOT_ANCHOR_MIN_WITHDRAWAL")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.Interval, "PEGBOT_SCHEDULER_INTERVAL")
	setDuration(&cfg.Scheduler.RecoveryInterval, "PEGBOT_SCHEDULER_RECOVERY_INTERVAL")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "PEGBOT_STORAGE_DRIVER")
	setStr(&cfg.Storage.SQLitePath, "PEGBOT_STORAGE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PEGBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "PEGBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PEGBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PEGBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PEGBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PEGBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PEGBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PEGBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PEGBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PEGBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PEGBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PEGBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PEGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PEGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PEGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PEGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PEGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PEGBOT_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.AccountLock, "PEGBOT_REDIS_ACCOUNT_LOCK")
	setDuration(&cfg.Redis.LockTTL, "PEGBOT_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PEGBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PEGBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PEGBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PEGBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PEGBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PEGBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PEGBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PEGBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PEGBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PEGBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PEGBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PEGBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PEGBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PEGBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PEGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PEGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PEGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PEGBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PEGBOT_MODE")
	setStr(&cfg.LogLevel, "PEGBOT_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
