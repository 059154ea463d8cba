package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/pegbot/internal/blob/s3"
	"github.com/alanyoungcy/pegbot/internal/cache/redis"
	"github.com/alanyoungcy/pegbot/internal/config"
	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/notify"
	"github.com/alanyoungcy/pegbot/internal/server/handler"
	"github.com/alanyoungcy/pegbot/internal/service"
	"github.com/alanyoungcy/pegbot/internal/store/postgres"
	"github.com/alanyoungcy/pegbot/internal/store/sqlite"
)

// Dependencies bundles the infrastructure the modes share. Any field may be
// nil when its backend is disabled.
type Dependencies struct {
	Evaluations domain.EvaluationStore
	Executions  domain.ExecutionStore

	Quotes domain.QuoteCache
	Lock   domain.LockManager
	Bus    domain.SignalBus

	Archiver domain.Archiver
	Notifier *notify.Notifier

	// Recorder fans evaluations and executions out to the sinks above.
	Recorder *service.ArbService

	// Checks are pinged by GET /api/health.
	Checks map[string]handler.Pinger
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// needsS3 reports whether the mode uploads archives.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || cfg.Archive.Enabled
}

// Wire constructs the infrastructure from cfg and returns it with a cleanup
// function that releases it in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: map[string]handler.Pinger{}}

	// --- Journal storage ---
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
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
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Evaluations = pg.Evaluations()
		deps.Executions = pg.Executions()
		deps.Checks["postgres"] = pg.Pool()
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return fail("sqlite", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Evaluations = db.Evaluations()
		deps.Executions = db.Executions()
		deps.Checks["sqlite"] = db
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  "pegbot:" + cfg.Chain.ChainID,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		// Quotes outlive a few missed cycles, then expire so a stopped bot
		// does not show stale prices.
		ttl := 10 * cfg.Scheduler.IntervalDuration()
		deps.Quotes = redis.NewQuoteCache(rc, ttl)
		deps.Bus = redis.NewSignalBus(rc, int64(cfg.Redis.StreamMaxLen))
		if cfg.Redis.AccountLock {
			deps.Lock = redis.NewLockManager(rc)
		}
		deps.Checks["redis"] = rc
	}

	// --- S3 archive ---
	if needsS3(cfg) && deps.Evaluations != nil {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(sc),
			s3blob.NewReader(sc),
			deps.Evaluations,
			deps.Executions,
			logger,
		)
		deps.Checks["s3"] = pingFunc(sc.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	svcDeps := service.ArbServiceDeps{
		Evaluations: deps.Evaluations,
		Executions:  deps.Executions,
		Quotes:      deps.Quotes,
		Bus:         deps.Bus,
	}
	if deps.Notifier.Enabled() {
		svcDeps.Notifier = deps.Notifier
	}
	deps.Recorder = service.NewArbService(svcDeps, logger)

	return deps, cleanup, nil
}
