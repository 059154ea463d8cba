package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pegbot/internal/scheduler"
	"github.com/alanyoungcy/pegbot/internal/server"
	"github.com/alanyoungcy/pegbot/internal/server/handler"
	"github.com/alanyoungcy/pegbot/internal/server/ws"
)

// BotMode runs every enabled bot in its own polling loop, plus the API
// server and the periodic archiver when enabled. dryRun is monitor mode:
// trades are evaluated and priced but never broadcast.
func (a *App) BotMode(ctx context.Context, deps *Dependencies, dryRun bool) error {
	a.logger.InfoContext(ctx, "starting bot mode", slog.Bool("dry_run", dryRun))

	f, err := a.buildFleet(ctx, deps, dryRun)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startBots(ctx, g, deps, f)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, f)
	}
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	}
	return g.Wait()
}

// ServerMode serves the API over the journal and quote cache without
// running any bot.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the bots, the API server and the periodic archiver
// regardless of their enabled flags.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	f, err := a.buildFleet(ctx, deps, false)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startBots(ctx, g, deps, f)
	a.startHTTPServer(ctx, g, deps, f)
	if deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	} else {
		a.logger.WarnContext(ctx, "archiver not configured; journal rows are kept indefinitely")
	}
	return g.Wait()
}

// ArchiveOnce moves rows older than the retention window to object storage
// and returns.
func (a *App) ArchiveOnce(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("app: archive: no journal storage or object store configured")
	}
	return a.archive(ctx, deps)
}

// startBots runs one scheduler loop per bot. A loop that stops on a fatal
// error alerts the operator and takes the whole process down with it.
func (a *App) startBots(ctx context.Context, g *errgroup.Group, deps *Dependencies, f *fleet) {
	interval := a.cfg.Scheduler.IntervalDuration()
	recovery := a.cfg.Scheduler.RecoveryDuration()
	for _, b := range f.list() {
		loop := scheduler.New(b, interval, recovery, a.logger)
		g.Go(func() error {
			err := loop.Run(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return err
			}
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			deps.Recorder.BotStopped(stopCtx, b.Name(), err)
			return err
		})
	}
}

// startHTTPServer adds the API server, and the WebSocket hub when a signal
// bus exists, to g. f is nil in server mode.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, f *fleet) {
	var (
		stats handler.StatsSource
		names []string
	)
	if f != nil {
		stats, names = f, f.Names()
	} else {
		for _, b := range a.cfg.EnabledBots() {
			names = append(names, b.Name)
		}
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		var status ws.StatusSource
		if f != nil {
			status = f
		}
		hub = ws.NewHub(deps.Bus, status, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: ws hub: %w", err)
			}
			return nil
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks),
		Status:  handler.NewStatusHandler(a.cfg.Mode, a.startedAt, stats),
		Journal: handler.NewJournalHandler(deps.Evaluations, deps.Executions, deps.Quotes, names, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// archiveLoop archives once per archive.interval. Failures are logged and
// retried on the next tick.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.IntervalDuration())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.archive(ctx, deps); err != nil {
				a.logger.WarnContext(ctx, "archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *App) archive(ctx context.Context, deps *Dependencies) error {
	before := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	evals, err := deps.Archiver.ArchiveEvaluations(ctx, before)
	if err != nil {
		return fmt.Errorf("app: archive evaluations: %w", err)
	}
	execs, err := deps.Archiver.ArchiveExecutions(ctx, before)
	if err != nil {
		return fmt.Errorf("app: archive executions: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.Time("before", before),
		slog.Int64("evaluations", evals),
		slog.Int64("executions", execs),
	)
	return nil
}
