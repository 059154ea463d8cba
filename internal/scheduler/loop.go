// Package scheduler drives a bot's cycles forever, backing off after
// transient failures.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// Cycle is one unit of polling work.
type Cycle interface {
	Name() string
	RunCycle(ctx context.Context) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Loop runs a Cycle back to back with a pause in between.
type Loop struct {
	cycle    Cycle
	interval time.Duration
	recovery time.Duration
	logger   *slog.Logger

	// Sleep replaces the real sleep in tests.
	Sleep SleepFunc
}

// New creates a Loop. interval is the pause after a good cycle and recovery
// the pause after a transient failure.
func New(cycle Cycle, interval, recovery time.Duration, logger *slog.Logger) *Loop {
	return &Loop{
		cycle:    cycle,
		interval: interval,
		recovery: recovery,
		logger:   logger.With(slog.String("component", "scheduler"), slog.String("bot", cycle.Name())),
		Sleep:    Sleep,
	}
}

// Run blocks until ctx is cancelled or a cycle fails with a non-transient
// error. Cancellation returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "bot loop started",
		slog.Duration("interval", l.interval),
		slog.Duration("recovery_interval", l.recovery),
	)
	var failures int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := l.interval
		err := l.cycle.RunCycle(ctx)
		switch {
		case err == nil:
			if failures > 0 {
				l.logger.InfoContext(ctx, "bot recovered", slog.Int("failures", failures))
			}
			failures = 0
		case ctx.Err() != nil:
			return ctx.Err()
		case domain.IsTransient(err):
			failures++
			wait = l.recovery
			l.logger.WarnContext(ctx, "cycle failed, retrying",
				slog.String("error", err.Error()),
				slog.Int("failures", failures),
				slog.Duration("retry_in", wait),
			)
		default:
			l.logger.ErrorContext(ctx, "bot stopped", slog.String("error", err.Error()))
			return fmt.Errorf("scheduler: %s: %w", l.cycle.Name(), err)
		}

		if err := l.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Sleep waits for d, returning ctx.Err() early when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
