// Package service connects the bots to the journal: stores, the latest-quote
// cache, the signal bus and notifications.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/notify"
)

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ArbService records evaluations and executions. Every dependency is
// optional; a failing sink is logged and never fails the bot's cycle.
type ArbService struct {
	evals  domain.EvaluationStore
	execs  domain.ExecutionStore
	quotes domain.QuoteCache
	bus    domain.SignalBus
	notify Notifier
	logger *slog.Logger
}

// ArbServiceDeps are the sinks of an ArbService.
type ArbServiceDeps struct {
	Evaluations domain.EvaluationStore
	Executions  domain.ExecutionStore
	Quotes      domain.QuoteCache
	Bus         domain.SignalBus
	Notifier    Notifier
}

// NewArbService creates an ArbService.
func NewArbService(deps ArbServiceDeps, logger *slog.Logger) *ArbService {
	return &ArbService{
		evals:  deps.Evaluations,
		execs:  deps.Executions,
		quotes: deps.Quotes,
		bus:    deps.Bus,
		notify: deps.Notifier,
		logger: logger.With(slog.String("component", "arb_service")),
	}
}

// RecordEvaluation stores e, caches it as the latest quote and publishes it.
func (s *ArbService) RecordEvaluation(ctx context.Context, e domain.Evaluation) {
	if s.evals != nil {
		if err := s.evals.Create(ctx, e); err != nil {
			s.warn(ctx, "store evaluation", err)
		}
	}
	if s.quotes != nil {
		err := s.quotes.SetQuote(ctx, domain.QuoteSnapshot{
			Bot:         e.Bot,
			Direction:   e.Direction,
			Offer:       e.Offer,
			Received:    e.Received,
			ProfitRatio: e.ProfitRatio.String(),
			Result:      e.Result,
			UpdatedAt:   e.EvaluatedAt,
		})
		if err != nil {
			s.warn(ctx, "cache quote", err)
		}
	}
	s.publish(ctx, domain.ChannelEvaluation, e)
}

// RecordExecution stores x, publishes it, appends it to the execution stream
// and alerts on the outcome.
func (s *ArbService) RecordExecution(ctx context.Context, x domain.Execution) {
	if s.execs != nil {
		if err := s.execs.Create(ctx, x); err != nil {
			s.warn(ctx, "store execution", err)
		}
	}
	if payload := s.publish(ctx, domain.ChannelExecution, x); payload != nil {
		if err := s.bus.StreamAppend(ctx, domain.StreamExecutions, payload); err != nil {
			s.warn(ctx, "append execution stream", err)
		}
	}

	s.logger.InfoContext(ctx, "execution recorded",
		slog.String("bot", x.Bot),
		slog.String("kind", x.Kind),
		slog.String("status", string(x.Status)),
		slog.String("tx_hash", x.TxHash),
	)

	if s.notify == nil {
		return
	}
	event, title := executionEvent(x)
	if event == "" {
		return
	}
	msg := fmt.Sprintf("bot %s %s %s\nfee %s%s gas %d\ntx %s",
		x.Bot, x.Kind, x.Direction, x.FeeAmount, x.FeeDenom, x.Gas, x.TxHash)
	if x.RawLog != "" {
		msg += "\n" + x.RawLog
	}
	if err := s.notify.Notify(ctx, event, title, msg); err != nil {
		s.warn(ctx, "notify", err)
	}
}

// BotStopped alerts that a bot loop exited with err.
func (s *ArbService) BotStopped(ctx context.Context, bot string, err error) {
	s.publish(ctx, domain.ChannelStatus, map[string]string{"bot": bot, "status": "stopped", "error": err.Error()})
	if s.notify == nil {
		return
	}
	if nerr := s.notify.Notify(ctx, notify.EventBotStopped, "Bot stopped", fmt.Sprintf("bot %s: %v", bot, err)); nerr != nil {
		s.warn(ctx, "notify", nerr)
	}
}

func executionEvent(x domain.Execution) (event, title string) {
	if x.Kind != domain.ExecKindArbitrage {
		if x.Status == domain.TxSubmitted {
			return notify.EventIdleCapital, "Idle capital moved"
		}
		if x.Status == domain.TxFailed {
			return notify.EventTradeFailed, "Idle capital transaction failed"
		}
		return "", ""
	}
	switch x.Status {
	case domain.TxSubmitted:
		return notify.EventTradeSubmitted, "Arbitrage submitted"
	case domain.TxFailed:
		return notify.EventTradeFailed, "Arbitrage failed"
	case domain.TxRejected:
		return notify.EventTradeRejected, "Arbitrage rejected on fee"
	default:
		return "", ""
	}
}

// publish sends v as JSON on channel and returns the payload, or nil when
// there is no bus or encoding failed.
func (s *ArbService) publish(ctx context.Context, channel string, v any) []byte {
	if s.bus == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.warn(ctx, "encode "+channel, err)
		return nil
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.warn(ctx, "publish "+channel, err)
	}
	return payload
}

func (s *ArbService) warn(ctx context.Context, op string, err error) {
	s.logger.WarnContext(ctx, "arb_service: "+op+" failed", slog.String("error", err.Error()))
}
