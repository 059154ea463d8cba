// Package bot runs one arbitrage bot: each cycle it checks both sides of the
// peg, trades when profitable and manages idle capital when neither side is
// close to an opportunity.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/arbitrage"
	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/executor"
)

// AMMQuoter quotes pool simulations.
type AMMQuoter interface {
	Quote(ctx context.Context, pool domain.PoolConfig, offer domain.Asset, amount *uint256.Int) (domain.RateQuote, error)
}

// MarketQuoter quotes native market swaps.
type MarketQuoter interface {
	Quote(ctx context.Context, offer domain.Coin, askDenom string) (domain.RateQuote, error)
}

// TaxReader reads the treasury tax rate.
type TaxReader interface {
	TaxRate(ctx context.Context) (decimal.Decimal, error)
}

// TxSender submits transactions for the bot's signing account.
type TxSender interface {
	Address() string
	Send(ctx context.Context, msgs []domain.Msg, accept executor.AcceptFunc) (domain.TxOutcome, error)
}

// IdleManager parks or recalls idle capital.
type IdleManager interface {
	Manage(ctx context.Context) error
}

// GasRefresher refreshes the gas-price table.
type GasRefresher interface {
	Refresh(ctx context.Context) error
}

// Recorder receives every evaluation and submission. Implementations handle
// their own failures; recording never fails a cycle.
type Recorder interface {
	RecordEvaluation(ctx context.Context, e domain.Evaluation)
	RecordExecution(ctx context.Context, e domain.Execution)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvaluation(context.Context, domain.Evaluation) {}
func (nopRecorder) RecordExecution(context.Context, domain.Execution)   {}

// Config holds the tunables of one bot.
type Config struct {
	Name string
	Pool domain.PoolConfig
	// Account holds the traded balance: the vault contract in contract mode,
	// the wallet otherwise.
	Account       string
	Margin        decimal.Decimal
	WithdrawRatio decimal.Decimal
	CloseRatio    decimal.Decimal
	// FixedFee is the fee assumed when deciding, before the real fee is known.
	FixedFee        domain.Coin
	Sizing          arbitrage.Sizing
	GasUpdatePeriod time.Duration
}

// Deps are the collaborators of a bot. Idle, Gas and Recorder are optional.
type Deps struct {
	AMM      AMMQuoter
	Market   MarketQuoter
	Tax      TaxReader
	Balances BalanceReader
	Builder  arbitrage.Builder
	Sender   TxSender
	Idle     IdleManager
	Gas      GasRefresher
	Recorder Recorder
	Logger   *slog.Logger
}

// Stats is a snapshot of a bot's counters for reporting.
type Stats struct {
	Bot           string                      `json:"bot"`
	Opportunities int64                       `json:"opportunities"`
	Cycles        int64                       `json:"cycles"`
	Submitted     int64                       `json:"submitted"`
	Rejected      int64                       `json:"rejected"`
	Failed        int64                       `json:"failed"`
	LastCycleAt   time.Time                   `json:"last_cycle_at"`
	LastTxHash    string                      `json:"last_tx_hash,omitempty"`
	LastResults   map[domain.Direction]string `json:"last_results"`
	LastRatios    map[domain.Direction]string `json:"last_ratios"`
	MinSpread     string                      `json:"market_min_spread,omitempty"`
	TobinTax      string                      `json:"tobin_tax,omitempty"`
}

// Arbbot is one arbitrage bot. RunCycle must not be called concurrently;
// Stats may be read from any goroutine.
type Arbbot struct {
	cfg    Config
	deps   Deps
	check  *arbitrage.ProfitabilityCheck
	logger *slog.Logger
	now    func() time.Time

	lastGasUpdate time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a bot.
func New(cfg Config, deps Deps) *Arbbot {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.GasUpdatePeriod <= 0 {
		cfg.GasUpdatePeriod = 10 * time.Minute
	}
	b := &Arbbot{
		cfg:    cfg,
		deps:   deps,
		check:  arbitrage.NewProfitabilityCheck(cfg.Margin, cfg.FixedFee),
		logger: deps.Logger.With(slog.String("component", "arbbot"), slog.String("bot", cfg.Name)),
		now:    time.Now,
		stats: Stats{
			Bot:         cfg.Name,
			LastResults: make(map[domain.Direction]string),
			LastRatios:  make(map[domain.Direction]string),
		},
	}
	b.lastGasUpdate = b.now()
	return b
}

// Name returns the bot name.
func (b *Arbbot) Name() string { return b.cfg.Name }

// Counter returns the number of profitable decisions since start.
func (b *Arbbot) Counter() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Opportunities
}

// Stats returns a copy of the bot's counters.
func (b *Arbbot) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.stats
	out.LastResults = make(map[domain.Direction]string, len(b.stats.LastResults))
	for k, v := range b.stats.LastResults {
		out.LastResults[k] = v
	}
	out.LastRatios = make(map[domain.Direction]string, len(b.stats.LastRatios))
	for k, v := range b.stats.LastRatios {
		out.LastRatios[k] = v
	}
	return out
}

// SetMarketInfo attaches market parameters to the reported stats.
func (b *Arbbot) SetMarketInfo(minSpread, tobinTax decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.MinSpread = minSpread.String()
	b.stats.TobinTax = tobinTax.String()
}

// RunCycle evaluates both directions, trading where profitable, then handles
// idle capital and the periodic gas-price refresh.
func (b *Arbbot) RunCycle(ctx context.Context) error {
	above, err := b.tryArb(ctx, domain.AbovePeg)
	if err != nil {
		return err
	}
	below, err := b.tryArb(ctx, domain.BelowPeg)
	if err != nil {
		return err
	}

	if above == domain.NoOpportunity && below == domain.NoOpportunity &&
		b.deps.Idle != nil && b.deps.Builder.ManagesIdleCapital() {
		if err := b.deps.Idle.Manage(ctx); err != nil {
			return fmt.Errorf("bot %s: idle capital: %w", b.cfg.Name, err)
		}
	}

	if b.deps.Gas != nil && b.now().Sub(b.lastGasUpdate) >= b.cfg.GasUpdatePeriod {
		if err := b.deps.Gas.Refresh(ctx); err != nil {
			return fmt.Errorf("bot %s: gas prices: %w", b.cfg.Name, err)
		}
		b.lastGasUpdate = b.now()
		b.logger.InfoContext(ctx, "gas prices refreshed")
	}

	b.mu.Lock()
	b.stats.Cycles++
	b.stats.LastCycleAt = b.now().UTC()
	b.mu.Unlock()
	return nil
}

func (b *Arbbot) tryArb(ctx context.Context, dir domain.Direction) (domain.ArbResult, error) {
	denom := b.cfg.Pool.QuoteDenom()
	manages := b.deps.Builder.ManagesIdleCapital()

	bal, err := b.deps.Balances.Snapshot(ctx, b.cfg.Account, denom, manages)
	if err != nil {
		return domain.NoOpportunity, fmt.Errorf("bot %s: %s: %w", b.cfg.Name, dir, err)
	}

	eval := domain.Evaluation{
		ID:          uuid.NewString(),
		Bot:         b.cfg.Name,
		Direction:   dir,
		EvaluatedAt: b.now().UTC(),
	}

	offer, ok := b.cfg.Sizing.Offer(bal.Stable)
	if !ok {
		b.logger.WarnContext(ctx, "insufficient funds",
			slog.String("direction", string(dir)),
			slog.String("balance", bal.Stable.Dec()),
		)
		eval.Offer, eval.Received = "0", "0"
		eval.Result = domain.NoOpportunity.String()
		eval.Reason = "insufficient_funds"
		b.finish(ctx, eval, domain.NoOpportunity)
		return domain.NoOpportunity, nil
	}

	stableToLuna, lunaToStable, err := b.quote(ctx, dir, offer)
	if err != nil {
		return domain.NoOpportunity, fmt.Errorf("bot %s: %s: %w", b.cfg.Name, dir, err)
	}
	tax, err := b.deps.Tax.TaxRate(ctx)
	if err != nil {
		return domain.NoOpportunity, fmt.Errorf("bot %s: %s: %w", b.cfg.Name, dir, err)
	}

	b.check.Update(offer, lunaToStable, tax)
	profitable := b.check.Accept(b.cfg.FixedFee)

	eval.Offer = offer.Dec()
	eval.Received = lunaToStable.Dec()
	eval.TaxRate = tax
	eval.ProfitRatio = b.check.ProfitRatio()

	log := b.logger.With(
		slog.String("direction", string(dir)),
		slog.String("offer", offer.Dec()),
		slog.String("stable_to_luna", stableToLuna.Dec()),
		slog.String("luna_to_stable", lunaToStable.Dec()),
		slog.String("profit_ratio", eval.ProfitRatio.StringFixed(6)),
	)

	if !profitable {
		res := b.check.Classify(b.cfg.CloseRatio)
		eval.Result = res.String()
		log.InfoContext(ctx, "no arb opportunity", slog.String("result", res.String()), slog.Int64("opportunities", b.Counter()))
		b.finish(ctx, eval, res)
		return res, nil
	}

	b.mu.Lock()
	b.stats.Opportunities++
	b.mu.Unlock()
	eval.Result = domain.Success.String()
	log.InfoContext(ctx, "found arb opportunity", slog.Int64("opportunities", b.Counter()))
	b.finish(ctx, eval, domain.Success)

	trade := domain.Trade{
		Offer:         offer,
		StableToLuna:  stableToLuna,
		LunaToStable:  lunaToStable,
		UaustWithdraw: new(uint256.Int),
	}
	if manages && b.check.WantsWithdraw(b.cfg.WithdrawRatio) && !bal.Uaust.IsZero() {
		larger, err := b.escalate(ctx, dir, bal, tax)
		if err != nil {
			return domain.Success, fmt.Errorf("bot %s: %s: %w", b.cfg.Name, dir, err)
		}
		if larger != nil {
			trade = *larger
			log.InfoContext(ctx, "redeeming idle capital for trade",
				slog.String("uaust", trade.UaustWithdraw.Dec()),
				slog.String("offer", trade.Offer.Dec()),
				slog.String("profit_ratio", b.check.ProfitRatio().StringFixed(6)),
			)
		} else {
			// The sender judges the trade actually sent, so restore the
			// quoted size in the check.
			b.check.Update(offer, lunaToStable, tax)
			log.InfoContext(ctx, "larger trade not profitable, keeping idle capital")
		}
	}

	msgs, err := arbitrage.Build(b.deps.Builder, dir, trade)
	if err != nil {
		return domain.Success, fmt.Errorf("bot %s: %s: %w", b.cfg.Name, dir, err)
	}
	out, err := b.deps.Sender.Send(ctx, msgs, b.check.Accept)
	if err != nil {
		return domain.Success, fmt.Errorf("bot %s: %s: %w", b.cfg.Name, dir, err)
	}
	b.recordExecution(ctx, eval, out)
	return domain.Success, nil
}

// escalate sizes the trade from the stable plus all idle capital and quotes
// it again, since a bigger offer moves the pool further. It returns nil when
// the larger trade no longer clears the margin.
func (b *Arbbot) escalate(ctx context.Context, dir domain.Direction, bal Balances, tax decimal.Decimal) (*domain.Trade, error) {
	maxOffer, ok := b.cfg.Sizing.MaxOffer(bal.Stable, bal.Uaust, bal.Rate)
	if !ok {
		return nil, nil
	}
	stableToLuna, lunaToStable, err := b.quote(ctx, dir, maxOffer)
	if err != nil {
		return nil, err
	}
	b.check.Update(maxOffer, lunaToStable, tax)
	if !b.check.Accept(b.cfg.FixedFee) {
		return nil, nil
	}
	return &domain.Trade{
		Offer:         maxOffer,
		StableToLuna:  stableToLuna,
		LunaToStable:  lunaToStable,
		UaustWithdraw: new(uint256.Int).Set(bal.Uaust),
	}, nil
}

// quote returns the two legs of dir: what offer buys in luna and what that
// luna sells back for.
func (b *Arbbot) quote(ctx context.Context, dir domain.Direction, offer *uint256.Int) (stableToLuna, lunaToStable *uint256.Int, err error) {
	denom := b.cfg.Pool.QuoteDenom()
	luna := domain.NativeToken{Denom: domain.DenomLuna}

	switch dir {
	case domain.AbovePeg:
		q, err := b.deps.AMM.Quote(ctx, b.cfg.Pool, b.cfg.Pool.Quote, offer)
		if err != nil {
			return nil, nil, err
		}
		back, err := b.deps.Market.Quote(ctx, q.Return, denom)
		if err != nil {
			return nil, nil, err
		}
		return q.Return.Amount, back.Return.Amount, nil
	case domain.BelowPeg:
		q, err := b.deps.Market.Quote(ctx, domain.Coin{Denom: denom, Amount: offer}, domain.DenomLuna)
		if err != nil {
			return nil, nil, err
		}
		back, err := b.deps.AMM.Quote(ctx, b.cfg.Pool, luna, q.Return.Amount)
		if err != nil {
			return nil, nil, err
		}
		return q.Return.Amount, back.Return.Amount, nil
	default:
		return nil, nil, fmt.Errorf("unknown direction %q", dir)
	}
}

func (b *Arbbot) finish(ctx context.Context, eval domain.Evaluation, res domain.ArbResult) {
	b.mu.Lock()
	b.stats.LastResults[eval.Direction] = res.String()
	b.stats.LastRatios[eval.Direction] = eval.ProfitRatio.String()
	b.mu.Unlock()
	b.deps.Recorder.RecordEvaluation(ctx, eval)
}

func (b *Arbbot) recordExecution(ctx context.Context, eval domain.Evaluation, out domain.TxOutcome) {
	b.mu.Lock()
	switch out.Status {
	case domain.TxSubmitted:
		b.stats.Submitted++
		b.stats.LastTxHash = out.Result.TxHash
	case domain.TxRejected:
		b.stats.Rejected++
	case domain.TxFailed:
		b.stats.Failed++
	}
	b.mu.Unlock()

	fee := feeCoin(out.Fee)
	b.deps.Recorder.RecordExecution(ctx, domain.Execution{
		ID:           uuid.NewString(),
		EvaluationID: eval.ID,
		Bot:          b.cfg.Name,
		Direction:    eval.Direction,
		Kind:         domain.ExecKindArbitrage,
		TxHash:       out.Result.TxHash,
		Status:       out.Status,
		FeeAmount:    fee.AmountString(),
		FeeDenom:     fee.Denom,
		Gas:          out.Fee.Gas,
		RawLog:       out.Result.RawLog,
		Messages:     out.Messages,
		SubmittedAt:  b.now().UTC(),
	})
}
