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
)

// TokenBalanceReader reads CW20 balances.
type TokenBalanceReader interface {
	CW20Balance(ctx context.Context, token, addr string) (*uint256.Int, error)
}

// TokenConfig holds the tunables of a token pool bot. The token is valued at
// par with luna, so profit is luna out over luna in.
type TokenConfig struct {
	Name string
	Pool domain.PoolConfig
	// Margin applies to buying and to minted sells. SellMargin applies when
	// held token is sold back; it may be negative to unwind at a small loss.
	Margin          decimal.Decimal
	SellMargin      decimal.Decimal
	FixedFee        domain.Coin
	Sizing          arbitrage.Sizing
	GasUpdatePeriod time.Duration
}

// TokenDeps are the collaborators of a token bot. Gas and Recorder are
// optional.
type TokenDeps struct {
	AMM      AMMQuoter
	Balances BalanceReader
	Tokens   TokenBalanceReader
	Builder  arbitrage.TokenBuilder
	Sender   TxSender
	Gas      GasRefresher
	Recorder Recorder
	Logger   *slog.Logger
}

// TokenBot trades a luna-pegged token against luna in one pool: it sells
// the token when the pool pays more than a luna for it and buys it when the
// pool sells it for less.
type TokenBot struct {
	cfg    TokenConfig
	deps   TokenDeps
	checks map[domain.Direction]*arbitrage.ProfitabilityCheck
	logger *slog.Logger
	now    func() time.Time

	lastGasUpdate time.Time

	mu    sync.Mutex
	stats Stats
}

// NewTokenBot creates a token pool bot.
func NewTokenBot(cfg TokenConfig, deps TokenDeps) *TokenBot {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.GasUpdatePeriod <= 0 {
		cfg.GasUpdatePeriod = 10 * time.Minute
	}
	sellMargin := cfg.SellMargin
	if deps.Builder != nil && deps.Builder.MintsToken() {
		sellMargin = cfg.Margin
	}
	b := &TokenBot{
		cfg:  cfg,
		deps: deps,
		checks: map[domain.Direction]*arbitrage.ProfitabilityCheck{
			domain.SellToken: arbitrage.NewProfitabilityCheck(sellMargin, cfg.FixedFee),
			domain.BuyToken:  arbitrage.NewProfitabilityCheck(cfg.Margin, cfg.FixedFee),
		},
		logger: deps.Logger.With(slog.String("component", "tokenbot"), slog.String("bot", cfg.Name)),
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
func (b *TokenBot) Name() string { return b.cfg.Name }

// Stats returns a copy of the bot's counters.
func (b *TokenBot) Stats() Stats {
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

// RunCycle tries the sell side, then the buy side, then refreshes gas
// prices when due.
func (b *TokenBot) RunCycle(ctx context.Context) error {
	for _, dir := range []domain.Direction{domain.SellToken, domain.BuyToken} {
		if err := b.try(ctx, dir); err != nil {
			return fmt.Errorf("bot %s: %s: %w", b.cfg.Name, dir, err)
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

func (b *TokenBot) try(ctx context.Context, dir domain.Direction) error {
	eval := domain.Evaluation{
		ID:          uuid.NewString(),
		Bot:         b.cfg.Name,
		Direction:   dir,
		EvaluatedAt: b.now().UTC(),
	}

	funds, err := b.funds(ctx, dir)
	if err != nil {
		return err
	}
	offer, ok := b.cfg.Sizing.Offer(funds)
	if !ok {
		b.logger.InfoContext(ctx, "insufficient funds",
			slog.String("direction", string(dir)),
			slog.String("balance", funds.Dec()),
		)
		eval.Offer, eval.Received = "0", "0"
		eval.Result = domain.NoOpportunity.String()
		eval.Reason = "insufficient_funds"
		b.finish(ctx, eval, domain.NoOpportunity)
		return nil
	}

	var offered domain.Asset = domain.NativeToken{Denom: domain.DenomLuna}
	if dir == domain.SellToken {
		offered = b.cfg.Pool.Quote
	}
	q, err := b.deps.AMM.Quote(ctx, b.cfg.Pool, offered, offer)
	if err != nil {
		return err
	}

	check := b.checks[dir]
	check.Update(offer, q.Return.Amount, decimal.Zero)
	profitable := check.Accept(b.cfg.FixedFee)

	eval.Offer = offer.Dec()
	eval.Received = q.Return.Amount.Dec()
	eval.TaxRate = decimal.Zero
	eval.ProfitRatio = check.ProfitRatio()

	log := b.logger.With(
		slog.String("direction", string(dir)),
		slog.String("offer", offer.Dec()),
		slog.String("return", q.Return.Amount.Dec()),
		slog.String("profit_ratio", eval.ProfitRatio.StringFixed(6)),
	)
	if !profitable {
		eval.Result = domain.NoOpportunity.String()
		log.InfoContext(ctx, "no token arb opportunity")
		b.finish(ctx, eval, domain.NoOpportunity)
		return nil
	}

	b.mu.Lock()
	b.stats.Opportunities++
	b.mu.Unlock()
	eval.Result = domain.Success.String()
	log.InfoContext(ctx, "found token arb opportunity")
	b.finish(ctx, eval, domain.Success)

	msgs, err := arbitrage.BuildToken(b.deps.Builder, dir, domain.TokenTrade{Offer: offer, Return: q.Return.Amount})
	if err != nil {
		return err
	}
	out, err := b.deps.Sender.Send(ctx, msgs, check.Accept)
	if err != nil {
		return err
	}
	b.recordExecution(ctx, eval, out)
	return nil
}

// funds returns what dir can spend: held token for a plain sell, luna for
// a buy or a minted sell.
func (b *TokenBot) funds(ctx context.Context, dir domain.Direction) (*uint256.Int, error) {
	addr := b.deps.Sender.Address()
	if dir == domain.SellToken && !b.deps.Builder.MintsToken() {
		bal, err := b.deps.Tokens.CW20Balance(ctx, b.cfg.Pool.TokenAddress(), addr)
		if err != nil {
			return nil, fmt.Errorf("token balance: %w", err)
		}
		return bal, nil
	}
	bal, err := b.deps.Balances.Snapshot(ctx, addr, domain.DenomLuna, false)
	if err != nil {
		return nil, err
	}
	return bal.Stable, nil
}

func (b *TokenBot) finish(ctx context.Context, eval domain.Evaluation, res domain.ArbResult) {
	b.mu.Lock()
	b.stats.LastResults[eval.Direction] = res.String()
	b.stats.LastRatios[eval.Direction] = eval.ProfitRatio.String()
	b.mu.Unlock()
	b.deps.Recorder.RecordEvaluation(ctx, eval)
}

func (b *TokenBot) recordExecution(ctx context.Context, eval domain.Evaluation, out domain.TxOutcome) {
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
