package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/arbitrage"
	"github.com/alanyoungcy/pegbot/internal/bot"
	"github.com/alanyoungcy/pegbot/internal/config"
	"github.com/alanyoungcy/pegbot/internal/crypto"
	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/executor"
	"github.com/alanyoungcy/pegbot/internal/platform/terra"
	"github.com/alanyoungcy/pegbot/internal/rates"
)

// runner is one scheduled bot of either kind.
type runner interface {
	Name() string
	RunCycle(ctx context.Context) error
	Stats() bot.Stats
}

// fleet is the set of bots the process runs. It serves the status endpoint
// and the WebSocket connect snapshot.
type fleet struct {
	mu   sync.RWMutex
	bots []runner
}

func (f *fleet) add(b runner) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots = append(f.bots, b)
}

func (f *fleet) list() []runner {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]runner(nil), f.bots...)
}

// Stats implements handler.StatsSource.
func (f *fleet) Stats() []bot.Stats {
	bots := f.list()
	out := make([]bot.Stats, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.Stats())
	}
	return out
}

// Snapshot implements ws.StatusSource.
func (f *fleet) Snapshot() any {
	return map[string]any{"bots": f.Stats()}
}

// Names returns the bot names in configuration order.
func (f *fleet) Names() []string {
	bots := f.list()
	names := make([]string, 0, len(bots))
	for _, b := range bots {
		names = append(names, b.Name())
	}
	return names
}

// buildFleet creates one bot per enabled [[bots]] entry. All bots share the
// LCD client, the gas-price oracle and the wallet key; dryRun makes every
// sender stop after the fee check.
func (a *App) buildFleet(ctx context.Context, deps *Dependencies, dryRun bool) (*fleet, error) {
	cfg := a.cfg
	chain := terra.NewClient(cfg.Chain.LCDURL, cfg.Chain.ChainID, cfg.Chain.RequestTimeoutDuration())
	gas := terra.NewGasPriceOracle(cfg.Chain.FCDURL, cfg.Chain.GasUpdatePeriodDuration())

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
		Address:          cfg.Wallet.Address,
		ChainID:          cfg.Chain.ChainID,
	})
	if err != nil {
		return nil, fmt.Errorf("app: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key)
	if err != nil {
		return nil, fmt.Errorf("app: wallet key: %w", err)
	}

	amm := rates.NewAMMSource(chain)
	market := rates.NewMarketSource(chain)
	tax := rates.NewTaxSource(chain)
	balances := bot.NewLCDBalances(chain, cfg.Anchor.AUSTContract, cfg.Anchor.MarketContract)
	registry := arbitrage.DefaultRegistry()
	enc := executor.Encoding{SignBytes: terra.SignBytes, Msgs: terra.EncodeMsgs}
	// Every bot signs for the same wallet.
	sequences := executor.NewSequences()

	// Market info is informational; a failed read is logged and left blank.
	minSpread := decimal.Zero
	if params, err := chain.MarketParameters(ctx); err != nil {
		a.logger.WarnContext(ctx, "market parameters unavailable", slog.String("error", err.Error()))
	} else {
		minSpread = params.MinSpread
	}

	f := &fleet{}
	for _, bc := range cfg.EnabledBots() {
		parts := botParts{
			chain:    chain,
			gas:      gas,
			signer:   signer,
			enc:      enc,
			amm:      amm,
			market:   market,
			tax:      tax,
			balances: balances,
			registry: registry,
			seq:      sequences,
			lock:     deps.Lock,
			recorder: deps.Recorder,
			dryRun:   dryRun,
		}
		if bc.IsTokenPool() {
			tb, err := a.buildTokenBot(ctx, bc, parts)
			if err != nil {
				return nil, err
			}
			f.add(tb)
			continue
		}
		b, err := a.buildBot(ctx, bc, parts)
		if err != nil {
			return nil, err
		}
		tobin, err := chain.TobinTax(ctx, bc.Quote)
		if err != nil {
			a.logger.WarnContext(ctx, "tobin tax unavailable", slog.String("bot", bc.Name), slog.String("error", err.Error()))
		}
		b.SetMarketInfo(minSpread, tobin)
		f.add(b)
	}
	return f, nil
}

type botParts struct {
	chain    *terra.Client
	gas      *terra.GasPriceOracle
	signer   *crypto.Signer
	enc      executor.Encoding
	amm      *rates.AMMSource
	market   *rates.MarketSource
	tax      *rates.TaxSource
	balances *bot.LCDBalances
	registry *arbitrage.Registry
	seq      *executor.Sequences
	lock     domain.LockManager
	recorder bot.Recorder
	dryRun   bool
}

func (a *App) buildBot(ctx context.Context, bc config.BotConfig, p botParts) (*bot.Arbbot, error) {
	wallet := a.cfg.Wallet.Address
	pool := domain.PoolConfig{
		Name:        bc.Name,
		PoolAddress: bc.PoolAddress,
		Quote:       domain.ParseAsset(bc.Quote),
	}
	fixedFee, err := domain.ParseCoin(bc.FixedFeeOrDefault())
	if err != nil {
		return nil, fmt.Errorf("app: bot %s: fixed_fee: %w", bc.Name, err)
	}

	builder, err := p.registry.New(bc.Mode, arbitrage.BuilderConfig{
		Sender:       wallet,
		Pool:         pool,
		Contract:     bc.ContractAddress,
		Schema:       arbitrage.Schema(bc.ContractSchema),
		MaxSpread:    bc.MaxSpread,
		LunaLegRatio: decimal.NewFromFloat(bc.LunaLegRatio),
	})
	if err != nil {
		return nil, fmt.Errorf("app: bot %s: %w", bc.Name, err)
	}

	sender := a.newSender(bc, fixedFee, p)

	account := wallet
	var idle bot.IdleManager
	if bc.Mode == config.BotModeContract {
		account = bc.ContractAddress
		if builder.ManagesIdleCapital() {
			idle = bot.NewAnchorModel(bot.AnchorConfig{
				Bot:             bc.Name,
				Vault:           bc.ContractAddress,
				MaxDepositRatio: decimal.NewFromFloat(a.cfg.Anchor.MaxDepositRatio),
				MinWithdrawal:   uint256.NewInt(a.cfg.Anchor.MinWithdrawal),
				Reserve:         uint256.NewInt(bc.OfferReserve),
			}, p.balances, sender, p.recorder, a.logger)
		}
	}

	a.logger.InfoContext(ctx, "bot configured",
		slog.String("bot", bc.Name),
		slog.String("mode", bc.Mode),
		slog.String("pool", bc.PoolAddress),
		slog.String("account", account),
		slog.Bool("dry_run", p.dryRun),
	)

	return bot.New(bot.Config{
		Name:          bc.Name,
		Pool:          pool,
		Account:       account,
		Margin:        decimal.NewFromFloat(bc.ProfitMargin),
		WithdrawRatio: decimal.NewFromFloat(bc.WithdrawMarginRate),
		CloseRatio:    decimal.NewFromFloat(bc.DepositMarginRate),
		FixedFee:      fixedFee,
		Sizing: arbitrage.Sizing{
			TradeAmount: uint256.NewInt(bc.TradeAmount),
			Buffer:      decimal.NewFromFloat(bc.OfferBuffer),
			Reserve:     uint256.NewInt(bc.OfferReserve),
		},
		GasUpdatePeriod: a.cfg.Chain.GasUpdatePeriodDuration(),
	}, bot.Deps{
		AMM:      p.amm,
		Market:   p.market,
		Tax:      p.tax,
		Balances: p.balances,
		Builder:  builder,
		Sender:   sender,
		Idle:     idle,
		Gas:      p.gas,
		Recorder: p.recorder,
		Logger:   a.logger,
	}), nil
}

// newSender creates the transaction sender of one bot. Fees are paid in the
// bot's settlement denom.
func (a *App) newSender(bc config.BotConfig, fixedFee domain.Coin, p botParts) *executor.Sender {
	policy := domain.FeePolicy{Mode: domain.FeeEstimated, Denom: bc.FeeDenom}
	if policy.Denom == "" {
		policy.Denom = bc.SettlementDenom()
	}
	if bc.FeePolicy == string(domain.FeeFixed) {
		policy = domain.FeePolicy{Mode: domain.FeeFixed, Fixed: fixedFee}
	}
	return executor.NewSender(p.chain, p.gas, p.signer, p.enc, executor.SenderConfig{
		Address:        a.cfg.Wallet.Address,
		GasAdjustment:  decimal.NewFromFloat(a.cfg.Chain.GasAdjustment),
		FeePolicy:      policy,
		DryRun:         p.dryRun,
		Lock:           p.lock,
		LockTTL:        a.cfg.Redis.LockTTLDuration(),
		ResubmitWindow: a.cfg.Chain.ResubmitWindowDuration(),
		Sequences:      p.seq,
	}, a.logger)
}

// buildTokenBot creates a bot for a luna-pegged CW20 pool. It trades from
// the wallet and has no idle capital.
func (a *App) buildTokenBot(ctx context.Context, bc config.BotConfig, p botParts) (*bot.TokenBot, error) {
	pool := domain.PoolConfig{
		Name:        bc.Name,
		PoolAddress: bc.PoolAddress,
		Quote:       domain.ParseAsset(bc.Quote),
	}
	fixedFee, err := domain.ParseCoin(bc.FixedFeeOrDefault())
	if err != nil {
		return nil, fmt.Errorf("app: bot %s: fixed_fee: %w", bc.Name, err)
	}
	builder, err := arbitrage.NewTokenBuilder(bc.Mode, arbitrage.TokenConfig{
		Sender:    a.cfg.Wallet.Address,
		Pool:      pool,
		MaxSpread: bc.MaxSpread,
		Hub:       bc.HubContract,
		Validator: bc.Validator,
		LegRatio:  decimal.NewFromFloat(bc.LunaLegRatio),
	})
	if err != nil {
		return nil, fmt.Errorf("app: bot %s: %w", bc.Name, err)
	}

	a.logger.InfoContext(ctx, "token bot configured",
		slog.String("bot", bc.Name),
		slog.String("mode", bc.Mode),
		slog.String("pool", bc.PoolAddress),
		slog.String("token", pool.TokenAddress()),
		slog.Bool("dry_run", p.dryRun),
	)

	return bot.NewTokenBot(bot.TokenConfig{
		Name:       bc.Name,
		Pool:       pool,
		Margin:     decimal.NewFromFloat(bc.ProfitMargin),
		SellMargin: decimal.NewFromFloat(bc.SellMargin),
		FixedFee:   fixedFee,
		Sizing: arbitrage.Sizing{
			TradeAmount: uint256.NewInt(bc.TradeAmount),
			Buffer:      decimal.NewFromFloat(bc.OfferBuffer),
			Reserve:     uint256.NewInt(bc.OfferReserve),
		},
		GasUpdatePeriod: a.cfg.Chain.GasUpdatePeriodDuration(),
	}, bot.TokenDeps{
		AMM:      p.amm,
		Balances: p.balances,
		Tokens:   p.chain,
		Builder:  builder,
		Sender:   a.newSender(bc, fixedFee, p),
		Gas:      p.gas,
		Recorder: p.recorder,
		Logger:   a.logger,
	}), nil
}
