package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/arbitrage"
	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/executor"
)

// AnchorConfig configures idle-capital management for a vault.
type AnchorConfig struct {
	Bot   string
	Vault string
	// MaxDepositRatio is the share of total value kept in aUST.
	MaxDepositRatio decimal.Decimal
	// MinWithdrawal is the smallest stable shortfall worth redeeming.
	MinWithdrawal *uint256.Int
	// Reserve is held back from every deposit.
	Reserve *uint256.Int
}

// AnchorModel keeps a vault's stable balance within a band: spare stable is
// deposited into Anchor, and a shortfall is redeemed from it.
type AnchorModel struct {
	cfg      AnchorConfig
	balances BalanceReader
	sender   TxSender
	recorder Recorder
	logger   *slog.Logger
}

// NewAnchorModel creates an AnchorModel.
func NewAnchorModel(cfg AnchorConfig, balances BalanceReader, sender TxSender, recorder Recorder, logger *slog.Logger) *AnchorModel {
	if cfg.MinWithdrawal == nil {
		cfg.MinWithdrawal = uint256.NewInt(50 * domain.Micro)
	}
	if cfg.Reserve == nil {
		cfg.Reserve = uint256.NewInt(domain.Micro)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &AnchorModel{
		cfg:      cfg,
		balances: balances,
		sender:   sender,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "anchor"), slog.String("bot", cfg.Bot)),
	}
}

// Manage deposits or withdraws once, or does nothing when the vault is
// within its band.
func (m *AnchorModel) Manage(ctx context.Context) error {
	bal, err := m.balances.Snapshot(ctx, m.cfg.Vault, domain.DenomUST, true)
	if err != nil {
		return err
	}
	stable := decimal.NewFromBigInt(bal.Stable.ToBig(), 0)
	austValue := bal.AUSTValue()
	total := stable.Add(austValue)
	liquidShare := one.Sub(m.cfg.MaxDepositRatio)

	m.logger.DebugContext(ctx, "anchor balances",
		slog.String("uusd", bal.Stable.Dec()),
		slog.String("uaust", bal.Uaust.Dec()),
		slog.String("rate", bal.Rate.String()),
		slog.String("total", total.StringFixed(0)),
	)

	if stable.LessThan(liquidShare.Mul(total).Mul(decimal.RequireFromString("1.5"))) {
		shortfall := liquidShare.Mul(total).Sub(stable)
		if shortfall.LessThan(decimal.NewFromBigInt(m.cfg.MinWithdrawal.ToBig(), 0)) || bal.Uaust.IsZero() || bal.Rate.IsZero() {
			m.logger.InfoContext(ctx, "low ust balance, skipping deposit")
			return nil
		}
		amount := toUint(shortfall.Div(bal.Rate))
		if amount.Gt(bal.Uaust) {
			amount = new(uint256.Int).Set(bal.Uaust)
		}
		msg, err := arbitrage.AnchorWithdrawMsg(m.sender.Address(), m.cfg.Vault, amount)
		if err != nil {
			return err
		}
		m.logger.InfoContext(ctx, "withdrawing from anchor", slog.String("uaust", amount.Dec()))
		return m.send(ctx, domain.ExecKindWithdraw, msg)
	}

	deposit := toUint(total.Mul(m.cfg.MaxDepositRatio).Sub(austValue))
	if !deposit.Gt(m.cfg.Reserve) {
		m.logger.InfoContext(ctx, "insufficient funds for anchor deposit")
		return nil
	}
	deposit.Sub(deposit, m.cfg.Reserve)
	msg, err := arbitrage.AnchorDepositMsg(m.sender.Address(), m.cfg.Vault, deposit)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "depositing to anchor", slog.String("uusd", deposit.Dec()))
	return m.send(ctx, domain.ExecKindDeposit, msg)
}

func (m *AnchorModel) send(ctx context.Context, kind string, msg domain.Msg) error {
	out, err := m.sender.Send(ctx, []domain.Msg{msg}, executor.AcceptAll)
	if err != nil {
		return err
	}
	m.recorder.RecordExecution(ctx, domain.Execution{
		ID:          uuid.NewString(),
		Bot:         m.cfg.Bot,
		Kind:        kind,
		TxHash:      out.Result.TxHash,
		Status:      out.Status,
		FeeAmount:   feeCoin(out.Fee).AmountString(),
		FeeDenom:    feeCoin(out.Fee).Denom,
		Gas:         out.Fee.Gas,
		RawLog:      out.Result.RawLog,
		Messages:    out.Messages,
		SubmittedAt: time.Now().UTC(),
	})
	return nil
}

var one = decimal.NewFromInt(1)

// toUint truncates d toward zero, clamping negatives to zero.
func toUint(d decimal.Decimal) *uint256.Int {
	if d.Sign() <= 0 {
		return new(uint256.Int)
	}
	v, overflow := uint256.FromBig(d.Truncate(0).BigInt())
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return v
}

func feeCoin(f domain.Fee) domain.Coin {
	if len(f.Amount) == 0 {
		return domain.Coin{}
	}
	return f.Amount[0]
}
