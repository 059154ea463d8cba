// Package executor signs and broadcasts bot transactions: gas estimation,
// fee pricing, the caller's fee check, signing and submission.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// Chain is the subset of the LCD client the sender needs.
type Chain interface {
	ChainID() string
	Account(ctx context.Context, addr string) (domain.Account, error)
	EstimateGas(ctx context.Context, tx domain.UnsignedTx) (uint64, error)
	Broadcast(ctx context.Context, tx domain.SignedTx) (domain.BroadcastResult, error)
}

// GasPricer prices gas per denom.
type GasPricer interface {
	Price(ctx context.Context, denom string) (decimal.Decimal, error)
}

// TxSigner signs canonical sign bytes.
type TxSigner interface {
	Sign(signBytes []byte) (domain.Signature, error)
}

// Encoding turns transactions into bytes. SignBytes produces the sign
// document, Msgs the journal form of a message list.
type Encoding struct {
	SignBytes func(tx domain.UnsignedTx) ([]byte, error)
	Msgs      func(msgs []domain.Msg) (json.RawMessage, error)
}

// AcceptFunc decides whether a trade is still worth it at the given fee.
type AcceptFunc func(fee domain.Coin) bool

// AcceptAll accepts every fee. Used for housekeeping transactions.
func AcceptAll(domain.Coin) bool { return true }

// SenderConfig configures a Sender.
type SenderConfig struct {
	Address       string
	GasAdjustment decimal.Decimal
	FeePolicy     domain.FeePolicy
	// DryRun stops after the fee check and reports TxSimulated.
	DryRun bool
	// Lock, when set, serialises submissions from the account across
	// processes. LockTTL bounds how long a crashed holder blocks others.
	Lock    domain.LockManager
	LockTTL time.Duration
	// ResubmitWindow suppresses an identical tx broadcast within the window.
	ResubmitWindow time.Duration
	// Sequences carries the account sequence across sends while earlier txs
	// wait for a block. Senders of one account must share it; nil gives the
	// sender its own.
	Sequences *Sequences
}

// Sender submits transactions for one signing account.
type Sender struct {
	chain  Chain
	gas    GasPricer
	signer TxSigner
	enc    Encoding
	cfg    SenderConfig
	recent *RecentTxs
	logger *slog.Logger
}

// NewSender creates a Sender. gas may be nil when the fee policy is fixed.
func NewSender(chain Chain, gas GasPricer, signer TxSigner, enc Encoding, cfg SenderConfig, logger *slog.Logger) *Sender {
	if cfg.GasAdjustment.IsZero() {
		cfg.GasAdjustment = decimal.RequireFromString("1.1")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.Sequences == nil {
		cfg.Sequences = NewSequences()
	}
	return &Sender{
		chain:  chain,
		gas:    gas,
		signer: signer,
		enc:    enc,
		cfg:    cfg,
		recent: NewRecentTxs(cfg.ResubmitWindow),
		logger: logger.With(slog.String("component", "sender"), slog.String("account", cfg.Address)),
	}
}

// Address returns the signing account.
func (s *Sender) Address() string { return s.cfg.Address }

// Send prices msgs and, if accept agrees, signs and broadcasts them. A
// declined fee, a chain-side failure code and a dry run are all reported
// through the outcome; only connectivity and encoding problems are errors.
func (s *Sender) Send(ctx context.Context, msgs []domain.Msg, accept AcceptFunc) (domain.TxOutcome, error) {
	return s.SendWithPolicy(ctx, msgs, s.cfg.FeePolicy, accept)
}

// SendWithPolicy is Send with an explicit fee policy.
func (s *Sender) SendWithPolicy(ctx context.Context, msgs []domain.Msg, policy domain.FeePolicy, accept AcceptFunc) (domain.TxOutcome, error) {
	if len(msgs) == 0 {
		return domain.TxOutcome{}, fmt.Errorf("executor: send: no messages")
	}
	encoded, err := s.enc.Msgs(msgs)
	if err != nil {
		return domain.TxOutcome{}, fmt.Errorf("executor: encode msgs: %w", err)
	}
	fp := Fingerprint(encoded)
	if s.recent.Seen(fp) {
		s.logger.InfoContext(ctx, "identical tx broadcast recently, skipping")
		return domain.TxOutcome{Status: domain.TxDuplicate, Messages: encoded}, nil
	}

	if s.cfg.Lock != nil && !s.cfg.DryRun {
		unlock, err := s.cfg.Lock.Acquire(ctx, "account:"+s.cfg.Address, s.cfg.LockTTL)
		if err != nil {
			return domain.TxOutcome{}, fmt.Errorf("executor: account lock: %w", err)
		}
		defer unlock()
	}

	// 1. Account sequence, ahead of the chain while our last tx is pending.
	acc, err := s.chain.Account(ctx, s.cfg.Address)
	if err != nil {
		return domain.TxOutcome{}, fmt.Errorf("executor: account: %w", err)
	}
	tx := domain.UnsignedTx{
		ChainID: s.chain.ChainID(),
		Account: s.cfg.Sequences.Resolve(acc),
		Msgs:    msgs,
	}

	// 2. Simulate.
	gasUsed, err := s.chain.EstimateGas(ctx, tx)
	if err != nil {
		return domain.TxOutcome{}, fmt.Errorf("executor: estimate gas: %w", err)
	}

	// 3. Safety margin and fee.
	gasLimit := ceilMul(gasUsed, s.cfg.GasAdjustment)
	fee, err := s.price(ctx, policy, gasLimit)
	if err != nil {
		return domain.TxOutcome{}, err
	}
	tx.Fee = fee
	outcome := domain.TxOutcome{Fee: fee, Messages: encoded}

	// 4. Caller's fee check.
	if accept != nil && !accept(firstCoin(fee.Amount)) {
		s.logger.InfoContext(ctx, "tx rejected due to fee",
			slog.Uint64("gas", fee.Gas),
			slog.String("fee", firstCoin(fee.Amount).String()),
		)
		outcome.Status = domain.TxRejected
		return outcome, nil
	}
	if s.cfg.DryRun {
		outcome.Status = domain.TxSimulated
		return outcome, nil
	}

	// 5. Sign and broadcast.
	signBytes, err := s.enc.SignBytes(tx)
	if err != nil {
		return domain.TxOutcome{}, fmt.Errorf("executor: sign bytes: %w", err)
	}
	sig, err := s.signer.Sign(signBytes)
	if err != nil {
		return domain.TxOutcome{}, fmt.Errorf("executor: sign: %w", err)
	}
	res, err := s.chain.Broadcast(ctx, domain.SignedTx{Tx: tx, Signature: sig})
	if err != nil {
		// The tx may or may not have reached the mempool.
		s.cfg.Sequences.Reset(s.cfg.Address)
		return domain.TxOutcome{}, fmt.Errorf("executor: broadcast: %w", err)
	}
	outcome.Result = res

	if res.Code != 0 {
		if wrongSequence(res) {
			s.cfg.Sequences.Reset(s.cfg.Address)
		}
		s.logger.WarnContext(ctx, "tx failed on chain",
			slog.String("tx_hash", res.TxHash),
			slog.Uint64("code", uint64(res.Code)),
			slog.Uint64("sequence", tx.Account.Sequence),
			slog.String("raw_log", res.RawLog),
		)
		outcome.Status = domain.TxFailed
		return outcome, nil
	}

	s.cfg.Sequences.Advance(s.cfg.Address, tx.Account.Sequence)
	s.recent.Mark(fp)
	s.logger.InfoContext(ctx, "tx submitted",
		slog.String("tx_hash", res.TxHash),
		slog.Uint64("gas", fee.Gas),
		slog.String("fee", firstCoin(fee.Amount).String()),
	)
	outcome.Status = domain.TxSubmitted
	return outcome, nil
}

func (s *Sender) price(ctx context.Context, policy domain.FeePolicy, gasLimit uint64) (domain.Fee, error) {
	switch policy.Mode {
	case domain.FeeFixed:
		return domain.Fee{Gas: gasLimit, Amount: domain.Coins{policy.Fixed}}, nil
	case domain.FeeEstimated:
		if s.gas == nil {
			return domain.Fee{}, fmt.Errorf("executor: fee: no gas price oracle for estimated fees")
		}
		price, err := s.gas.Price(ctx, policy.Denom)
		if err != nil {
			return domain.Fee{}, fmt.Errorf("executor: gas price: %w", err)
		}
		amount := decimal.NewFromInt(int64(gasLimit)).Mul(price).Ceil()
		amt, overflow := uint256.FromBig(amount.BigInt())
		if overflow {
			return domain.Fee{}, fmt.Errorf("executor: fee: %w: overflow", domain.ErrInvalidAmount)
		}
		return domain.Fee{Gas: gasLimit, Amount: domain.Coins{{Denom: policy.Denom, Amount: amt}}}, nil
	default:
		return domain.Fee{}, fmt.Errorf("executor: fee: unknown fee mode %q", policy.Mode)
	}
}

// ceilMul returns ceil(gas × factor).
func ceilMul(gas uint64, factor decimal.Decimal) uint64 {
	return uint64(decimal.NewFromInt(int64(gas)).Mul(factor).Ceil().IntPart())
}

func firstCoin(cs domain.Coins) domain.Coin {
	if len(cs) == 0 {
		return domain.Coin{Amount: new(uint256.Int)}
	}
	return cs[0]
}
