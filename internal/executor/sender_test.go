package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/crypto"
	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/platform/terra"
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) ChainID() string { return "localterra" }

func (m *mockChain) Account(ctx context.Context, addr string) (domain.Account, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *mockChain) EstimateGas(ctx context.Context, tx domain.UnsignedTx) (uint64, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockChain) Broadcast(ctx context.Context, tx domain.SignedTx) (domain.BroadcastResult, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(domain.BroadcastResult), args.Error(1)
}

type fixedPrice decimal.Decimal

func (p fixedPrice) Price(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type countingLock struct{ acquired, released int }

func (l *countingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testMsgs = []domain.Msg{
	domain.MsgSwap{Trader: "terra1me", OfferCoin: domain.NewCoin("uusd", 1_000_000), AskDenom: "uluna"},
}

func newTestSender(t *testing.T, chain *mockChain, cfg SenderConfig) *Sender {
	t.Helper()
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	if cfg.Address == "" {
		cfg.Address = "terra1me"
	}
	if cfg.FeePolicy.Mode == "" {
		cfg.FeePolicy = domain.FeePolicy{Mode: domain.FeeEstimated, Denom: "uusd"}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	enc := Encoding{SignBytes: terra.SignBytes, Msgs: terra.EncodeMsgs}
	return NewSender(chain, fixedPrice(decimal.RequireFromString("0.15")), signer, enc, cfg, logger)
}

func primedChain() *mockChain {
	chain := new(mockChain)
	chain.On("Account", mock.Anything, "terra1me").
		Return(domain.Account{Address: "terra1me", AccountNumber: 1, Sequence: 5}, nil)
	chain.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(100_000), nil)
	return chain
}

func TestSend_RejectedNeverBroadcasts(t *testing.T) {
	chain := primedChain()
	s := newTestSender(t, chain, SenderConfig{})

	var seen domain.Coin
	out, err := s.Send(context.Background(), testMsgs, func(fee domain.Coin) bool {
		seen = fee
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxRejected, out.Status)
	assert.Equal(t, "16500uusd", seen.String(), "ceil(ceil(100000×1.1)×0.15)")
	assert.Equal(t, uint64(110_000), out.Fee.Gas)
	chain.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestSend_Submitted(t *testing.T) {
	chain := primedChain()
	chain.On("Broadcast", mock.Anything, mock.MatchedBy(func(tx domain.SignedTx) bool {
		doc, err := terra.SignBytes(tx.Tx)
		return err == nil && tx.Tx.Account.Sequence == 5 && crypto.Verify(tx.Signature.PubKey, doc, tx.Signature.Signature)
	})).Return(domain.BroadcastResult{TxHash: "HASH"}, nil).Once()

	lock := &countingLock{}
	s := newTestSender(t, chain, SenderConfig{Lock: lock})
	out, err := s.Send(context.Background(), testMsgs, AcceptAll)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, out.Status)
	assert.Equal(t, "HASH", out.Result.TxHash)
	assert.NotEmpty(t, out.Messages)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
	chain.AssertExpectations(t)
}

func TestSend_FixedFee(t *testing.T) {
	chain := primedChain()
	s := newTestSender(t, chain, SenderConfig{
		FeePolicy: domain.FeePolicy{Mode: domain.FeeFixed, Fixed: domain.NewCoin("uusd", 80_000)},
		DryRun:    true,
	})
	out, err := s.Send(context.Background(), testMsgs, AcceptAll)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSimulated, out.Status)
	assert.Equal(t, "80000uusd", out.Fee.Amount[0].String())
	chain.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestSend_ChainFailureIsOutcome(t *testing.T) {
	chain := primedChain()
	chain.On("Broadcast", mock.Anything, mock.Anything).
		Return(domain.BroadcastResult{TxHash: "H", Code: 11, RawLog: "out of gas"}, nil)

	s := newTestSender(t, chain, SenderConfig{})
	out, err := s.Send(context.Background(), testMsgs, AcceptAll)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, out.Status)
	assert.Equal(t, "out of gas", out.Result.RawLog)
}

func TestSend_BroadcastErrorPropagates(t *testing.T) {
	chain := primedChain()
	boom := domain.MarkTransient(errors.New("connection reset"))
	chain.On("Broadcast", mock.Anything, mock.Anything).Return(domain.BroadcastResult{}, boom)

	s := newTestSender(t, chain, SenderConfig{})
	_, err := s.Send(context.Background(), testMsgs, AcceptAll)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	chain.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestSend_LockHeldIsTransient(t *testing.T) {
	chain := new(mockChain)
	s := newTestSender(t, chain, SenderConfig{Lock: heldLock{}})
	_, err := s.Send(context.Background(), testMsgs, AcceptAll)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.True(t, domain.IsTransient(err))
	chain.AssertNotCalled(t, "Account", mock.Anything, mock.Anything)
}

func TestSend_DuplicateSuppressed(t *testing.T) {
	chain := primedChain()
	chain.On("Broadcast", mock.Anything, mock.Anything).Return(domain.BroadcastResult{TxHash: "H"}, nil)

	s := newTestSender(t, chain, SenderConfig{ResubmitWindow: time.Minute})
	out, err := s.Send(context.Background(), testMsgs, AcceptAll)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, out.Status)

	out, err = s.Send(context.Background(), testMsgs, AcceptAll)
	require.NoError(t, err)
	assert.Equal(t, domain.TxDuplicate, out.Status)
	chain.AssertNumberOfCalls(t, "Broadcast", 1)
}

func TestSend_BackToBackSendsUseNextSequence(t *testing.T) {
	chain := primedChain()
	var seqs []uint64
	chain.On("Broadcast", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			seqs = append(seqs, args.Get(1).(domain.SignedTx).Tx.Account.Sequence)
		}).
		Return(domain.BroadcastResult{TxHash: "H"}, nil).Twice()

	lock := &countingLock{}
	s := newTestSender(t, chain, SenderConfig{Lock: lock, ResubmitWindow: time.Minute})
	other := []domain.Msg{
		domain.MsgSwap{Trader: "terra1me", OfferCoin: domain.NewCoin("uusd", 2_000_000), AskDenom: "uluna"},
	}

	out, err := s.Send(context.Background(), testMsgs, AcceptAll)
	require.NoError(t, err)
	require.Equal(t, domain.TxSubmitted, out.Status)
	// The LCD still reports sequence 5 until the first tx is in a block.
	out, err = s.Send(context.Background(), other, AcceptAll)
	require.NoError(t, err)
	require.Equal(t, domain.TxSubmitted, out.Status)

	assert.Equal(t, []uint64{5, 6}, seqs)
	assert.Equal(t, 2, lock.released)
}

func TestSend_WrongSequenceResets(t *testing.T) {
	chain := primedChain()
	var seqs []uint64
	record := func(args mock.Arguments) {
		seqs = append(seqs, args.Get(1).(domain.SignedTx).Tx.Account.Sequence)
	}
	chain.On("Broadcast", mock.Anything, mock.Anything).Run(record).
		Return(domain.BroadcastResult{TxHash: "A"}, nil).Once()
	chain.On("Broadcast", mock.Anything, mock.Anything).Run(record).
		Return(domain.BroadcastResult{TxHash: "B", Code: 32, RawLog: "incorrect account sequence"}, nil).Once()
	chain.On("Broadcast", mock.Anything, mock.Anything).Run(record).
		Return(domain.BroadcastResult{TxHash: "C"}, nil).Once()

	seq := NewSequences()
	s := newTestSender(t, chain, SenderConfig{Sequences: seq})
	msgs := func(n uint64) []domain.Msg {
		return []domain.Msg{domain.MsgSwap{Trader: "terra1me", OfferCoin: domain.NewCoin("uusd", n), AskDenom: "uluna"}}
	}

	for i, want := range []domain.TxStatus{domain.TxSubmitted, domain.TxFailed, domain.TxSubmitted} {
		out, err := s.Send(context.Background(), msgs(uint64(i+1)*1_000_000), AcceptAll)
		require.NoError(t, err)
		assert.Equal(t, want, out.Status)
	}
	// The first tx was dropped from the mempool: after the mismatch the
	// sender trusts the chain again.
	assert.Equal(t, []uint64{5, 6, 5}, seqs)
}

func TestSequences_ChainCatchesUp(t *testing.T) {
	seq := NewSequences()
	seq.Advance("terra1me", 5)
	assert.Equal(t, uint64(6), seq.Resolve(domain.Account{Address: "terra1me", Sequence: 5}).Sequence)
	assert.Equal(t, uint64(5), seq.Resolve(domain.Account{Address: "terra1other", Sequence: 5}).Sequence)

	assert.Equal(t, uint64(7), seq.Resolve(domain.Account{Address: "terra1me", Sequence: 7}).Sequence)
	assert.NotContains(t, seq.next, "terra1me", "a caught-up chain clears the local sequence")
}

func TestRecentTxs_Expiry(t *testing.T) {
	r := NewRecentTxs(10 * time.Second)
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	r.Mark("a")
	assert.True(t, r.Seen("a"))
	now = now.Add(11 * time.Second)
	assert.False(t, r.Seen("a"))

	r.Mark("b")
	assert.NotContains(t, r.seen, "a", "expired entries are pruned on mark")

	var disabled *RecentTxs
	assert.False(t, disabled.Seen("a"))
}
