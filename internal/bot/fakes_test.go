package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/executor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQuotes answers both venues with fixed returns per direction. Above the
// peg the AMM receives the stable and the market receives luna. With linear
// set, returns scale with the offered amount, the fixed values being the
// returns for testOffer.
type fakeQuotes struct {
	aboveLuna, aboveBack uint64
	belowLuna, belowBack uint64
	linear               bool
	err                  error
	calls                int
}

// scaled returns v × amount / base when linear, v otherwise.
func (f *fakeQuotes) scaled(v uint64, amount *uint256.Int, base uint64) uint64 {
	if !f.linear {
		return v
	}
	out := new(uint256.Int).Mul(uint256.NewInt(v), amount)
	return out.Div(out, uint256.NewInt(base)).Uint64()
}

func (f *fakeQuotes) ammQuoter() AMMQuoter       { return ammFunc(f.amm) }
func (f *fakeQuotes) marketQuoter() MarketQuoter { return marketFunc(f.market) }

func (f *fakeQuotes) amm(_ context.Context, pool domain.PoolConfig, offer domain.Asset, amount *uint256.Int) (domain.RateQuote, error) {
	f.calls++
	if f.err != nil {
		return domain.RateQuote{}, f.err
	}
	if offer.String() == domain.DenomLuna {
		return domain.RateQuote{Venue: domain.VenueAMM,
			Offer:  domain.Coin{Denom: domain.DenomLuna, Amount: amount},
			Return: domain.NewCoin(pool.QuoteDenom(), f.scaled(f.belowBack, amount, f.belowLuna))}, nil
	}
	return domain.RateQuote{Venue: domain.VenueAMM,
		Offer:  domain.Coin{Denom: pool.QuoteDenom(), Amount: amount},
		Return: domain.NewCoin(domain.DenomLuna, f.scaled(f.aboveLuna, amount, testOffer))}, nil
}

func (f *fakeQuotes) market(_ context.Context, offer domain.Coin, askDenom string) (domain.RateQuote, error) {
	f.calls++
	if f.err != nil {
		return domain.RateQuote{}, f.err
	}
	if offer.Denom == domain.DenomLuna {
		return domain.RateQuote{Venue: domain.VenueMarket, Offer: offer,
			Return: domain.NewCoin(askDenom, f.scaled(f.aboveBack, offer.Amount, f.aboveLuna))}, nil
	}
	return domain.RateQuote{Venue: domain.VenueMarket, Offer: offer,
		Return: domain.NewCoin(askDenom, f.scaled(f.belowLuna, offer.Amount, testOffer))}, nil
}

type ammFunc func(context.Context, domain.PoolConfig, domain.Asset, *uint256.Int) (domain.RateQuote, error)

func (f ammFunc) Quote(ctx context.Context, pool domain.PoolConfig, offer domain.Asset, amount *uint256.Int) (domain.RateQuote, error) {
	return f(ctx, pool, offer, amount)
}

type marketFunc func(context.Context, domain.Coin, string) (domain.RateQuote, error)

func (f marketFunc) Quote(ctx context.Context, offer domain.Coin, askDenom string) (domain.RateQuote, error) {
	return f(ctx, offer, askDenom)
}

type zeroTax struct{}

func (zeroTax) TaxRate(context.Context) (decimal.Decimal, error) { return decimal.Zero, nil }

type fixedBalances Balances

func (b fixedBalances) Snapshot(context.Context, string, string, bool) (Balances, error) {
	return Balances(b), nil
}

// fakeSender asks accept about fee and submits when it agrees.
type fakeSender struct {
	mu   sync.Mutex
	fee  domain.Coin
	sent [][]domain.Msg
}

func (s *fakeSender) Address() string { return "terra1bot" }

func (s *fakeSender) Send(_ context.Context, msgs []domain.Msg, accept executor.AcceptFunc) (domain.TxOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fee := domain.Fee{Gas: 200_000, Amount: domain.Coins{s.fee}}
	if !accept(s.fee) {
		return domain.TxOutcome{Status: domain.TxRejected, Fee: fee}, nil
	}
	s.sent = append(s.sent, msgs)
	return domain.TxOutcome{
		Status: domain.TxSubmitted,
		Fee:    fee,
		Result: domain.BroadcastResult{TxHash: "HASH"},
	}, nil
}

type mockIdle struct {
	mock.Mock
}

func (m *mockIdle) Manage(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockGas struct {
	mock.Mock
}

func (m *mockGas) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type memRecorder struct {
	mu    sync.Mutex
	evals []domain.Evaluation
	execs []domain.Execution
}

func (r *memRecorder) RecordEvaluation(_ context.Context, e domain.Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evals = append(r.evals, e)
}

func (r *memRecorder) RecordExecution(_ context.Context, e domain.Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, e)
}
