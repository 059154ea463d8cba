package bot

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/arbitrage"
	"github.com/alanyoungcy/pegbot/internal/domain"
)

var blunaPool = domain.PoolConfig{Name: "bluna", PoolAddress: "terra1blunapool", Quote: domain.CW20Token{ContractAddr: "terra1bluna"}}

func tokenTestConfig() TokenConfig {
	return TokenConfig{
		Name:       "bluna",
		Pool:       blunaPool,
		Margin:     decimal.RequireFromString("0.0015"),
		SellMargin: decimal.RequireFromString("-0.005"),
		FixedFee:   domain.NewCoin(domain.DenomLuna, 80_000),
		Sizing: arbitrage.Sizing{
			TradeAmount: uint256.NewInt(95_000_000),
			Buffer:      decimal.RequireFromString("0.995"),
			Reserve:     uint256.NewInt(1_000_000),
		},
		GasUpdatePeriod: 10 * time.Minute,
	}
}

// poolRates quotes the token pool at fixed per-mille rates: sell is luna per
// token, buy is token per luna.
func poolRates(sell, buy uint64) AMMQuoter {
	return ammFunc(func(_ context.Context, _ domain.PoolConfig, offer domain.Asset, amount *uint256.Int) (domain.RateQuote, error) {
		rate := buy
		if offer.String() != domain.DenomLuna {
			rate = sell
		}
		out := new(uint256.Int).Mul(amount, uint256.NewInt(rate))
		out.Div(out, uint256.NewInt(1000))
		return domain.RateQuote{Venue: domain.VenueAMM, Return: domain.Coin{Amount: out}}, nil
	})
}

type tokenBalance uint64

func (b tokenBalance) CW20Balance(context.Context, string, string) (*uint256.Int, error) {
	return uint256.NewInt(uint64(b)), nil
}

func tokenBuilder(t *testing.T, mode string) arbitrage.TokenBuilder {
	t.Helper()
	b, err := arbitrage.NewTokenBuilder(mode, arbitrage.TokenConfig{
		Sender:    "terra1bot",
		Pool:      blunaPool,
		MaxSpread: "0.01",
		Hub:       "terra1hub",
		Validator: "terravaloper1val",
		LegRatio:  decimal.RequireFromString("0.995"),
	})
	require.NoError(t, err)
	return b
}

func newTokenTestBot(t *testing.T, mode string, amm AMMQuoter, tokens uint64, sender *fakeSender, rec Recorder) *TokenBot {
	return NewTokenBot(tokenTestConfig(), TokenDeps{
		AMM:      amm,
		Balances: fixedBalances(Balances{Stable: uint256.NewInt(100_000_000)}),
		Tokens:   tokenBalance(tokens),
		Builder:  tokenBuilder(t, mode),
		Sender:   sender,
		Recorder: rec,
		Logger:   discardLogger(),
	})
}

func TestTokenBot_SellsHeldTokenAtSellMargin(t *testing.T) {
	sender := &fakeSender{fee: domain.NewCoin(domain.DenomLuna, 80_000)}
	rec := &memRecorder{}
	b := newTokenTestBot(t, "token_swap", poolRates(998, 998), 100_000_000, sender, rec)

	require.NoError(t, b.RunCycle(context.Background()))

	require.Len(t, sender.sent, 1, "only the sell clears its margin")
	send := sender.sent[0][0].(domain.MsgExecuteContract)
	assert.Equal(t, "terra1bluna", send.Contract)

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Opportunities)
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, "success", stats.LastResults[domain.SellToken])
	assert.Equal(t, "no_opportunity", stats.LastResults[domain.BuyToken])

	require.Len(t, rec.evals, 2)
	assert.Equal(t, "93525000", rec.evals[0].Offer)
	assert.Equal(t, "93337950", rec.evals[0].Received)
	require.Len(t, rec.execs, 1)
	assert.Equal(t, domain.SellToken, rec.execs[0].Direction)
}

func TestTokenBot_MintedSellUsesMargin(t *testing.T) {
	sender := &fakeSender{fee: domain.NewCoin(domain.DenomLuna, 80_000)}
	b := newTokenTestBot(t, "token_hub", poolRates(998, 1010), 0, sender, nil)

	require.NoError(t, b.RunCycle(context.Background()))

	require.Len(t, sender.sent, 1, "0.998 is below the buy margin when minting")
	msgs := sender.sent[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "terra1blunapool", msgs[0].(domain.MsgExecuteContract).Contract)
	assert.Equal(t, "terra1bluna", msgs[1].(domain.MsgExecuteContract).Contract, "unbond sent through the token")
	assert.Equal(t, "success", b.Stats().LastResults[domain.BuyToken])
}

func TestTokenBot_NoHeldToken(t *testing.T) {
	sender := &fakeSender{fee: domain.NewCoin(domain.DenomLuna, 80_000)}
	rec := &memRecorder{}
	b := newTokenTestBot(t, "token_swap", poolRates(1100, 900), 0, sender, rec)

	require.NoError(t, b.RunCycle(context.Background()))

	assert.Empty(t, sender.sent)
	require.Len(t, rec.evals, 2)
	assert.Equal(t, "insufficient_funds", rec.evals[0].Reason)
}

func TestTokenBot_FeeInOtherDenomRejected(t *testing.T) {
	sender := &fakeSender{fee: domain.NewCoin("uusd", 80_000)}
	b := newTokenTestBot(t, "token_swap", poolRates(1010, 900), 100_000_000, sender, nil)

	require.NoError(t, b.RunCycle(context.Background()))

	assert.Empty(t, sender.sent)
	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Opportunities)
	assert.Equal(t, int64(1), stats.Rejected)
}
