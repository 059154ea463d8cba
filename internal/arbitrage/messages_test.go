package arbitrage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

var testPool = domain.PoolConfig{Name: "ust", PoolAddress: "terra1pool", Quote: domain.NativeToken{Denom: "uusd"}}

func testTrade() domain.Trade {
	return domain.Trade{
		Offer:        u(93_050_000),
		StableToLuna: u(18_000_000),
		LunaToStable: u(93_600_000),
	}
}

func directBuilder() *DirectBuilder {
	return NewDirectBuilder(DirectConfig{
		Sender:       "terra1me",
		Pool:         testPool,
		MaxSpread:    "0.01",
		LunaLegRatio: d("0.995"),
	})
}

func decodeSwap(t *testing.T, raw json.RawMessage) (offerAmount, offerDenom, belief string) {
	t.Helper()
	var msg struct {
		Swap struct {
			OfferAsset struct {
				Info struct {
					NativeToken struct {
						Denom string `json:"denom"`
					} `json:"native_token"`
				} `json:"info"`
				Amount string `json:"amount"`
			} `json:"offer_asset"`
			BeliefPrice string `json:"belief_price"`
			MaxSpread   string `json:"max_spread"`
		} `json:"swap"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "0.01", msg.Swap.MaxSpread)
	return msg.Swap.OfferAsset.Amount, msg.Swap.OfferAsset.Info.NativeToken.Denom, msg.Swap.BeliefPrice
}

func TestDirectBuilder_AbovePeg(t *testing.T) {
	msgs, err := directBuilder().AbovePeg(testTrade())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	pool, ok := msgs[0].(domain.MsgExecuteContract)
	require.True(t, ok, "AMM leg first")
	assert.Equal(t, "terra1pool", pool.Contract)
	require.Len(t, pool.Coins, 1)
	assert.Equal(t, "93050000uusd", pool.Coins[0].String(), "coins equal the offer exactly")

	amount, denom, belief := decodeSwap(t, pool.ExecuteMsg)
	assert.Equal(t, "93050000", amount)
	assert.Equal(t, "uusd", denom)
	assert.Equal(t, "5.2", belief)

	market, ok := msgs[1].(domain.MsgSwap)
	require.True(t, ok)
	assert.Equal(t, "17910000uluna", market.OfferCoin.String())
	assert.Equal(t, "uusd", market.AskDenom)
}

func TestDirectBuilder_BelowPeg(t *testing.T) {
	msgs, err := directBuilder().BelowPeg(testTrade())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	market, ok := msgs[0].(domain.MsgSwap)
	require.True(t, ok, "market leg first")
	assert.Equal(t, "93050000uusd", market.OfferCoin.String())
	assert.Equal(t, "uluna", market.AskDenom)

	pool, ok := msgs[1].(domain.MsgExecuteContract)
	require.True(t, ok)
	assert.Equal(t, "17910000uluna", pool.Coins[0].String())

	amount, denom, belief := decodeSwap(t, pool.ExecuteMsg)
	assert.Equal(t, "17910000", amount)
	assert.Equal(t, "uluna", denom)
	assert.Equal(t, "0.192307692307692308", belief)
}

func TestDirectBuilder_CW20QuoteRejected(t *testing.T) {
	b := NewDirectBuilder(DirectConfig{Pool: domain.PoolConfig{Quote: domain.CW20Token{ContractAddr: "terra1tok"}}})
	_, err := b.AbovePeg(testTrade())
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
}

func TestContractBuilder_V2(t *testing.T) {
	b := NewContractBuilder("terra1me", "terra1vault", "uusd", SchemaV2)
	assert.True(t, b.ManagesIdleCapital())

	tr := testTrade()
	tr.UaustWithdraw = u(5_000_000)
	for _, dir := range []domain.Direction{domain.AbovePeg, domain.BelowPeg} {
		msgs, err := Build(b, dir, tr)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		m := msgs[0].(domain.MsgExecuteContract)
		assert.Equal(t, "terra1vault", m.Contract)
		assert.Empty(t, m.Coins)
		assert.JSONEq(t,
			`{"`+string(dir)+`":{"amount":{"denom":"uusd","amount":"93050000"},"uaust_withdraw_amount":"5000000"}}`,
			string(m.ExecuteMsg))
	}
}

func TestContractBuilder_V1(t *testing.T) {
	b := NewContractBuilder("terra1me", "terra1vault", "uusd", SchemaV1)
	assert.False(t, b.ManagesIdleCapital())

	msgs, err := b.AbovePeg(testTrade())
	require.NoError(t, err)
	m := msgs[0].(domain.MsgExecuteContract)
	assert.JSONEq(t,
		`{"above_peg":{"amount":{"denom":"uusd","amount":"93050000"},"luna_price":{"denom":"uusd","amount":"5200000"}}}`,
		string(m.ExecuteMsg))
}

func TestAnchorMsgs(t *testing.T) {
	dep, err := AnchorDepositMsg("terra1me", "terra1vault", u(42))
	require.NoError(t, err)
	assert.JSONEq(t, `{"anchor_deposit":{"amount":{"denom":"uusd","amount":"42"}}}`,
		string(dep.(domain.MsgExecuteContract).ExecuteMsg))

	wd, err := AnchorWithdrawMsg("terra1me", "terra1vault", u(7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"anchor_withdraw":{"amount":"7"}}`, string(wd.(domain.MsgExecuteContract).ExecuteMsg))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"contract", "direct"}, r.List())

	b, err := r.New("direct", BuilderConfig{Pool: testPool, LunaLegRatio: d("0.995")})
	require.NoError(t, err)
	assert.False(t, b.ManagesIdleCapital())

	_, err = r.New("contract", BuilderConfig{Pool: testPool})
	assert.Error(t, err, "contract address required")

	_, err = r.New("flash", BuilderConfig{})
	assert.Error(t, err)
}
