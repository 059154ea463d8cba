package arbitrage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

var blunaPool = domain.PoolConfig{Name: "bluna", PoolAddress: "terra1blunapool", Quote: domain.CW20Token{ContractAddr: "terra1bluna"}}

func tokenConfig() TokenConfig {
	return TokenConfig{
		Sender:    "terra1me",
		Pool:      blunaPool,
		MaxSpread: "0.01",
		Hub:       "terra1hub",
		Validator: "terravaloper1val",
		LegRatio:  d("0.995"),
	}
}

// decodeSend unpacks a cw20 send and its base64 hook.
func decodeSend(t *testing.T, raw json.RawMessage) (contract, amount string, hook map[string]any) {
	t.Helper()
	var msg struct {
		Send struct {
			Contract string `json:"contract"`
			Amount   string `json:"amount"`
			Msg      []byte `json:"msg"`
		} `json:"send"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.NoError(t, json.Unmarshal(msg.Send.Msg, &hook))
	return msg.Send.Contract, msg.Send.Amount, hook
}

func TestTokenSwapBuilder_SellToken(t *testing.T) {
	b, err := NewTokenBuilder("token_swap", tokenConfig())
	require.NoError(t, err)
	assert.False(t, b.MintsToken())

	msgs, err := BuildToken(b, domain.SellToken, domain.TokenTrade{Offer: u(100_000_000), Return: u(102_000_000)})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	send := msgs[0].(domain.MsgExecuteContract)
	assert.Equal(t, "terra1bluna", send.Contract, "executed on the token contract")
	assert.Empty(t, send.Coins)

	contract, amount, hook := decodeSend(t, send.ExecuteMsg)
	assert.Equal(t, "terra1blunapool", contract)
	assert.Equal(t, "100000000", amount)
	swap := hook["swap"].(map[string]any)
	assert.Equal(t, "0.980392156862745098", swap["belief_price"])
	assert.Equal(t, "0.01", swap["max_spread"])
}

func TestTokenSwapBuilder_BuyToken(t *testing.T) {
	b, err := NewTokenBuilder("token_swap", tokenConfig())
	require.NoError(t, err)

	msgs, err := BuildToken(b, domain.BuyToken, domain.TokenTrade{Offer: u(50_000_000), Return: u(51_000_000)})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	pool := msgs[0].(domain.MsgExecuteContract)
	assert.Equal(t, "terra1blunapool", pool.Contract)
	require.Len(t, pool.Coins, 1)
	assert.Equal(t, "50000000uluna", pool.Coins[0].String())

	amount, denom, _ := decodeSwap(t, pool.ExecuteMsg)
	assert.Equal(t, "50000000", amount)
	assert.Equal(t, "uluna", denom)
}

func TestTokenHubBuilder_SellToken(t *testing.T) {
	b, err := NewTokenBuilder("token_hub", tokenConfig())
	require.NoError(t, err)
	assert.True(t, b.MintsToken())

	msgs, err := b.SellToken(domain.TokenTrade{Offer: u(100_000_000), Return: u(102_000_000)})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	bond := msgs[0].(domain.MsgExecuteContract)
	assert.Equal(t, "terra1hub", bond.Contract, "bond first")
	assert.JSONEq(t, `{"bond":{"validator":"terravaloper1val"}}`, string(bond.ExecuteMsg))
	assert.Equal(t, "100000000uluna", bond.Coins[0].String())

	send := msgs[1].(domain.MsgExecuteContract)
	assert.Equal(t, "terra1bluna", send.Contract)
	contract, amount, hook := decodeSend(t, send.ExecuteMsg)
	assert.Equal(t, "terra1blunapool", contract)
	assert.Equal(t, "99500000", amount, "minted amount scaled by the leg ratio")
	assert.Contains(t, hook, "swap")
}

func TestTokenHubBuilder_BuyToken(t *testing.T) {
	b, err := NewTokenBuilder("token_hub", tokenConfig())
	require.NoError(t, err)

	msgs, err := b.BuyToken(domain.TokenTrade{Offer: u(50_000_000), Return: u(51_000_000)})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	pool := msgs[0].(domain.MsgExecuteContract)
	assert.Equal(t, "terra1blunapool", pool.Contract, "buy first")
	assert.Equal(t, "50000000uluna", pool.Coins[0].String())

	unbond := msgs[1].(domain.MsgExecuteContract)
	assert.Equal(t, "terra1bluna", unbond.Contract)
	contract, amount, hook := decodeSend(t, unbond.ExecuteMsg)
	assert.Equal(t, "terra1hub", contract)
	assert.Equal(t, "50745000", amount)
	assert.Equal(t, map[string]any{"unbond": map[string]any{}}, hook)
}

func TestNewTokenBuilder_Rejects(t *testing.T) {
	cfg := tokenConfig()
	cfg.Pool = testPool
	_, err := NewTokenBuilder("token_swap", cfg)
	assert.ErrorIs(t, err, domain.ErrUnknownAsset, "native quote")

	cfg = tokenConfig()
	cfg.Hub = ""
	_, err = NewTokenBuilder("token_hub", cfg)
	assert.Error(t, err)

	_, err = NewTokenBuilder("direct", tokenConfig())
	assert.Error(t, err)

	b, err := NewTokenBuilder("token_swap", tokenConfig())
	require.NoError(t, err)
	_, err = BuildToken(b, domain.AbovePeg, domain.TokenTrade{Offer: u(1), Return: u(1)})
	assert.Error(t, err)
}
