package arbitrage

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// TokenBuilder builds the transactions of a bot trading a luna-pegged CW20
// token, such as bLuna, against luna in a single pool.
type TokenBuilder interface {
	SellToken(t domain.TokenTrade) ([]domain.Msg, error)
	BuyToken(t domain.TokenTrade) ([]domain.Msg, error)
	// MintsToken reports whether the sell side bonds luna into the token
	// first. Otherwise it sells token the account already holds.
	MintsToken() bool
}

// BuildToken dispatches to the builder method for dir.
func BuildToken(b TokenBuilder, dir domain.Direction, t domain.TokenTrade) ([]domain.Msg, error) {
	switch dir {
	case domain.SellToken:
		return b.SellToken(t)
	case domain.BuyToken:
		return b.BuyToken(t)
	default:
		return nil, fmt.Errorf("arbitrage: unknown token direction %q", dir)
	}
}

// TokenConfig configures the token builders.
type TokenConfig struct {
	Sender    string
	Pool      domain.PoolConfig
	MaxSpread string
	// Hub and Validator are the token's bonding contract and the validator
	// bonded luna is delegated to. Hub builders only.
	Hub       string
	Validator string
	// LegRatio scales the token forwarded by the second message of a hub
	// trade below the quoted amount so it never exceeds what arrived.
	LegRatio decimal.Decimal
}

// NewTokenBuilder returns the builder for a token pool mode: "token_swap"
// or "token_hub".
func NewTokenBuilder(mode string, cfg TokenConfig) (TokenBuilder, error) {
	if cfg.Pool.PoolAddress == "" {
		return nil, fmt.Errorf("arbitrage: token builder: pool address is required")
	}
	if cfg.Pool.TokenAddress() == "" {
		return nil, fmt.Errorf("arbitrage: token builder %s: %w: quote must be a CW20 token", cfg.Pool.Name, domain.ErrUnknownAsset)
	}
	switch mode {
	case "token_swap":
		return &TokenSwapBuilder{cfg: cfg}, nil
	case "token_hub":
		if cfg.Hub == "" || cfg.Validator == "" {
			return nil, fmt.Errorf("arbitrage: token hub builder: hub and validator are required")
		}
		return &TokenHubBuilder{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("arbitrage: token builder mode %q not found", mode)
	}
}

// TokenSwapBuilder swaps held token into the pool for luna and buys it back
// with luna.
type TokenSwapBuilder struct {
	cfg TokenConfig
}

// MintsToken implements TokenBuilder.
func (b *TokenSwapBuilder) MintsToken() bool { return false }

// SellToken sends the token to the pool with a swap hook.
func (b *TokenSwapBuilder) SellToken(t domain.TokenTrade) ([]domain.Msg, error) {
	msg, err := sendToPool(b.cfg, t.Offer, beliefPrice(t.Offer, t.Return))
	if err != nil {
		return nil, err
	}
	return []domain.Msg{msg}, nil
}

// BuyToken offers luna to the pool.
func (b *TokenSwapBuilder) BuyToken(t domain.TokenTrade) ([]domain.Msg, error) {
	msg, err := lunaIntoPool(b.cfg, t)
	if err != nil {
		return nil, err
	}
	return []domain.Msg{msg}, nil
}

// TokenHubBuilder arbitrages the pool against the token's hub: it mints the
// token by bonding luna and sells it into the pool, or buys the token in the
// pool and unbonds it. Bonding and unbonding are assumed to be one to one.
type TokenHubBuilder struct {
	cfg TokenConfig
}

// MintsToken implements TokenBuilder.
func (b *TokenHubBuilder) MintsToken() bool { return true }

// SellToken bonds the offered luna at the hub, then sends the minted token
// to the pool.
func (b *TokenHubBuilder) SellToken(t domain.TokenTrade) ([]domain.Msg, error) {
	bond, err := json.Marshal(map[string]any{
		"bond": map[string]any{"validator": b.cfg.Validator},
	})
	if err != nil {
		return nil, fmt.Errorf("arbitrage: bond: %w", err)
	}
	minted := floorMul(t.Offer, b.cfg.LegRatio)
	send, err := sendToPool(b.cfg, minted, beliefPrice(minted, t.Return))
	if err != nil {
		return nil, err
	}
	return []domain.Msg{
		domain.MsgExecuteContract{
			Sender:     b.cfg.Sender,
			Contract:   b.cfg.Hub,
			ExecuteMsg: bond,
			Coins:      domain.Coins{{Denom: domain.DenomLuna, Amount: new(uint256.Int).Set(t.Offer)}},
		},
		send,
	}, nil
}

// BuyToken buys the token with luna, then sends it to the hub to unbond.
func (b *TokenHubBuilder) BuyToken(t domain.TokenTrade) ([]domain.Msg, error) {
	buy, err := lunaIntoPool(b.cfg, t)
	if err != nil {
		return nil, err
	}
	unbond, err := cw20Send(b.cfg, b.cfg.Hub, floorMul(t.Return, b.cfg.LegRatio), map[string]any{"unbond": map[string]any{}})
	if err != nil {
		return nil, err
	}
	return []domain.Msg{buy, unbond}, nil
}

func lunaIntoPool(cfg TokenConfig, t domain.TokenTrade) (domain.MsgExecuteContract, error) {
	swap, err := swapMsg(domain.NativeToken{Denom: domain.DenomLuna}, t.Offer, beliefPrice(t.Offer, t.Return), cfg.MaxSpread)
	if err != nil {
		return domain.MsgExecuteContract{}, err
	}
	return domain.MsgExecuteContract{
		Sender:     cfg.Sender,
		Contract:   cfg.Pool.PoolAddress,
		ExecuteMsg: swap,
		Coins:      domain.Coins{{Denom: domain.DenomLuna, Amount: new(uint256.Int).Set(t.Offer)}},
	}, nil
}

func sendToPool(cfg TokenConfig, amount *uint256.Int, belief decimal.Decimal) (domain.MsgExecuteContract, error) {
	return cw20Send(cfg, cfg.Pool.PoolAddress, amount, map[string]any{
		"swap": map[string]any{
			"belief_price": belief.String(),
			"max_spread":   cfg.MaxSpread,
		},
	})
}

// cw20Send transfers amount of the token to contract and runs hook there.
// The hook travels base64 encoded, which encoding/json does for []byte.
func cw20Send(cfg TokenConfig, contract string, amount *uint256.Int, hook any) (domain.MsgExecuteContract, error) {
	inner, err := json.Marshal(hook)
	if err != nil {
		return domain.MsgExecuteContract{}, fmt.Errorf("arbitrage: cw20 hook: %w", err)
	}
	raw, err := json.Marshal(map[string]any{
		"send": map[string]any{
			"contract": contract,
			"amount":   amount.Dec(),
			"msg":      inner,
		},
	})
	if err != nil {
		return domain.MsgExecuteContract{}, fmt.Errorf("arbitrage: cw20 send: %w", err)
	}
	return domain.MsgExecuteContract{
		Sender:     cfg.Sender,
		Contract:   cfg.Pool.TokenAddress(),
		ExecuteMsg: raw,
	}, nil
}
