package arbitrage

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// Builder turns a sized trade into the ordered messages of one transaction.
type Builder interface {
	AbovePeg(t domain.Trade) ([]domain.Msg, error)
	BelowPeg(t domain.Trade) ([]domain.Msg, error)
	// ManagesIdleCapital reports whether the trading account parks spare
	// stable in the yield venue between trades.
	ManagesIdleCapital() bool
}

// Build dispatches to the builder method for dir.
func Build(b Builder, dir domain.Direction, t domain.Trade) ([]domain.Msg, error) {
	switch dir {
	case domain.AbovePeg:
		return b.AbovePeg(t)
	case domain.BelowPeg:
		return b.BelowPeg(t)
	default:
		return nil, fmt.Errorf("arbitrage: unknown direction %q", dir)
	}
}

// DirectBuilder trades straight against the pool and the market module from
// the wallet: two messages per direction.
type DirectBuilder struct {
	sender       string
	pool         domain.PoolConfig
	maxSpread    string
	lunaLegRatio decimal.Decimal
}

// DirectConfig configures a DirectBuilder.
type DirectConfig struct {
	Sender string
	Pool   domain.PoolConfig
	// MaxSpread is passed through to the pool swap, e.g. "0.01".
	MaxSpread string
	// LunaLegRatio scales the luna leg below the quoted amount so it never
	// exceeds what the first leg delivered.
	LunaLegRatio decimal.Decimal
}

// NewDirectBuilder creates a direct-mode builder.
func NewDirectBuilder(cfg DirectConfig) *DirectBuilder {
	return &DirectBuilder{
		sender:       cfg.Sender,
		pool:         cfg.Pool,
		maxSpread:    cfg.MaxSpread,
		lunaLegRatio: cfg.LunaLegRatio,
	}
}

// ManagesIdleCapital implements Builder.
func (b *DirectBuilder) ManagesIdleCapital() bool { return false }

// AbovePeg sells the stable into the pool for luna, then swaps that luna back
// to the stable on the market.
func (b *DirectBuilder) AbovePeg(t domain.Trade) ([]domain.Msg, error) {
	denom := b.pool.QuoteDenom()
	if denom == "" {
		return nil, fmt.Errorf("arbitrage: direct above peg %s: %w: quote must be native", b.pool.Name, domain.ErrUnknownAsset)
	}
	swap, err := swapMsg(b.pool.Quote, t.Offer, beliefPrice(t.LunaToStable, t.StableToLuna), b.maxSpread)
	if err != nil {
		return nil, err
	}
	return []domain.Msg{
		domain.MsgExecuteContract{
			Sender:     b.sender,
			Contract:   b.pool.PoolAddress,
			ExecuteMsg: swap,
			Coins:      domain.Coins{{Denom: denom, Amount: new(uint256.Int).Set(t.Offer)}},
		},
		domain.MsgSwap{
			Trader:    b.sender,
			OfferCoin: domain.Coin{Denom: domain.DenomLuna, Amount: floorMul(t.StableToLuna, b.lunaLegRatio)},
			AskDenom:  denom,
		},
	}, nil
}

// BelowPeg buys luna with the stable on the market, then sells the luna into
// the pool.
func (b *DirectBuilder) BelowPeg(t domain.Trade) ([]domain.Msg, error) {
	denom := b.pool.QuoteDenom()
	if denom == "" {
		return nil, fmt.Errorf("arbitrage: direct below peg %s: %w: quote must be native", b.pool.Name, domain.ErrUnknownAsset)
	}
	luna := floorMul(t.StableToLuna, b.lunaLegRatio)
	swap, err := swapMsg(domain.NativeToken{Denom: domain.DenomLuna}, luna, beliefPrice(t.StableToLuna, t.LunaToStable), b.maxSpread)
	if err != nil {
		return nil, err
	}
	return []domain.Msg{
		domain.MsgSwap{
			Trader:    b.sender,
			OfferCoin: domain.Coin{Denom: denom, Amount: new(uint256.Int).Set(t.Offer)},
			AskDenom:  domain.DenomLuna,
		},
		domain.MsgExecuteContract{
			Sender:     b.sender,
			Contract:   b.pool.PoolAddress,
			ExecuteMsg: swap,
			Coins:      domain.Coins{{Denom: domain.DenomLuna, Amount: luna}},
		},
	}, nil
}

// swapMsg is the terraswap pool swap of a native offer.
func swapMsg(offer domain.Asset, amount *uint256.Int, belief decimal.Decimal, maxSpread string) (json.RawMessage, error) {
	info, err := domain.AssetInfo(offer)
	if err != nil {
		return nil, fmt.Errorf("arbitrage: pool swap: %w", err)
	}
	msg := map[string]any{
		"swap": map[string]any{
			"offer_asset": map[string]any{
				"info":   info,
				"amount": amount.Dec(),
			},
			"belief_price": belief.String(),
			"max_spread":   maxSpread,
		},
	}
	return json.Marshal(msg)
}

// beliefPrice is num/den to 18 places, zero for a zero denominator.
func beliefPrice(num, den *uint256.Int) decimal.Decimal {
	if den == nil || den.IsZero() {
		return decimal.Zero
	}
	return toDecimal(num).DivRound(toDecimal(den), ratioPlaces)
}

// Schema selects the vault contract's arbitrage entrypoint format.
type Schema string

const (
	// SchemaV2 passes the aUST amount to redeem before trading.
	SchemaV2 Schema = "v2"
	// SchemaV1 passes the expected luna price instead.
	SchemaV1 Schema = "v1"
)

// ContractBuilder routes the whole trade through the vault contract: one
// message per direction.
type ContractBuilder struct {
	sender   string
	contract string
	denom    string
	schema   Schema
}

// NewContractBuilder creates a contract-mode builder.
func NewContractBuilder(sender, contract, denom string, schema Schema) *ContractBuilder {
	if schema == "" {
		schema = SchemaV2
	}
	return &ContractBuilder{sender: sender, contract: contract, denom: denom, schema: schema}
}

// ManagesIdleCapital implements Builder.
func (b *ContractBuilder) ManagesIdleCapital() bool { return b.schema == SchemaV2 }

// AbovePeg implements Builder.
func (b *ContractBuilder) AbovePeg(t domain.Trade) ([]domain.Msg, error) {
	return b.msg("above_peg", t)
}

// BelowPeg implements Builder.
func (b *ContractBuilder) BelowPeg(t domain.Trade) ([]domain.Msg, error) {
	return b.msg("below_peg", t)
}

func (b *ContractBuilder) msg(entry string, t domain.Trade) ([]domain.Msg, error) {
	body := map[string]any{
		"amount": domain.Coin{Denom: b.denom, Amount: t.Offer},
	}
	switch b.schema {
	case SchemaV2:
		withdraw := t.UaustWithdraw
		if withdraw == nil {
			withdraw = new(uint256.Int)
		}
		body["uaust_withdraw_amount"] = withdraw.Dec()
	case SchemaV1:
		price := fromDecimal(beliefPrice(t.LunaToStable, t.StableToLuna).Mul(decimal.NewFromInt(domain.Micro)))
		body["luna_price"] = domain.Coin{Denom: b.denom, Amount: price}
	default:
		return nil, fmt.Errorf("arbitrage: unknown contract schema %q", b.schema)
	}

	raw, err := json.Marshal(map[string]any{entry: body})
	if err != nil {
		return nil, fmt.Errorf("arbitrage: %s: %w", entry, err)
	}
	return []domain.Msg{
		domain.MsgExecuteContract{
			Sender:     b.sender,
			Contract:   b.contract,
			ExecuteMsg: raw,
		},
	}, nil
}
