package domain

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PoolConfig describes one tradeable AMM pair: the pool contract and the
// asset quoted against luna, a native stable or a CW20 token such as bLuna.
// It is built from configuration and never mutated.
type PoolConfig struct {
	Name        string
	PoolAddress string
	Quote       Asset
}

// QuoteDenom returns the native denom of the quote asset, or "" when the
// quote is a CW20 token.
func (p PoolConfig) QuoteDenom() string {
	if n, ok := p.Quote.(NativeToken); ok {
		return n.Denom
	}
	return ""
}

// TokenAddress returns the contract of a CW20 quote asset, or "" for a
// native quote.
func (p PoolConfig) TokenAddress() string {
	if t, ok := p.Quote.(CW20Token); ok {
		return t.ContractAddr
	}
	return ""
}

// Venue identifies where a rate quote came from.
type Venue string

const (
	VenueAMM    Venue = "amm"
	VenueMarket Venue = "market"
)

// RateQuote is a single price read: what was offered and what would be
// returned. Quotes live for one cycle.
type RateQuote struct {
	Venue  Venue
	Offer  Coin
	Return Coin
}

// Direction is the side of the peg being arbitraged.
type Direction string

const (
	// AbovePeg sells the stable into the pool and buys it back on the market.
	AbovePeg Direction = "above_peg"
	// BelowPeg buys luna on the market and sells it into the pool.
	BelowPeg Direction = "below_peg"

	// SellToken sells a luna-pegged CW20 token into its luna pool.
	SellToken Direction = "sell_token"
	// BuyToken buys the token from its luna pool with luna.
	BuyToken Direction = "buy_token"
)

// Directions lists every direction a bot can evaluate.
var Directions = []Direction{AbovePeg, BelowPeg, SellToken, BuyToken}

// ArbResult is the outcome of evaluating one direction in a cycle.
type ArbResult int

const (
	NoOpportunity ArbResult = iota
	CloseToOpportunity
	Success
)

func (r ArbResult) String() string {
	switch r {
	case Success:
		return "success"
	case CloseToOpportunity:
		return "close_to_opportunity"
	default:
		return "no_opportunity"
	}
}

// Trade carries the sizing of one arbitrage decision to the message builder.
type Trade struct {
	Offer        *uint256.Int
	StableToLuna *uint256.Int
	LunaToStable *uint256.Int
	// UaustWithdraw is the aUST amount the vault should redeem before the
	// trade; zero when idle capital is left untouched.
	UaustWithdraw *uint256.Int
}

// TokenTrade is one token pool decision: Offer goes into the pool (luna or
// the token) and Return is the quoted payout on the other side.
type TokenTrade struct {
	Offer  *uint256.Int
	Return *uint256.Int
}

// Evaluation records one direction check of one cycle.
type Evaluation struct {
	ID          string          `json:"id"`
	Bot         string          `json:"bot"`
	Direction   Direction       `json:"direction"`
	Offer       string          `json:"offer"`
	Received    string          `json:"received"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	ProfitRatio decimal.Decimal `json:"profit_ratio"`
	Result      string          `json:"result"`
	Reason      string          `json:"reason,omitempty"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
}
