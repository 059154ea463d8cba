package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Well-known native denominations.
const (
	DenomLuna = "uluna"
	DenomUST  = "uusd"
	DenomKRT  = "ukrw"
)

// Micro is the number of micro-units in one whole token.
const Micro = 1_000_000

// Asset is either a native chain denomination or a CW20 token contract. The
// two variants are encoded differently in contract requests, so every
// encoding site must switch over both.
type Asset interface {
	isAsset()
	String() string
}

// NativeToken is a bank-module denomination such as "uusd".
type NativeToken struct {
	Denom string
}

// CW20Token is a token implemented by a CW20 contract.
type CW20Token struct {
	ContractAddr string
}

func (NativeToken) isAsset() {}
func (CW20Token) isAsset()   {}

func (n NativeToken) String() string { return n.Denom }
func (c CW20Token) String() string   { return c.ContractAddr }

// AssetInfo returns the terraswap "info" object for a.
func AssetInfo(a Asset) (map[string]any, error) {
	switch v := a.(type) {
	case NativeToken:
		return map[string]any{"native_token": map[string]string{"denom": v.Denom}}, nil
	case CW20Token:
		return map[string]any{"token": map[string]string{"contract_addr": v.ContractAddr}}, nil
	default:
		return nil, fmt.Errorf("asset info %T: %w", a, ErrUnknownAsset)
	}
}

// ParseAsset interprets s as a contract address when it carries the chain's
// bech32 account prefix and as a native denom otherwise.
func ParseAsset(s string) Asset {
	if strings.HasPrefix(s, "terra1") {
		return CW20Token{ContractAddr: s}
	}
	return NativeToken{Denom: s}
}

// Coin is an integer amount of a native denomination.
type Coin struct {
	Denom  string
	Amount *uint256.Int
}

// NewCoin builds a Coin from a uint64 amount.
func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: uint256.NewInt(amount)}
}

// ParseCoin parses the "<amount><denom>" form used by the chain, e.g.
// "80000uusd".
func ParseCoin(s string) (Coin, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return Coin{}, fmt.Errorf("parse coin %q: %w", s, ErrInvalidAmount)
	}
	amt, err := uint256.FromDecimal(s[:i])
	if err != nil {
		return Coin{}, fmt.Errorf("parse coin %q: %w", s, err)
	}
	return Coin{Denom: s[i:], Amount: amt}, nil
}

// AmountString returns the decimal amount, "0" for a nil amount.
func (c Coin) AmountString() string {
	if c.Amount == nil {
		return "0"
	}
	return c.Amount.Dec()
}

func (c Coin) String() string {
	return c.AmountString() + c.Denom
}

// IsZero reports whether the coin carries no amount.
func (c Coin) IsZero() bool {
	return c.Amount == nil || c.Amount.IsZero()
}

// MarshalJSON encodes the coin the way the chain expects it.
func (c Coin) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"denom": c.Denom, "amount": c.AmountString()})
}

// UnmarshalJSON decodes {"denom": ..., "amount": "..."}.
func (c *Coin) UnmarshalJSON(data []byte) error {
	var raw struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amt, err := uint256.FromDecimal(raw.Amount)
	if err != nil {
		return fmt.Errorf("coin amount %q: %w", raw.Amount, err)
	}
	c.Denom = raw.Denom
	c.Amount = amt
	return nil
}

// Coins is an ordered list of coins.
type Coins []Coin

// AmountOf returns the amount of denom, zero when absent.
func (cs Coins) AmountOf(denom string) *uint256.Int {
	for _, c := range cs {
		if c.Denom == denom && c.Amount != nil {
			return new(uint256.Int).Set(c.Amount)
		}
	}
	return new(uint256.Int)
}
