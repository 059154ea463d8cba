package bot

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// Balances is a point-in-time read of a trading account. It is re-read on
// every use and never cached.
type Balances struct {
	Stable *uint256.Int
	Uaust  *uint256.Int
	// Rate is the aUST to UST exchange rate; zero when aUST was not read.
	Rate decimal.Decimal
}

// AUSTValue returns the stable value of the aUST balance.
func (b Balances) AUSTValue() decimal.Decimal {
	if b.Uaust == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(b.Uaust.ToBig(), 0).Mul(b.Rate)
}

// BalanceReader reads account balances.
type BalanceReader interface {
	Snapshot(ctx context.Context, account, denom string, withAUST bool) (Balances, error)
}

// ChainBalances is the subset of the LCD client the balance reader needs.
type ChainBalances interface {
	Balances(ctx context.Context, addr string) (domain.Coins, error)
	CW20Balance(ctx context.Context, token, addr string) (*uint256.Int, error)
	QueryContract(ctx context.Context, contract string, query any, out any) error
}

// LCDBalances reads balances from the chain, including the Anchor position.
type LCDBalances struct {
	chain        ChainBalances
	austToken    string
	anchorMarket string
}

// NewLCDBalances creates a balance reader. austToken and anchorMarket may be
// empty when no bot reads aUST.
func NewLCDBalances(chain ChainBalances, austToken, anchorMarket string) *LCDBalances {
	return &LCDBalances{chain: chain, austToken: austToken, anchorMarket: anchorMarket}
}

// Snapshot reads the stable balance of account and, with withAUST, its aUST
// balance and the current exchange rate.
func (l *LCDBalances) Snapshot(ctx context.Context, account, denom string, withAUST bool) (Balances, error) {
	coins, err := l.chain.Balances(ctx, account)
	if err != nil {
		return Balances{}, fmt.Errorf("bot: balances: %w", err)
	}
	out := Balances{Stable: coins.AmountOf(denom), Uaust: new(uint256.Int)}
	if !withAUST {
		return out, nil
	}
	if l.austToken == "" || l.anchorMarket == "" {
		return Balances{}, fmt.Errorf("bot: balances: anchor contracts are not configured")
	}

	out.Uaust, err = l.chain.CW20Balance(ctx, l.austToken, account)
	if err != nil {
		return Balances{}, fmt.Errorf("bot: aust balance: %w", err)
	}

	var epoch struct {
		ExchangeRate string `json:"exchange_rate"`
	}
	if err := l.chain.QueryContract(ctx, l.anchorMarket, map[string]any{"epoch_state": map[string]any{}}, &epoch); err != nil {
		return Balances{}, fmt.Errorf("bot: aust exchange rate: %w", err)
	}
	out.Rate, err = decimal.NewFromString(epoch.ExchangeRate)
	if err != nil {
		return Balances{}, fmt.Errorf("bot: aust exchange rate: %w: %q", domain.ErrMalformedResponse, epoch.ExchangeRate)
	}
	return out, nil
}
