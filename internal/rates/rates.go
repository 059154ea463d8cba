// Package rates quotes the two price venues a bot compares: the AMM pool
// simulation and the native market swap, plus the treasury tax rate.
package rates

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// ContractQuerier runs smart-contract queries.
type ContractQuerier interface {
	QueryContract(ctx context.Context, contract string, query any, out any) error
}

// MarketQuerier quotes native market swaps.
type MarketQuerier interface {
	MarketSwap(ctx context.Context, offer domain.Coin, askDenom string) (decimal.Decimal, error)
}

// TaxQuerier reads the treasury tax rate.
type TaxQuerier interface {
	TaxRate(ctx context.Context) (decimal.Decimal, error)
}

// AMMSource quotes terraswap pool simulations.
type AMMSource struct {
	q ContractQuerier
}

// NewAMMSource creates an AMM rate source.
func NewAMMSource(q ContractQuerier) *AMMSource {
	return &AMMSource{q: q}
}

// Quote simulates offering amount of offer into the pool and returns what the
// pool would pay out. The returned coin is denominated in the other side of
// the pair: uluna when offering the quote asset, the quote asset otherwise.
func (s *AMMSource) Quote(ctx context.Context, pool domain.PoolConfig, offer domain.Asset, amount *uint256.Int) (domain.RateQuote, error) {
	info, err := domain.AssetInfo(offer)
	if err != nil {
		return domain.RateQuote{}, fmt.Errorf("rates: amm quote: %w", err)
	}
	query := map[string]any{
		"simulation": map[string]any{
			"offer_asset": map[string]any{
				"info":   info,
				"amount": amount.Dec(),
			},
		},
	}

	var res struct {
		ReturnAmount     string `json:"return_amount"`
		SpreadAmount     string `json:"spread_amount"`
		CommissionAmount string `json:"commission_amount"`
	}
	if err := s.q.QueryContract(ctx, pool.PoolAddress, query, &res); err != nil {
		return domain.RateQuote{}, fmt.Errorf("rates: amm quote %s: %w", pool.Name, err)
	}
	ret, err := uint256.FromDecimal(res.ReturnAmount)
	if err != nil {
		return domain.RateQuote{}, fmt.Errorf("rates: amm quote %s: %w: return_amount %q", pool.Name, domain.ErrMalformedResponse, res.ReturnAmount)
	}

	askDenom := domain.DenomLuna
	if n, ok := offer.(domain.NativeToken); ok && n.Denom == domain.DenomLuna {
		askDenom = pool.Quote.String()
	}
	return domain.RateQuote{
		Venue:  domain.VenueAMM,
		Offer:  domain.Coin{Denom: offer.String(), Amount: new(uint256.Int).Set(amount)},
		Return: domain.Coin{Denom: askDenom, Amount: ret},
	}, nil
}

// MarketSource quotes the native market module.
type MarketSource struct {
	q MarketQuerier
}

// NewMarketSource creates a market rate source.
func NewMarketSource(q MarketQuerier) *MarketSource {
	return &MarketSource{q: q}
}

// Quote returns the market swap of offer into askDenom. The fractional part
// of the quoted amount is truncated toward zero.
func (s *MarketSource) Quote(ctx context.Context, offer domain.Coin, askDenom string) (domain.RateQuote, error) {
	amt, err := s.q.MarketSwap(ctx, offer, askDenom)
	if err != nil {
		return domain.RateQuote{}, fmt.Errorf("rates: market quote: %w", err)
	}
	if amt.IsNegative() {
		return domain.RateQuote{}, fmt.Errorf("rates: market quote: %w: negative amount %s", domain.ErrMalformedResponse, amt)
	}
	ret, err := uint256.FromDecimal(amt.Truncate(0).String())
	if err != nil {
		return domain.RateQuote{}, fmt.Errorf("rates: market quote: %w", err)
	}
	return domain.RateQuote{
		Venue:  domain.VenueMarket,
		Offer:  offer,
		Return: domain.Coin{Denom: askDenom, Amount: ret},
	}, nil
}

// TaxSource reads the current treasury tax rate.
type TaxSource struct {
	q TaxQuerier
}

// NewTaxSource creates a tax source.
func NewTaxSource(q TaxQuerier) *TaxSource {
	return &TaxSource{q: q}
}

// TaxRate returns the tax rate, rejecting values outside [0, 1].
func (s *TaxSource) TaxRate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := s.q.TaxRate(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates: tax rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rates: tax rate: %w: %s", domain.ErrMalformedResponse, rate)
	}
	return rate, nil
}
