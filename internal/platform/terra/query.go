package terra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// QueryContract runs a smart-contract query and decodes the result into out.
func (c *Client) QueryContract(ctx context.Context, contract string, query any, out any) error {
	q, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("terra: query contract %s: marshal: %w", contract, err)
	}
	path := fmt.Sprintf("/wasm/contracts/%s/store?query_msg=%s", url.PathEscape(contract), url.QueryEscape(string(q)))

	raw, err := getResult[json.RawMessage](ctx, c, path)
	if err != nil {
		return fmt.Errorf("terra: query contract %s: %w", contract, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("terra: query contract %s: %w: %v", contract, domain.ErrMalformedResponse, err)
	}
	return nil
}

// Balances returns the bank balances of addr.
func (c *Client) Balances(ctx context.Context, addr string) (domain.Coins, error) {
	coins, err := getResult[domain.Coins](ctx, c, "/bank/balances/"+url.PathEscape(addr))
	if err != nil {
		return nil, fmt.Errorf("terra: balances %s: %w", addr, err)
	}
	return coins, nil
}

// MarketSwap returns the amount of askDenom the market module would pay for
// offer. The LCD reports a decimal amount; callers truncate as needed.
func (c *Client) MarketSwap(ctx context.Context, offer domain.Coin, askDenom string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("offer_coin", offer.String())
	params.Set("ask_denom", askDenom)

	res, err := getResult[decCoin](ctx, c, "/market/swap?"+params.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("terra: market swap %s->%s: %w", offer, askDenom, err)
	}
	if res.Denom != askDenom {
		return decimal.Zero, fmt.Errorf("terra: market swap: %w: got denom %q", domain.ErrMalformedResponse, res.Denom)
	}
	amt, err := decimal.NewFromString(res.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("terra: market swap: %w: amount %q", domain.ErrMalformedResponse, res.Amount)
	}
	return amt, nil
}

// TaxRate returns the treasury tax rate.
func (c *Client) TaxRate(ctx context.Context) (decimal.Decimal, error) {
	s, err := getResult[string](ctx, c, "/treasury/tax_rate")
	if err != nil {
		return decimal.Zero, fmt.Errorf("terra: tax rate: %w", err)
	}
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("terra: tax rate: %w: %q", domain.ErrMalformedResponse, s)
	}
	return rate, nil
}

// MarketParams holds the market module parameters the bots report.
type MarketParams struct {
	BasePool           decimal.Decimal
	PoolRecoveryPeriod uint64
	MinSpread          decimal.Decimal
}

// MarketParameters returns the market module parameters.
func (c *Client) MarketParameters(ctx context.Context) (MarketParams, error) {
	res, err := getResult[struct {
		BasePool           string     `json:"base_pool"`
		PoolRecoveryPeriod uintString `json:"pool_recovery_period"`
		MinSpread          string     `json:"min_spread"`
	}](ctx, c, "/market/parameters")
	if err != nil {
		return MarketParams{}, fmt.Errorf("terra: market parameters: %w", err)
	}
	out := MarketParams{PoolRecoveryPeriod: uint64(res.PoolRecoveryPeriod)}
	if out.MinSpread, err = decimal.NewFromString(res.MinSpread); err != nil {
		return MarketParams{}, fmt.Errorf("terra: market parameters: %w: min_spread %q", domain.ErrMalformedResponse, res.MinSpread)
	}
	if res.BasePool != "" {
		if out.BasePool, err = decimal.NewFromString(res.BasePool); err != nil {
			return MarketParams{}, fmt.Errorf("terra: market parameters: %w: base_pool %q", domain.ErrMalformedResponse, res.BasePool)
		}
	}
	return out, nil
}

// TobinTax returns the oracle tobin tax of denom, zero when the denom is not
// whitelisted.
func (c *Client) TobinTax(ctx context.Context, denom string) (decimal.Decimal, error) {
	res, err := getResult[struct {
		Whitelist []struct {
			Name     string `json:"name"`
			TobinTax string `json:"tobin_tax"`
		} `json:"whitelist"`
	}](ctx, c, "/oracle/parameters")
	if err != nil {
		return decimal.Zero, fmt.Errorf("terra: oracle parameters: %w", err)
	}
	for _, w := range res.Whitelist {
		if w.Name != denom {
			continue
		}
		tax, err := decimal.NewFromString(w.TobinTax)
		if err != nil {
			return decimal.Zero, fmt.Errorf("terra: tobin tax %s: %w: %q", denom, domain.ErrMalformedResponse, w.TobinTax)
		}
		return tax, nil
	}
	return decimal.Zero, nil
}

// Account returns the account number and sequence of addr.
func (c *Client) Account(ctx context.Context, addr string) (domain.Account, error) {
	res, err := getResult[struct {
		Type  string `json:"type"`
		Value struct {
			Address       string     `json:"address"`
			AccountNumber uintString `json:"account_number"`
			Sequence      uintString `json:"sequence"`
		} `json:"value"`
	}](ctx, c, "/auth/accounts/"+url.PathEscape(addr))
	if err != nil {
		return domain.Account{}, fmt.Errorf("terra: account %s: %w", addr, err)
	}
	if res.Value.Address != "" && res.Value.Address != addr {
		return domain.Account{}, fmt.Errorf("terra: account %s: %w: got address %s", addr, domain.ErrMalformedResponse, res.Value.Address)
	}
	return domain.Account{
		Address:       addr,
		AccountNumber: uint64(res.Value.AccountNumber),
		Sequence:      uint64(res.Value.Sequence),
	}, nil
}

// CW20Balance returns the CW20 token balance of addr.
func (c *Client) CW20Balance(ctx context.Context, token, addr string) (*uint256.Int, error) {
	var res struct {
		Balance string `json:"balance"`
	}
	if err := c.QueryContract(ctx, token, map[string]any{"balance": map[string]string{"address": addr}}, &res); err != nil {
		return nil, err
	}
	amt, err := uint256.FromDecimal(res.Balance)
	if err != nil {
		return nil, fmt.Errorf("terra: cw20 balance: %w: %q", domain.ErrMalformedResponse, res.Balance)
	}
	return amt, nil
}

type decCoin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}
