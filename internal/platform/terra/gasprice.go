package terra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// GasPriceOracle serves per-denom gas prices from the FCD, cached for ttl.
// A miss or an expired entry triggers a refetch of the whole table.
type GasPriceOracle struct {
	fcdURL     string
	httpClient *http.Client
	cache      *expirable.LRU[string, decimal.Decimal]

	mu          sync.Mutex
	lastRefresh time.Time
}

// NewGasPriceOracle creates an oracle for the FCD at fcdURL.
func NewGasPriceOracle(fcdURL string, ttl time.Duration) *GasPriceOracle {
	return &GasPriceOracle{
		fcdURL:     strings.TrimRight(fcdURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      expirable.NewLRU[string, decimal.Decimal](64, nil, ttl),
	}
}

// Price returns the gas price of denom.
func (o *GasPriceOracle) Price(ctx context.Context, denom string) (decimal.Decimal, error) {
	if p, ok := o.cache.Get(denom); ok {
		return p, nil
	}
	if err := o.Refresh(ctx); err != nil {
		return decimal.Zero, err
	}
	p, ok := o.cache.Get(denom)
	if !ok {
		return decimal.Zero, fmt.Errorf("terra: gas price %s: %w", denom, domain.ErrNotFound)
	}
	return p, nil
}

// Refresh refetches the full gas-price table.
func (o *GasPriceOracle) Refresh(ctx context.Context) error {
	body, err := doRequest(ctx, o.httpClient, http.MethodGet, o.fcdURL+"/v1/txs/gas_prices", nil)
	if err != nil {
		return fmt.Errorf("terra: gas prices: %w", err)
	}
	var table map[string]string
	if err := json.Unmarshal(body, &table); err != nil {
		return fmt.Errorf("terra: gas prices: %w: %v", domain.ErrMalformedResponse, err)
	}

	prices := make(map[string]decimal.Decimal, len(table))
	for denom, s := range table {
		p, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("terra: gas prices: %w: %s=%q", domain.ErrMalformedResponse, denom, s)
		}
		prices[denom] = p
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache.Purge()
	for denom, p := range prices {
		o.cache.Add(denom, p)
	}
	o.lastRefresh = time.Now()
	return nil
}

// LastRefresh returns when the table was last fetched.
func (o *GasPriceOracle) LastRefresh() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRefresh
}
