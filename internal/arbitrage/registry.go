package arbitrage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// BuilderConfig carries everything any builder needs; each factory reads the
// fields that apply to it.
type BuilderConfig struct {
	Sender       string
	Pool         domain.PoolConfig
	Contract     string
	Schema       Schema
	MaxSpread    string
	LunaLegRatio decimal.Decimal
}

// Factory creates a Builder from config.
type Factory func(cfg BuilderConfig) (Builder, error)

// Registry holds named builder factories for selection by config.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add factories.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the "direct" and "contract" modes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("direct", func(cfg BuilderConfig) (Builder, error) {
		if cfg.Pool.PoolAddress == "" {
			return nil, fmt.Errorf("arbitrage: direct builder: pool address is required")
		}
		return NewDirectBuilder(DirectConfig{
			Sender:       cfg.Sender,
			Pool:         cfg.Pool,
			MaxSpread:    cfg.MaxSpread,
			LunaLegRatio: cfg.LunaLegRatio,
		}), nil
	})
	r.Register("contract", func(cfg BuilderConfig) (Builder, error) {
		if cfg.Contract == "" {
			return nil, fmt.Errorf("arbitrage: contract builder: contract address is required")
		}
		denom := cfg.Pool.QuoteDenom()
		if denom == "" {
			return nil, fmt.Errorf("arbitrage: contract builder: %w: quote must be native", domain.ErrUnknownAsset)
		}
		return NewContractBuilder(cfg.Sender, cfg.Contract, denom, cfg.Schema), nil
	})
	return r
}

// Register adds a factory under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the builder registered under name.
func (r *Registry) New(name string, cfg BuilderConfig) (Builder, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("arbitrage: builder mode %q not found", name)
	}
	return f(cfg)
}

// List returns all registered mode names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
