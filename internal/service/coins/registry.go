// Package coins resolves client-supplied coin symbols to artifact locations.
package coins

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/pkg/config"
)

type entry struct {
	paths         domrepo.ArtifactPaths
	historySymbol string
}

// Registry is the closed set of coins the service can serve. It is
// immutable after construction.
type Registry struct {
	entries map[string]entry
	symbols []string
}

// NewRegistry builds a registry from configured coins. Relative artifact
// paths are joined with dir.
func NewRegistry(dir string, coins []config.Coin) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(coins))}
	for _, c := range coins {
		sym := strings.ToLower(strings.TrimSpace(c.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("coin registry: empty symbol")
		}
		if _, dup := r.entries[sym]; dup {
			return nil, fmt.Errorf("coin registry: duplicate symbol %q", sym)
		}
		if c.Model == "" || c.Scaler == "" {
			return nil, fmt.Errorf("coin registry: %s: model and scaler paths are required", sym)
		}
		hist := c.HistorySymbol
		if hist == "" {
			hist = strings.ToUpper(sym) + "USDT"
		}
		r.entries[sym] = entry{
			paths: domrepo.ArtifactPaths{
				Coin:   sym,
				Model:  resolve(dir, c.Model),
				Scaler: resolve(dir, c.Scaler),
			},
			historySymbol: hist,
		}
		r.symbols = append(r.symbols, sym)
	}
	sort.Strings(r.symbols)
	return r, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}

// Resolve lowercases coin and returns its artifact paths.
func (r *Registry) Resolve(coin string) (domrepo.ArtifactPaths, error) {
	e, ok := r.entries[strings.ToLower(coin)]
	if !ok {
		return domrepo.ArtifactPaths{}, fmt.Errorf("%w: %s", domsvc.ErrUnsupportedCoin, coin)
	}
	return e.paths, nil
}

// HistorySymbol returns the price history symbol of a registered coin.
func (r *Registry) HistorySymbol(coin string) (string, error) {
	e, ok := r.entries[strings.ToLower(coin)]
	if !ok {
		return "", fmt.Errorf("%w: %s", domsvc.ErrUnsupportedCoin, coin)
	}
	return e.historySymbol, nil
}

// Symbols returns the registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.symbols))
	copy(out, r.symbols)
	return out
}
