package cache

import (
	"strings"
	"sync"
)

// Generations counts response-cache purges per coin. A writer takes a
// Snapshot before computing a response and skips the write when the
// snapshot is no longer Current, so a purge is never undone by a request
// that started before it. A nil *Generations never changes.
type Generations struct {
	mu   sync.Mutex
	coin map[string]uint64
	all  uint64
}

func NewGenerations() *Generations {
	return &Generations{coin: make(map[string]uint64)}
}

// Snapshot returns the purge generation of coin.
func (g *Generations) Snapshot(coin string) uint64 {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	// both counters only grow, so the sum changes whenever either does
	return g.coin[strings.ToLower(coin)] + g.all
}

// Current reports whether no purge touched coin since snap was taken.
func (g *Generations) Current(coin string, snap uint64) bool {
	return g.Snapshot(coin) == snap
}

// Bump records a purge of coin.
func (g *Generations) Bump(coin string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.coin[strings.ToLower(coin)]++
	g.mu.Unlock()
}

// BumpAll records a purge of every coin.
func (g *Generations) BumpAll() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.all++
	g.mu.Unlock()
}
