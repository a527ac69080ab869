package repository

import (
	"context"
	"strings"
	"sync"

	domrepo "CoinCast/internal/domain/repository"
	applogger "CoinCast/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// CachedArtifactLoader keeps loaded bundles in memory until invalidated.
// Concurrent misses for the same coin share one load. Failed loads are
// not cached.
type CachedArtifactLoader struct {
	next    domrepo.ArtifactLoader
	l       *applogger.Logger
	metrics domrepo.Metrics

	mu      sync.RWMutex
	bundles map[string]*domrepo.ArtifactBundle
	// gen and epoch are bumped on invalidation so a load that started
	// earlier does not repopulate a dropped entry.
	gen   map[string]uint64
	epoch uint64
	group singleflight.Group
}

func NewCachedArtifactLoader(next domrepo.ArtifactLoader, l *applogger.Logger, m domrepo.Metrics) *CachedArtifactLoader {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedArtifactLoader{
		next:    next,
		l:       l,
		metrics: m,
		bundles: make(map[string]*domrepo.ArtifactBundle),
		gen:     make(map[string]uint64),
	}
}

func (c *CachedArtifactLoader) Load(ctx context.Context, p domrepo.ArtifactPaths) (*domrepo.ArtifactBundle, error) {
	key := strings.ToLower(p.Coin)

	c.mu.RLock()
	b, ok := c.bundles[key]
	gen, epoch := c.gen[key], c.epoch
	c.mu.RUnlock()
	c.record(ok)
	if ok {
		return b, nil
	}

	// the flight is shared, so one caller going away must not fail the rest
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		b, err := c.next.Load(loadCtx, p)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen[key] == gen && c.epoch == epoch {
			c.bundles[key] = b
		}
		c.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domrepo.ArtifactBundle), nil
}

// Invalidate drops the cached bundle of coin.
func (c *CachedArtifactLoader) Invalidate(coin string) {
	key := strings.ToLower(coin)
	c.mu.Lock()
	delete(c.bundles, key)
	c.gen[key]++
	c.mu.Unlock()
	c.group.Forget(key)
	c.l.Info("artifact cache invalidated", applogger.String("coin", key))
}

// InvalidateAll drops every cached bundle.
func (c *CachedArtifactLoader) InvalidateAll() {
	c.mu.Lock()
	for key := range c.bundles {
		c.group.Forget(key)
	}
	c.epoch++
	c.bundles = make(map[string]*domrepo.ArtifactBundle)
	c.mu.Unlock()
	c.l.Info("artifact cache cleared")
}

// Len returns the number of cached bundles.
func (c *CachedArtifactLoader) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bundles)
}

func (c *CachedArtifactLoader) record(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup("artifact", hit)
	}
}

// NoopInvalidator is used when the artifact cache is disabled.
type NoopInvalidator struct{}

func (NoopInvalidator) Invalidate(string) {}

func (NoopInvalidator) InvalidateAll() {}
