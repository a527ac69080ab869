package cache

import (
	"context"
	"time"
)

// LayeredCache serves reads from an in-process L1 in front of a shared L2.
// Writes go to L2 first, then L1.
type LayeredCache struct {
	l1    *TTLCache
	l2    BytesCache
	l1TTL time.Duration
}

// NewLayeredCache layers l1 over l2. Entries copied into L1 live at most
// l1TTL, which bounds how stale a replica can be after another replica
// purges L2.
func NewLayeredCache(l1 *TTLCache, l2 BytesCache, l1TTL time.Duration) *LayeredCache {
	return &LayeredCache{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (lc *LayeredCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok := lc.l1.Get(key); ok {
		return b, true, nil
	}
	b, ok, err := lc.l2.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	lc.l1.Set(key, b, lc.l1TTL)
	return b, true, nil
}

func (lc *LayeredCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.l2.SetBytes(ctx, key, value, ttl); err != nil {
		return err
	}
	l1TTL := lc.l1TTL
	if ttl > 0 && (l1TTL <= 0 || ttl < l1TTL) {
		l1TTL = ttl
	}
	lc.l1.Set(key, value, l1TTL)
	return nil
}

func (lc *LayeredCache) DeletePrefix(ctx context.Context, prefix string) error {
	_ = lc.l1.DeletePrefix(ctx, prefix)
	return lc.l2.DeletePrefix(ctx, prefix)
}
