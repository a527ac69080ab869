package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	if err := c.SetBytes(ctx, "a", []byte("1"), time.Second); err != nil {
		t.Fatal(err)
	}
	if err := c.SetBytes(ctx, "b", []byte("2"), 0); err != nil {
		t.Fatal(err)
	}
	if b, ok, _ := c.GetBytes(ctx, "a"); !ok || string(b) != "1" {
		t.Fatalf("get a = %q %v", b, ok)
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := c.GetBytes(ctx, "a"); ok {
		t.Fatalf("a should have expired")
	}
	if _, ok, _ := c.GetBytes(ctx, "b"); !ok {
		t.Fatalf("b has no ttl and should stay")
	}
}

func TestTTLCacheSweep(t *testing.T) {
	now := time.Now()
	c := NewTTLCache()
	c.now = func() time.Time { return now }
	c.Set("x", []byte("1"), time.Millisecond)
	c.Set("y", []byte("1"), time.Hour)
	now = now.Add(time.Second)
	if n := c.Sweep(); n != 1 {
		t.Fatalf("swept %d", n)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestTTLCacheDeletePrefix(t *testing.T) {
	c := NewTTLCache()
	ctx := context.Background()
	ethKey := PredictionKey("eth", []float64{1, 2})
	bnbKey := PredictionKey("bnb", []float64{1, 2})
	_ = c.SetBytes(ctx, ethKey, []byte("e"), time.Minute)
	_ = c.SetBytes(ctx, bnbKey, []byte("b"), time.Minute)

	if err := c.DeletePrefix(ctx, PredictionKeyPrefix("ETH")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.GetBytes(ctx, ethKey); ok {
		t.Fatalf("eth entry survived")
	}
	if _, ok, _ := c.GetBytes(ctx, bnbKey); !ok {
		t.Fatalf("bnb entry was dropped")
	}
}

func TestPredictionKey(t *testing.T) {
	a := PredictionKey("ETH", []float64{1.5, 2.5})
	b := PredictionKey("eth", []float64{1.5, 2.5})
	if a != b {
		t.Fatalf("keys differ by case: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "predict:eth:") {
		t.Fatalf("key = %s", a)
	}
	if a == PredictionKey("eth", []float64{2.5, 1.5}) {
		t.Fatalf("order must change the key")
	}
	if a == PredictionKey("eth", []float64{1.5, 2.5, 0}) {
		t.Fatalf("length must change the key")
	}
}

func TestTTLCacheMaxEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache(WithMaxEntries(2))
	c.now = func() time.Time { return now }

	c.Set("soon", []byte("1"), time.Minute)
	c.Set("later", []byte("2"), time.Hour)
	c.Set("new", []byte("3"), time.Hour)

	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
	if _, ok := c.Get("soon"); ok {
		t.Fatalf("entry closest to expiry should be evicted")
	}
	if _, ok := c.Get("later"); !ok {
		t.Fatalf("later evicted")
	}

	// overwriting an existing key never evicts
	c.Set("later", []byte("4"), time.Hour)
	if c.Len() != 2 {
		t.Fatalf("len after overwrite = %d", c.Len())
	}
}

func TestLayeredCacheBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1, l2 := NewTTLCache(), NewTTLCache()
	lc := NewLayeredCache(l1, l2, time.Second)

	_ = l2.SetBytes(ctx, "k", []byte("v"), time.Minute)
	if b, ok, err := lc.GetBytes(ctx, "k"); err != nil || !ok || string(b) != "v" {
		t.Fatalf("get = %q %v %v", b, ok, err)
	}
	if _, ok := l1.Get("k"); !ok {
		t.Fatalf("L2 hit should backfill L1")
	}

	if err := lc.SetBytes(ctx, PredictionKey("eth", []float64{1}), []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if l2.Len() != 2 || l1.Len() != 2 {
		t.Fatalf("write-through: l1=%d l2=%d", l1.Len(), l2.Len())
	}

	if err := lc.DeletePrefix(ctx, PredictionKeyPrefix("eth")); err != nil {
		t.Fatal(err)
	}
	if l2.Len() != 1 || l1.Len() != 1 {
		t.Fatalf("purge: l1=%d l2=%d", l1.Len(), l2.Len())
	}
}

func TestLayeredCacheMiss(t *testing.T) {
	lc := NewLayeredCache(NewTTLCache(), Noop{}, time.Second)
	if _, ok, err := lc.GetBytes(context.Background(), "absent"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestGenerations(t *testing.T) {
	g := NewGenerations()
	eth := g.Snapshot("ETH")
	g.Bump("bnb")
	if !g.Current("eth", eth) {
		t.Fatalf("bnb purge moved eth")
	}
	g.Bump("Eth")
	if g.Current("eth", eth) {
		t.Fatalf("eth purge not observed")
	}
	bnb := g.Snapshot("bnb")
	g.BumpAll()
	if g.Current("bnb", bnb) {
		t.Fatalf("purge of all coins not observed")
	}

	var none *Generations
	none.Bump("eth")
	none.BumpAll()
	if !none.Current("eth", none.Snapshot("eth")) {
		t.Fatalf("nil generations must never change")
	}
}
