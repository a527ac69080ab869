package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"time"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// PredictionKeyPrefix returns the key prefix shared by every cached
// prediction of coin.
func PredictionKeyPrefix(coin string) string {
	return "predict:" + strings.ToLower(coin) + ":"
}

// PredictionKey derives a stable key from the coin and the exact bits of
// the price series.
func PredictionKey(coin string, prices []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, p := range prices {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p))
		h.Write(buf[:])
	}
	return PredictionKeyPrefix(coin) + hex.EncodeToString(h.Sum(nil))
}

// Noop never stores anything.
type Noop struct{}

func (Noop) GetBytes(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) SetBytes(context.Context, string, []byte, time.Duration) error { return nil }

func (Noop) DeletePrefix(context.Context, string) error { return nil }
