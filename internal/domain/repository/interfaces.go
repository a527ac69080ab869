package repository

import (
	"context"
	"time"

	"CoinCast/internal/domain/models"
	domsvc "CoinCast/internal/domain/service"
)

// ArtifactPaths locates the paired model and scaler files of a coin.
type ArtifactPaths struct {
	Coin   string
	Model  string
	Scaler string
}

// ArtifactBundle is a loaded model with the scaler it was fitted with.
type ArtifactBundle struct {
	Coin     string
	Model    domsvc.Forecaster
	Scaler   domsvc.Scaler
	LoadedAt time.Time
}

// ArtifactLoader reads and decodes the artifacts of a coin.
type ArtifactLoader interface {
	Load(ctx context.Context, p ArtifactPaths) (*ArtifactBundle, error)
}

// ArtifactInvalidator drops cached artifacts.
type ArtifactInvalidator interface {
	Invalidate(coin string)
	InvalidateAll()
}

// ArtifactEventPublisher announces artifact changes to other processes.
type ArtifactEventPublisher interface {
	// PublishArtifactEvents sends evs in one write; either all are
	// accepted or an error is returned.
	PublishArtifactEvents(ctx context.Context, evs ...models.ArtifactEvent) error
	Close() error
}

// FeatureStore provides read-only access to stored candles.
type FeatureStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
}

type Metrics interface {
	RecordPrediction(coin, source string)
	RecordLastPrediction(coin string, price float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordCacheLookup(cache string, hit bool)
}
