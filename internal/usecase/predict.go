package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/services/inference"
	applogger "CoinCast/pkg/logger"
)

// CoinResolver maps a client symbol to the artifacts and history symbol of a coin.
type CoinResolver interface {
	Resolve(coin string) (domrepo.ArtifactPaths, error)
	HistorySymbol(coin string) (string, error)
	Symbols() []string
}

// HistoryOptions configures prediction from stored candles.
type HistoryOptions struct {
	Timeframes       domrepo.TimeframeSet
	DefaultTimeframe domrepo.Timeframe
	MaxCandles       int
}

const (
	SourceRequest = "request"
	SourceHistory = "history"
	SourceCache   = "cache"
)

// PredictUseCase validates input, loads the coin's artifacts and runs the
// inference pipeline. It keeps no per-request state.
type PredictUseCase struct {
	lookBack int
	coins    CoinResolver
	loader   domrepo.ArtifactLoader
	store    domrepo.FeatureStore
	history  HistoryOptions
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

// NewPredictUseCase wires the prediction flow. store may be nil, in which
// case history prediction reports ErrHistoryDisabled.
func NewPredictUseCase(lookBack int, coins CoinResolver, loader domrepo.ArtifactLoader, store domrepo.FeatureStore, history HistoryOptions, m domrepo.Metrics, l *applogger.Logger) *PredictUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &PredictUseCase{
		lookBack: lookBack,
		coins:    coins,
		loader:   loader,
		store:    store,
		history:  history,
		metrics:  m,
		l:        l,
	}
}

func (u *PredictUseCase) LookBack() int { return u.lookBack }

// Coins returns the supported symbols.
func (u *PredictUseCase) Coins() []string { return u.coins.Symbols() }

// Predict checks the series length first, then the coin, then loads
// artifacts and runs inference.
func (u *PredictUseCase) Predict(ctx context.Context, coin string, prices []float64) ([]float64, error) {
	if len(prices) < u.lookBack {
		u.recordError("insufficient_prices")
		return nil, fmt.Errorf("%w: got %d, need %d", domsvc.ErrInsufficientPrices, len(prices), u.lookBack)
	}
	paths, err := u.coins.Resolve(coin)
	if err != nil {
		u.recordError("unsupported_coin")
		return nil, err
	}
	return u.run(ctx, paths, prices, SourceRequest)
}

// PredictLatest predicts from the newest stored candles of coin.
func (u *PredictUseCase) PredictLatest(ctx context.Context, req models.LatestPredictRequest) (*models.LatestPrediction, error) {
	if u.store == nil {
		return nil, domsvc.ErrHistoryDisabled
	}
	paths, err := u.coins.Resolve(req.Coin)
	if err != nil {
		u.recordError("unsupported_coin")
		return nil, err
	}
	tf := domrepo.NormalizeTimeframe(strings.ToLower(req.TF), u.history.DefaultTimeframe)
	if !u.history.Timeframes.IsValid(tf) {
		return nil, fmt.Errorf("%w: %s", domsvc.ErrUnsupportedTimeframe, tf)
	}
	n := req.N
	if n == 0 {
		n = u.lookBack
	}
	if n < u.lookBack {
		return nil, fmt.Errorf("%w: n=%d, need %d", domsvc.ErrInsufficientPrices, n, u.lookBack)
	}
	if u.history.MaxCandles > 0 && n > u.history.MaxCandles {
		n = u.history.MaxCandles
	}
	symbol, err := u.coins.HistorySymbol(paths.Coin)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	candles, err := u.store.GetLatestNCandles(ctx, symbol, n, tf)
	u.recordLatency("history_fetch", start)
	if err != nil {
		u.recordError("history_fetch")
		return nil, fmt.Errorf("load history %s/%s: %w", symbol, tf, err)
	}
	if len(candles) < u.lookBack {
		return nil, fmt.Errorf("%w: %d candles stored for %s, need %d", domsvc.ErrInsufficientPrices, len(candles), symbol, u.lookBack)
	}

	out, err := u.run(ctx, paths, models.Closes(candles), SourceHistory)
	if err != nil {
		return nil, err
	}
	return &models.LatestPrediction{
		Prediction: out,
		Symbol:     symbol,
		Timeframe:  string(tf),
		Count:      len(candles),
		LastBucket: candles[len(candles)-1].Bucket,
	}, nil
}

func (u *PredictUseCase) run(ctx context.Context, paths domrepo.ArtifactPaths, prices []float64, source string) ([]float64, error) {
	start := time.Now()
	bundle, err := u.loader.Load(ctx, paths)
	u.recordLatency("load", start)
	if err != nil {
		u.l.Error("artifact load failed",
			applogger.String("coin", paths.Coin),
			applogger.Duration("duration_ms", time.Since(start)),
			applogger.Error(err),
		)
		return nil, err
	}

	start = time.Now()
	out, err := inference.Predict(bundle.Model, bundle.Scaler, prices)
	u.recordLatency("infer", start)
	if err != nil {
		u.recordError("inference")
		u.l.Error("inference failed",
			applogger.String("coin", paths.Coin),
			applogger.Int("steps", len(prices)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("predict %s: %w", paths.Coin, err)
	}

	if u.metrics != nil {
		u.metrics.RecordPrediction(paths.Coin, source)
		if len(out) > 0 {
			u.metrics.RecordLastPrediction(paths.Coin, out[0])
		}
	}
	u.l.Debug("prediction served",
		applogger.String("coin", paths.Coin),
		applogger.String("source", source),
		applogger.Int("steps", len(prices)),
		applogger.Int("outputs", len(out)),
	)
	return out, nil
}

func (u *PredictUseCase) recordError(kind string) {
	if u.metrics != nil {
		u.metrics.RecordError(kind)
	}
}

func (u *PredictUseCase) recordLatency(op string, start time.Time) {
	if u.metrics != nil {
		u.metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}
