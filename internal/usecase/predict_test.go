package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/repository"
	"CoinCast/internal/service/coins"
	"CoinCast/internal/services/inference/inferencetest"
	"CoinCast/pkg/config"
)

type fakeStore struct {
	candles []models.Candle
	err     error
	gotN    int
	gotTF   domrepo.Timeframe
	gotSym  string
}

func (f *fakeStore) GetLatestNCandles(_ context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	f.gotSym, f.gotN, f.gotTF = symbol, n, tf
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.candles) {
		return f.candles[len(f.candles)-n:], nil
	}
	return f.candles, nil
}

func (f *fakeStore) Health(context.Context) error { return f.err }

func candles(n int) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prices := inferencetest.Prices(n)
	out := make([]models.Candle, n)
	for i, p := range prices {
		out[i] = models.Candle{Bucket: base.Add(time.Duration(i) * time.Minute), Symbol: "ETHUSDT", Close: p}
	}
	return out
}

func newUseCase(t *testing.T, store domrepo.FeatureStore) *PredictUseCase {
	t.Helper()
	dir := t.TempDir()
	inferencetest.WriteArtifacts(t, dir, "eth")
	inferencetest.WriteArtifacts(t, dir, "bnb")
	reg, err := coins.NewRegistry(dir, config.DefaultCoins())
	if err != nil {
		t.Fatal(err)
	}
	history := HistoryOptions{
		Timeframes:       domrepo.NewTimeframeSet(map[string]string{"1m": "t1m", "1d": "t1d"}),
		DefaultTimeframe: "1m",
		MaxCandles:       100,
	}
	return NewPredictUseCase(60, reg, repository.NewFileArtifactStore(nil, nil), store, history, nil, nil)
}

func TestPredictChecksLengthBeforeCoin(t *testing.T) {
	u := newUseCase(t, nil)
	_, err := u.Predict(context.Background(), "doge", inferencetest.Prices(59))
	if !errors.Is(err, domsvc.ErrInsufficientPrices) {
		t.Fatalf("err = %v, want ErrInsufficientPrices", err)
	}
	_, err = u.Predict(context.Background(), "doge", inferencetest.Prices(60))
	if !errors.Is(err, domsvc.ErrUnsupportedCoin) {
		t.Fatalf("err = %v, want ErrUnsupportedCoin", err)
	}
}

func TestPredictIsCaseInsensitiveAndDeterministic(t *testing.T) {
	u := newUseCase(t, nil)
	prices := inferencetest.Prices(60)
	a, err := u.Predict(context.Background(), "ETH", prices)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	b, err := u.Predict(context.Background(), "eth", prices)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(a) != 1 || a[0] != b[0] || math.IsNaN(a[0]) {
		t.Fatalf("a=%v b=%v", a, b)
	}
}

func TestPredictMissingArtifacts(t *testing.T) {
	reg, _ := coins.NewRegistry(t.TempDir(), config.DefaultCoins())
	u := NewPredictUseCase(60, reg, repository.NewFileArtifactStore(nil, nil), nil, HistoryOptions{}, nil, nil)
	_, err := u.Predict(context.Background(), "bnb", inferencetest.Prices(60))
	if !errors.Is(err, domsvc.ErrArtifactUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestPredictLatest(t *testing.T) {
	store := &fakeStore{candles: candles(80)}
	u := newUseCase(t, store)

	res, err := u.PredictLatest(context.Background(), models.LatestPredictRequest{Coin: "Eth"})
	if err != nil {
		t.Fatalf("predict latest: %v", err)
	}
	if store.gotN != 60 || store.gotTF != "1m" || store.gotSym != "ETHUSDT" {
		t.Fatalf("store called with %s n=%d tf=%s", store.gotSym, store.gotN, store.gotTF)
	}
	if res.Count != 60 || res.Timeframe != "1m" || len(res.Prediction) != 1 {
		t.Fatalf("res = %+v", res)
	}
	if !res.LastBucket.Equal(store.candles[79].Bucket) {
		t.Fatalf("last bucket = %v", res.LastBucket)
	}

	direct, _ := u.Predict(context.Background(), "eth", models.Closes(store.candles[20:]))
	if direct[0] != res.Prediction[0] {
		t.Fatalf("history prediction %v differs from direct %v", res.Prediction, direct)
	}
}

func TestPredictLatestCapsN(t *testing.T) {
	store := &fakeStore{candles: candles(80)}
	u := newUseCase(t, store)
	if _, err := u.PredictLatest(context.Background(), models.LatestPredictRequest{Coin: "eth", N: 10000, TF: "1D"}); err != nil {
		t.Fatal(err)
	}
	if store.gotN != 100 || store.gotTF != "1d" {
		t.Fatalf("n=%d tf=%s", store.gotN, store.gotTF)
	}
}

func TestPredictLatestErrors(t *testing.T) {
	cases := []struct {
		name  string
		store domrepo.FeatureStore
		req   models.LatestPredictRequest
		want  error
	}{
		{"disabled", nil, models.LatestPredictRequest{Coin: "eth"}, domsvc.ErrHistoryDisabled},
		{"unknown coin", &fakeStore{candles: candles(80)}, models.LatestPredictRequest{Coin: "xrp"}, domsvc.ErrUnsupportedCoin},
		{"unknown tf", &fakeStore{candles: candles(80)}, models.LatestPredictRequest{Coin: "eth", TF: "5m"}, domsvc.ErrUnsupportedTimeframe},
		{"n below window", &fakeStore{candles: candles(80)}, models.LatestPredictRequest{Coin: "eth", N: 30}, domsvc.ErrInsufficientPrices},
		{"short history", &fakeStore{candles: candles(59)}, models.LatestPredictRequest{Coin: "eth"}, domsvc.ErrInsufficientPrices},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := newUseCase(t, tc.store)
			_, err := u.PredictLatest(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestPredictLatestStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	u := newUseCase(t, &fakeStore{err: boom})
	_, err := u.PredictLatest(context.Background(), models.LatestPredictRequest{Coin: "eth"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
