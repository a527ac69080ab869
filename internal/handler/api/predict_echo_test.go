package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/repository"
	"CoinCast/internal/service/cache"
	"CoinCast/internal/service/coins"
	"CoinCast/internal/services/inference/inferencetest"
	"CoinCast/internal/usecase"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const lengthMessage = "At least 60 prices are required for the prediction."

type fakeStore struct {
	candles []models.Candle
}

func (f *fakeStore) GetLatestNCandles(_ context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	if n < len(f.candles) {
		return f.candles[len(f.candles)-n:], nil
	}
	return f.candles, nil
}

func (f *fakeStore) Health(context.Context) error { return nil }

type env struct {
	dir    string
	server *xhttp.Server
}

// newEnv writes artifacts for eth only; bnb is registered but has none.
func newEnv(t *testing.T, responses cache.BytesCache, store domrepo.FeatureStore) *env {
	t.Helper()
	return newEnvWithGenerations(t, responses, store, nil)
}

func newEnvWithGenerations(t *testing.T, responses cache.BytesCache, store domrepo.FeatureStore, gens *cache.Generations) *env {
	t.Helper()
	dir := t.TempDir()
	inferencetest.WriteArtifacts(t, dir, "eth")

	reg, err := coins.NewRegistry(dir, config.DefaultCoins())
	if err != nil {
		t.Fatal(err)
	}
	history := usecase.HistoryOptions{
		Timeframes:       domrepo.NewTimeframeSet(map[string]string{"1m": "t"}),
		DefaultTimeframe: "1m",
		MaxCandles:       500,
	}
	uc := usecase.NewPredictUseCase(60, reg, repository.NewFileArtifactStore(nil, nil), store, history, nil, nil)
	h := NewPredictEchoHandler(nil, uc, responses, gens, time.Minute, nil)
	srv := xhttp.NewServer(xhttp.Handlers{h, NewHealthEchoHandler(nil, nil)}, xhttp.WithMetrics("/metrics", prometheus.NewRegistry()))
	return &env{dir: dir, server: srv}
}

func (e *env) post(t *testing.T, coin string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/predict/"+coin, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.do(t, req)
}

func (e *env) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	out := map[string]interface{}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, out
}

func prices(n int) map[string]interface{} {
	return map[string]interface{}{"prices": inferencetest.Prices(n)}
}

func TestPredictRejectsShortSeries(t *testing.T) {
	e := newEnv(t, nil, nil)
	for _, coin := range []string{"eth", "BNB", "doge"} {
		for _, n := range []int{0, 1, 59} {
			code, out := e.post(t, coin, prices(n))
			if code != http.StatusBadRequest || out["detail"] != lengthMessage {
				t.Fatalf("%s n=%d: %d %v", coin, n, code, out)
			}
		}
	}
}

func TestPredictRejectsUnknownCoin(t *testing.T) {
	e := newEnv(t, nil, nil)
	for _, coin := range []string{"btc", "DOGE", "Eth2"} {
		code, out := e.post(t, coin, prices(60))
		if code != http.StatusBadRequest || out["detail"] != "Unsupported coin: "+coin {
			t.Fatalf("%s: %d %v", coin, code, out)
		}
	}
}

func TestPredictSucceedsCaseInsensitively(t *testing.T) {
	e := newEnv(t, nil, nil)
	var first []interface{}
	for _, coin := range []string{"ETH", "eth", "Eth", "eth"} {
		code, out := e.post(t, coin, prices(60))
		if code != http.StatusOK {
			t.Fatalf("%s: %d %v", coin, code, out)
		}
		pred, ok := out["prediction"].([]interface{})
		if !ok || len(pred) == 0 {
			t.Fatalf("%s: prediction = %v", coin, out["prediction"])
		}
		v := pred[0].(float64)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite prediction %v", v)
		}
		if first == nil {
			first = pred
		} else if !reflect.DeepEqual(first, pred) {
			t.Fatalf("predictions differ: %v vs %v", first, pred)
		}
	}

	code, _ := e.post(t, "eth", prices(1000))
	if code != http.StatusOK {
		t.Fatalf("long series: %d", code)
	}
}

func TestPredictDecodesEscapedCoin(t *testing.T) {
	e := newEnv(t, nil, nil)
	for _, coin := range []string{"%45TH", "e%74h", "%65%74%68"} {
		code, out := e.post(t, coin, prices(60))
		if code != http.StatusOK {
			t.Fatalf("%s: %d %v", coin, code, out)
		}
	}

	code, out := e.post(t, "doge%20coin", prices(60))
	if code != http.StatusBadRequest || out["detail"] != "Unsupported coin: doge coin" {
		t.Fatalf("doge coin: %d %v", code, out)
	}
	code, out = e.post(t, "%2545TH", prices(60))
	if code != http.StatusBadRequest || out["detail"] != "Unsupported coin: %45TH" {
		t.Fatalf("double escaped: %d %v", code, out)
	}

	cs := make([]models.Candle, 60)
	for i, p := range inferencetest.Prices(60) {
		cs[i] = models.Candle{Close: p}
	}
	e = newEnv(t, nil, &fakeStore{candles: cs})
	code, out = e.do(t, httptest.NewRequest(http.MethodGet, "/predict/%45TH/latest?n=60", nil))
	if code != http.StatusOK || out["symbol"] != "ETHUSDT" {
		t.Fatalf("latest: %d %v", code, out)
	}
}

func TestPredictMissingArtifactsIsServerError(t *testing.T) {
	e := newEnv(t, nil, nil)
	code, out := e.post(t, "BNB", prices(60))
	if code != http.StatusServiceUnavailable || out["detail"] != "Artifacts unavailable for coin: bnb" {
		t.Fatalf("%d %v", code, out)
	}

	// a corrupt file behaves the same way
	model, _ := inferencetest.Paths("eth")
	if err := os.WriteFile(filepath.Join(e.dir, model), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _ = e.post(t, "eth", prices(60))
	if code != http.StatusServiceUnavailable {
		t.Fatalf("corrupt model: %d", code)
	}
}

func TestPredictMalformedBody(t *testing.T) {
	e := newEnv(t, nil, nil)
	for _, body := range []string{`{}`, `{"prices": null}`, `{"prices": ["a"]}`, `[1,2]`, `{`} {
		code, out := e.post(t, "eth", body)
		if code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: %d %v", body, code, out)
		}
		if _, ok := out["detail"].([]interface{}); !ok {
			t.Fatalf("%s: detail = %v", body, out["detail"])
		}
	}
}

func TestPredictServesFromResponseCache(t *testing.T) {
	responses := cache.NewTTLCache()
	e := newEnv(t, responses, nil)
	code, first := e.post(t, "eth", prices(60))
	if code != http.StatusOK {
		t.Fatalf("first: %d %v", code, first)
	}
	if responses.Len() != 1 {
		t.Fatalf("cache len = %d", responses.Len())
	}

	// artifacts are gone, the cached body still answers
	if err := os.RemoveAll(filepath.Join(e.dir, "eth_model_and_scaler")); err != nil {
		t.Fatal(err)
	}
	code, second := e.post(t, "ETH", prices(60))
	if code != http.StatusOK || !reflect.DeepEqual(first, second) {
		t.Fatalf("cached: %d %v", code, second)
	}

	// errors are never cached
	code, _ = e.post(t, "eth", prices(61))
	if code != http.StatusServiceUnavailable {
		t.Fatalf("uncached: %d", code)
	}
}

// purgeOnRead simulates an artifact purge landing while a request is
// computing its response.
type purgeOnRead struct {
	*cache.TTLCache
	gens *cache.Generations
	coin string
}

func (p purgeOnRead) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok, err := p.TTLCache.GetBytes(ctx, key)
	if p.coin != "" {
		p.gens.Bump(p.coin)
	}
	return b, ok, err
}

func TestPredictSkipsCacheWriteAfterPurge(t *testing.T) {
	gens := cache.NewGenerations()
	responses := cache.NewTTLCache()

	e := newEnvWithGenerations(t, purgeOnRead{TTLCache: responses, gens: gens, coin: "eth"}, nil, gens)
	code, out := e.post(t, "ETH", prices(60))
	if code != http.StatusOK {
		t.Fatalf("%d %v", code, out)
	}
	if responses.Len() != 0 {
		t.Fatalf("response computed before purge was cached")
	}

	// a purge of another coin leaves eth cacheable
	e = newEnvWithGenerations(t, purgeOnRead{TTLCache: responses, gens: gens, coin: "bnb"}, nil, gens)
	if code, out := e.post(t, "eth", prices(60)); code != http.StatusOK {
		t.Fatalf("%d %v", code, out)
	}
	if responses.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", responses.Len())
	}
}

func TestPredictLatestEndpoint(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cs := make([]models.Candle, 70)
	for i, p := range inferencetest.Prices(70) {
		cs[i] = models.Candle{Bucket: base.Add(time.Duration(i) * time.Minute), Close: p}
	}
	e := newEnv(t, nil, &fakeStore{candles: cs})

	code, out := e.do(t, httptest.NewRequest(http.MethodGet, "/predict/ETH/latest?n=65", nil))
	if code != http.StatusOK {
		t.Fatalf("%d %v", code, out)
	}
	if out["symbol"] != "ETHUSDT" || out["tf"] != "1m" || out["count"].(float64) != 65 {
		t.Fatalf("out = %v", out)
	}

	code, out = e.do(t, httptest.NewRequest(http.MethodGet, "/predict/eth/latest?tf=1w", nil))
	if code != http.StatusBadRequest {
		t.Fatalf("bad tf: %d %v", code, out)
	}
	code, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/predict/eth/latest?n=abc", nil))
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("bad n: %d", code)
	}
	code, out = e.do(t, httptest.NewRequest(http.MethodGet, "/predict/eth/latest?n=10", nil))
	if code != http.StatusBadRequest || out["detail"] != lengthMessage {
		t.Fatalf("small n: %d %v", code, out)
	}
}

func TestPredictLatestDisabled(t *testing.T) {
	e := newEnv(t, nil, nil)
	code, _ := e.do(t, httptest.NewRequest(http.MethodGet, "/predict/eth/latest", nil))
	if code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
}

func TestCoinsEndpoint(t *testing.T) {
	e := newEnv(t, nil, nil)
	code, out := e.do(t, httptest.NewRequest(http.MethodGet, "/coins", nil))
	if code != http.StatusOK || !reflect.DeepEqual(out["coins"], []interface{}{"bnb", "eth"}) {
		t.Fatalf("%d %v", code, out)
	}
}

type checkerFunc func(context.Context) error

func (f checkerFunc) Health(ctx context.Context) error { return f(ctx) }

func TestHealthEndpoint(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	e := echo.New()
	NewHealthEchoHandler(nil, map[string]HealthChecker{"redis": ok}).RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy: %d %s", rec.Code, rec.Body.String())
	}

	e = echo.New()
	NewHealthEchoHandler(nil, map[string]HealthChecker{"redis": ok, "clickhouse": down}).RegisterRoutes(e)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var res xhttp.HealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusServiceUnavailable || res.Status != "degraded" || res.Checks["redis"] != "ok" {
		t.Fatalf("degraded: %d %+v", rec.Code, res)
	}
}
