package di

import (
	"context"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/handler/api"
	internalrepo "CoinCast/internal/repository"
	"CoinCast/internal/service/cache"
	"CoinCast/internal/service/coins"
	"CoinCast/internal/usecase"
	pkgch "CoinCast/pkg/clickhouse"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
	pkgkafka "CoinCast/pkg/kafka"
	applogger "CoinCast/pkg/logger"
	"CoinCast/pkg/metrics"
	"CoinCast/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	return metrics.NewRegistry()
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideCoinRegistry builds the coin registry from config.
func ProvideCoinRegistry(cfg *config.Config) (*coins.Registry, error) {
	r, err := coins.NewRegistry(cfg.Artifacts.Dir, cfg.Coins)
	if err != nil {
		return nil, fmt.Errorf("coin registry: %w", err)
	}
	return r, nil
}

// ProvideArtifactStore creates the file-backed artifact loader.
func ProvideArtifactStore(l *applogger.Logger, m domrepo.Metrics) *internalrepo.FileArtifactStore {
	return internalrepo.NewFileArtifactStore(l, m)
}

// ProvideArtifactCache returns nil when artifact caching is disabled.
func ProvideArtifactCache(cfg *config.Config, store *internalrepo.FileArtifactStore, l *applogger.Logger, m domrepo.Metrics) *internalrepo.CachedArtifactLoader {
	if !cfg.Artifacts.Cache.Enabled {
		return nil
	}
	return internalrepo.NewCachedArtifactLoader(store, l, m)
}

// ProvideArtifactLoader prefers the cache when one is configured.
func ProvideArtifactLoader(store *internalrepo.FileArtifactStore, cached *internalrepo.CachedArtifactLoader) domrepo.ArtifactLoader {
	if cached != nil {
		return cached
	}
	return store
}

// ProvideArtifactInvalidator is a no-op without an artifact cache.
func ProvideArtifactInvalidator(cached *internalrepo.CachedArtifactLoader) domrepo.ArtifactInvalidator {
	if cached != nil {
		return cached
	}
	return internalrepo.NoopInvalidator{}
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when price
// history is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideFeatureStore returns a nil store when ClickHouse is not configured.
func ProvideFeatureStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) domrepo.FeatureStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHFeatureStore(ch, domrepo.NewTimeframeSet(cfg.History.Tables), l)
}

// ProvideTTLCache returns the in-process response cache, or nil.
func ProvideTTLCache(cfg *config.Config) *cache.TTLCache {
	switch cfg.PredictionCache.Backend {
	case "memory", "layered":
		return cache.NewTTLCache(cache.WithMaxEntries(*cfg.PredictionCache.MaxEntries))
	default:
		return nil
	}
}

// ProvideRedisCache returns the shared response cache, or nil.
func ProvideRedisCache(cfg *config.Config) *cache.RedisCache {
	switch cfg.PredictionCache.Backend {
	case "redis", "layered":
	default:
		return nil
	}
	return cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.Redis.Prefix,
	})
}

// ProvideResponseCache selects the configured response cache backend.
func ProvideResponseCache(cfg *config.Config, mem *cache.TTLCache, rc *cache.RedisCache) cache.BytesCache {
	switch {
	case rc != nil && mem != nil:
		return cache.NewLayeredCache(mem, rc, cfg.PredictionCache.LocalTTL)
	case rc != nil:
		return rc
	case mem != nil:
		return mem
	default:
		return cache.Noop{}
	}
}

// ProvideCacheGenerations tracks response-cache purges shared by the
// prediction handler and the artifact events handler.
func ProvideCacheGenerations() *cache.Generations {
	return cache.NewGenerations()
}

// ProvidePredictUseCase wires the prediction flow.
func ProvidePredictUseCase(
	cfg *config.Config,
	registry *coins.Registry,
	loader domrepo.ArtifactLoader,
	store domrepo.FeatureStore,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.PredictUseCase {
	return usecase.NewPredictUseCase(cfg.Predict.LookBack, registry, loader, store, usecase.HistoryOptions{
		Timeframes:       domrepo.NewTimeframeSet(cfg.History.Tables),
		DefaultTimeframe: domrepo.Timeframe(cfg.History.DefaultTimeframe),
		MaxCandles:       cfg.History.MaxCandles,
	}, m, l)
}

// ProvideArtifactEventsHandler handles artifact invalidation events.
func ProvideArtifactEventsHandler(
	cfg *config.Config,
	inv domrepo.ArtifactInvalidator,
	responses cache.BytesCache,
	gens *cache.Generations,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ArtifactEventsHandler {
	return usecase.NewArtifactEventsHandler(cfg.Kafka.ArtifactsTopic, inv, responses, gens, m, l)
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerStartOffset(kafka.LastOffset),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			l.Warn("artifact event attempt failed",
				applogger.String("topic", topic),
				applogger.String("key", string(km.Key)),
				applogger.Error(err),
			)
		},
	})
	return consumer, nil
}

// ProvideKafkaProducer creates the producer used to announce artifact updates.
func ProvideKafkaProducer(cfg *config.Config, reg prometheus.Registerer) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(*cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideArtifactPublisher publishes artifact events on the configured topic.
func ProvideArtifactPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.ArtifactEventPublisher {
	return internalrepo.NewKafkaArtifactPublisher(producer, cfg.Kafka.ArtifactsTopic)
}

// ProvideHTTPServer registers the prediction and health routes.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	uc *usecase.PredictUseCase,
	responses cache.BytesCache,
	gens *cache.Generations,
	store domrepo.FeatureStore,
	rc *cache.RedisCache,
	m domrepo.Metrics,
) *xhttp.Server {
	checkers := make(map[string]api.HealthChecker)
	if store != nil {
		checkers["clickhouse"] = store
	}
	if rc != nil {
		checkers["redis"] = rc
	}
	handlers := xhttp.Handlers{
		api.NewPredictEchoHandler(l, uc, responses, gens, cfg.PredictionCache.TTL, m),
		api.NewHealthEchoHandler(l, checkers),
	}
	return xhttp.NewServer(handlers,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(l),
		xhttp.WithMetrics(cfg.Metrics.Path, reg),
	)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	events *usecase.ArtifactEventsHandler,
	ch *pkgch.Client,
	mem *cache.TTLCache,
	rc *cache.RedisCache,
) *server.App {
	opts := []server.Option{server.WithConsumer(consumer, events)}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc))
	}
	if mem != nil {
		opts = append(opts, server.WithSweeper(mem, cfg.PredictionCache.TTL))
	}
	l.Info("application wired",
		applogger.Strings("coins", coinSymbols(cfg.Coins)),
		applogger.Bool("artifact_cache", cfg.Artifacts.Cache.Enabled),
		applogger.String("prediction_cache", cfg.PredictionCache.Backend),
		applogger.Bool("history", cfg.History.Enabled),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
	)
	return server.New(l, srv, opts...)
}

func coinSymbols(cs []config.Coin) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Symbol
	}
	return out
}

// ArtifactUpdated builds the event announcing new artifacts for coin.
// models.AllCoins invalidates every coin.
func ArtifactUpdated(coin string) models.ArtifactEvent {
	return models.ArtifactEvent{Coin: coin, Event: models.ArtifactEventUpdated, At: time.Now().UTC()}
}
