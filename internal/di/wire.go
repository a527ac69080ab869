//go:build wireinject
// +build wireinject

package di

import (
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/pkg/config"
	"CoinCast/pkg/server"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Artifacts
		ProvideCoinRegistry,
		ProvideArtifactStore,
		ProvideArtifactCache,
		ProvideArtifactLoader,
		ProvideArtifactInvalidator,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideFeatureStore,
		ProvideTTLCache,
		ProvideRedisCache,
		ProvideResponseCache,
		ProvideCacheGenerations,
		ProvideKafkaConsumer,

		// Use cases
		ProvidePredictUseCase,
		ProvideArtifactEventsHandler,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeArtifactPublisher wires the producer side used by artifactctl.
func InitializeArtifactPublisher(cfg *config.Config, reg prometheus.Registerer) (domrepo.ArtifactEventPublisher, error) {
	wire.Build(
		ProvideKafkaProducer,
		ProvideArtifactPublisher,
	)
	return nil, nil
}
