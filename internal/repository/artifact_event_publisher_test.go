package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	pkgkafka "CoinCast/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
)

func unreachablePublisher(t *testing.T) *KafkaArtifactPublisher {
	t.Helper()
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers([]string{"127.0.0.1:1"}),
		pkgkafka.WithMaxAttempts(1),
		pkgkafka.WithProducerMetrics(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatal(err)
	}
	p := NewKafkaArtifactPublisher(producer, "coincast.artifacts")
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestKafkaArtifactPublisherNoEvents(t *testing.T) {
	if err := unreachablePublisher(t).PublishArtifactEvents(context.Background()); err != nil {
		t.Fatalf("empty publish: %v", err)
	}
}

func TestKafkaArtifactPublisherBatchesSeveralEvents(t *testing.T) {
	p := unreachablePublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	now := time.Now()
	err := p.PublishArtifactEvents(ctx,
		models.ArtifactEvent{Coin: "eth", Event: models.ArtifactEventUpdated, At: now},
		models.ArtifactEvent{Coin: "bnb", Event: models.ArtifactEventUpdated, At: now},
	)
	if err == nil || !strings.Contains(err.Error(), "publish batch coincast.artifacts") {
		t.Fatalf("err = %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	err = p.PublishArtifactEvents(ctx2, models.ArtifactEvent{Coin: "eth", Event: models.ArtifactEventUpdated, At: now})
	if err == nil || strings.Contains(err.Error(), "publish batch") {
		t.Fatalf("single event should use a plain publish, err = %v", err)
	}
}
