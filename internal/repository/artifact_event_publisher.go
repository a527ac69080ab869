package repository

import (
	"context"

	"CoinCast/internal/domain/models"
	pkgkafka "CoinCast/pkg/kafka"
)

// KafkaArtifactPublisher publishes artifact events keyed by coin so
// events of one coin stay ordered.
type KafkaArtifactPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaArtifactPublisher(producer *pkgkafka.Producer, topic string) *KafkaArtifactPublisher {
	return &KafkaArtifactPublisher{producer: producer, topic: topic}
}

func (p *KafkaArtifactPublisher) PublishArtifactEvents(ctx context.Context, evs ...models.ArtifactEvent) error {
	switch len(evs) {
	case 0:
		return nil
	case 1:
		return p.producer.Publish(ctx, p.topic, []byte(evs[0].Coin), evs[0])
	}
	msgs := make([]pkgkafka.Message, len(evs))
	for i, ev := range evs {
		msgs[i] = pkgkafka.Message{Key: []byte(ev.Coin), Value: ev}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaArtifactPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
