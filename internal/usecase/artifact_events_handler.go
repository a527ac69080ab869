package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/internal/service/cache"
	pkgkafka "CoinCast/pkg/kafka"
	applogger "CoinCast/pkg/logger"
)

// ArtifactEventsHandler drops cached artifacts and cached predictions
// when an artifact event arrives.
type ArtifactEventsHandler struct {
	topic     string
	artifacts domrepo.ArtifactInvalidator
	responses cache.BytesCache
	gens      *cache.Generations
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

// NewArtifactEventsHandler wires the handler. gens may be nil when no
// prediction handler shares the response cache.
func NewArtifactEventsHandler(topic string, artifacts domrepo.ArtifactInvalidator, responses cache.BytesCache, gens *cache.Generations, m domrepo.Metrics, l *applogger.Logger) *ArtifactEventsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	if responses == nil {
		responses = cache.Noop{}
	}
	return &ArtifactEventsHandler{topic: topic, artifacts: artifacts, responses: responses, gens: gens, metrics: m, l: l}
}

func (h *ArtifactEventsHandler) Topic() string { return h.topic }

// incoming message schema: {coin, event, at}
func (h *ArtifactEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ArtifactEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.recordError("artifact_event_unmarshal")
		return fmt.Errorf("decode artifact event: %w", err)
	}
	if ev.Event != models.ArtifactEventUpdated {
		h.l.Warn("ignoring artifact event", applogger.String("event", ev.Event), applogger.String("coin", ev.Coin))
		return nil
	}

	coin := strings.ToLower(strings.TrimSpace(ev.Coin))
	prefix := "predict:"
	switch coin {
	case "":
		h.recordError("artifact_event_invalid")
		return fmt.Errorf("artifact event without coin")
	case models.AllCoins:
		h.artifacts.InvalidateAll()
		h.gens.BumpAll()
	default:
		h.artifacts.Invalidate(coin)
		h.gens.Bump(coin)
		prefix = cache.PredictionKeyPrefix(coin)
	}

	if err := h.responses.DeletePrefix(ctx, prefix); err != nil {
		h.recordError("response_cache_purge")
		return fmt.Errorf("purge cached predictions %s: %w", prefix, err)
	}
	h.l.Info("artifacts invalidated",
		applogger.String("coin", coin),
		applogger.String("at", ev.At.String()),
	)
	return nil
}

func (h *ArtifactEventsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*ArtifactEventsHandler)(nil)
