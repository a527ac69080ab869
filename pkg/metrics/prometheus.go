package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrediction *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
}

// New creates a recorder whose collectors are registered with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_predictions_total",
				Help: "Total number of predictions served",
			},
			[]string{"coin", "source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrediction: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coincast_last_prediction",
				Help: "Last predicted price for a coin",
			},
			[]string{"coin"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_cache_lookups_total",
				Help: "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
	}
}

// RecordPrediction counts a served prediction. source is "request",
// "history" or "cache".
func (r *Recorder) RecordPrediction(coin, source string) {
	r.predictions.WithLabelValues(coin, source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrediction records the first predicted value for a coin.
func (r *Recorder) RecordLastPrediction(coin string, price float64) {
	r.lastPrediction.WithLabelValues(coin).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(cache, result).Inc()
}
