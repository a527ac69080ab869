package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordPrediction("eth", "request")
	r.RecordPrediction("eth", "request")
	r.RecordLastPrediction("eth", 3120.5)
	r.RecordCacheLookup("artifact", true)
	r.RecordCacheLookup("artifact", false)
	r.RecordError("artifact_model")
	r.RecordLatency("infer", 0.01)

	if got := testutil.ToFloat64(r.predictions.WithLabelValues("eth", "request")); got != 2 {
		t.Fatalf("predictions = %v", got)
	}
	if got := testutil.ToFloat64(r.lastPrediction.WithLabelValues("eth")); got != 3120.5 {
		t.Fatalf("last prediction = %v", got)
	}

	expected := `
# HELP coincast_cache_lookups_total Cache lookups by cache and result
# TYPE coincast_cache_lookups_total counter
coincast_cache_lookups_total{cache="artifact",result="hit"} 1
coincast_cache_lookups_total{cache="artifact",result="miss"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "coincast_cache_lookups_total"); err != nil {
		t.Fatal(err)
	}
}

func TestNewRegistryIsolated(t *testing.T) {
	// two recorders on separate registries must not collide
	New(NewRegistry())
	New(NewRegistry())
}
