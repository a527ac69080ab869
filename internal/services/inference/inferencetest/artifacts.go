// Package inferencetest writes small, valid model and scaler artifacts for tests.
package inferencetest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"CoinCast/internal/services/inference"
)

// Network returns a two-unit LSTM with a linear dense head.
func Network() inference.NetworkSpec {
	return inference.NetworkSpec{
		Name:     "test_lstm",
		InputDim: 1,
		Layers: []inference.LayerSpec{
			{
				Type:            inference.LayerLSTM,
				Units:           2,
				ReturnSequences: false,
				Kernel:          [][]float64{{0.5, -0.3, 0.8, 0.1, 0.2, 0.4, -0.6, 0.7}},
				RecurrentKernel: [][]float64{
					{0.1, 0.2, -0.1, 0.3, 0.05, -0.2, 0.4, 0.1},
					{-0.3, 0.1, 0.2, -0.1, 0.3, 0.2, -0.05, 0.15},
				},
				Bias: []float64{0, 0, 1, 1, 0, 0, 0, 0},
			},
			{Type: inference.LayerDropout, Rate: 0.2},
			{
				Type:   inference.LayerDense,
				Units:  1,
				Kernel: [][]float64{{0.9}, {-0.4}},
				Bias:   []float64{0.1},
			},
		},
	}
}

// Scaler returns a min-max scaler fitted on [1000, 4000].
func Scaler() inference.ScalerSpec {
	return inference.ScalerSpec{
		Kind:         inference.ScalerMinMax,
		FeatureRange: [2]float64{0, 1},
		DataMin:      []float64{1000},
		DataMax:      []float64{4000},
	}
}

// Paths returns the conventional artifact paths of coin relative to the artifact dir.
func Paths(coin string) (model, scaler string) {
	dir := coin + "_model_and_scaler"
	return filepath.Join(dir, coin+"_model.json"), filepath.Join(dir, coin+"_scaler.json")
}

// WriteArtifacts writes the test network and scaler for coin under dir
// using the conventional layout and returns both absolute paths.
func WriteArtifacts(t testing.TB, dir, coin string) (model, scaler string) {
	t.Helper()
	m, s := Paths(coin)
	model, scaler = filepath.Join(dir, m), filepath.Join(dir, s)
	WriteJSON(t, model, Network())
	WriteJSON(t, scaler, Scaler())
	return model, scaler
}

// WriteJSON encodes v into path, creating parent directories.
func WriteJSON(t testing.TB, path string, v interface{}) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Prices returns n increasing prices inside the scaler range.
func Prices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 2000 + float64(i)*5
	}
	return out
}
