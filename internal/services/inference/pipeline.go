package inference

import (
	"fmt"

	domsvc "CoinCast/internal/domain/service"
)

// Predict scales prices into the model range, runs a single-sample
// forward pass and maps the outputs back into price units.
func Predict(model domsvc.Forecaster, scaler domsvc.Scaler, prices []float64) ([]float64, error) {
	scaled := scaler.Transform(prices)

	// one sample, len(prices) steps, one feature
	seq := make([][]float64, len(scaled))
	for i, v := range scaled {
		seq[i] = []float64{v}
	}

	out, err := model.Forward(seq)
	if err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}
	return scaler.InverseTransform(out), nil
}
