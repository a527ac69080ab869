package service

import "errors"

var (
	// ErrInsufficientPrices is returned when the input is shorter than the look-back window.
	ErrInsufficientPrices = errors.New("insufficient prices")
	// ErrUnsupportedCoin is returned for symbols missing from the coin registry.
	ErrUnsupportedCoin = errors.New("unsupported coin")
	// ErrArtifactUnavailable is returned when a model or scaler file is missing or unreadable.
	ErrArtifactUnavailable = errors.New("artifact unavailable")
	// ErrHistoryDisabled is returned when history-based prediction is not configured.
	ErrHistoryDisabled = errors.New("price history disabled")
	// ErrUnsupportedTimeframe is returned for timeframes without a backing table.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)

// Forecaster runs a forward pass over a sequence of feature rows
// (time steps x features) and returns the model outputs.
type Forecaster interface {
	Forward(seq [][]float64) ([]float64, error)
}

// Scaler maps raw values to and from the range a model was trained on.
type Scaler interface {
	Transform(xs []float64) []float64
	InverseTransform(xs []float64) []float64
}
