package models

import "time"

// PredictRequest is the body of POST /predict/{coin}.
type PredictRequest struct {
	Coin   string    `param:"coin" json:"-"`
	Prices []float64 `json:"prices" validate:"required"`
}

// PredictResponse carries the predicted price(s) in original units.
type PredictResponse struct {
	Prediction []float64 `json:"prediction"`
}

// LatestPredictRequest predicts from stored history instead of client prices.
// N and TF fall back to the configured look-back window and timeframe when zero.
type LatestPredictRequest struct {
	Coin string `param:"coin" json:"-"`
	N    int    `query:"n" validate:"omitempty,gte=1"`
	TF   string `query:"tf"`
}

// LatestPrediction is the result of predicting from the price history.
type LatestPrediction struct {
	Prediction []float64 `json:"prediction"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"tf"`
	Count      int       `json:"count"`
	LastBucket time.Time `json:"last_bucket"`
}

// ArtifactEvent announces that artifacts of a coin changed on disk.
// Coin "*" addresses every coin.
type ArtifactEvent struct {
	Coin  string    `json:"coin"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

const (
	ArtifactEventUpdated = "artifact.updated"
	AllCoins             = "*"
)
