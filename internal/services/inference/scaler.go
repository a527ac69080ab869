package inference

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	domsvc "CoinCast/internal/domain/service"
)

const (
	ScalerMinMax   = "minmax"
	ScalerStandard = "standard"
)

// ScalerSpec is the on-disk form of a fitted single-feature scaler.
type ScalerSpec struct {
	Kind         string     `json:"kind"`
	FeatureRange [2]float64 `json:"feature_range"`
	DataMin      []float64  `json:"data_min,omitempty"`
	DataMax      []float64  `json:"data_max,omitempty"`
	Mean         []float64  `json:"mean,omitempty"`
	Scale        []float64  `json:"scale,omitempty"`
}

// MinMaxScaler maps [data_min, data_max] onto the feature range.
type MinMaxScaler struct {
	scale float64
	min   float64
}

// NewMinMaxScaler builds a fitted min-max scaler. A zero data range
// uses scale 1 so constant inputs do not divide by zero.
func NewMinMaxScaler(dataMin, dataMax, lo, hi float64) (*MinMaxScaler, error) {
	if !(hi > lo) {
		return nil, fmt.Errorf("minmax: feature range [%g, %g] is empty", lo, hi)
	}
	if dataMax < dataMin {
		return nil, fmt.Errorf("minmax: data_max %g < data_min %g", dataMax, dataMin)
	}
	dataRange := dataMax - dataMin
	if dataRange == 0 {
		dataRange = 1
	}
	scale := (hi - lo) / dataRange
	return &MinMaxScaler{scale: scale, min: lo - dataMin*scale}, nil
}

func (s *MinMaxScaler) Transform(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x*s.scale + s.min
	}
	return out
}

func (s *MinMaxScaler) InverseTransform(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = (x - s.min) / s.scale
	}
	return out
}

// StandardScaler removes the mean and divides by the standard deviation.
type StandardScaler struct {
	mean  float64
	scale float64
}

func NewStandardScaler(mean, scale float64) (*StandardScaler, error) {
	if scale < 0 {
		return nil, fmt.Errorf("standard: negative scale %g", scale)
	}
	if scale == 0 {
		scale = 1
	}
	return &StandardScaler{mean: mean, scale: scale}, nil
}

func (s *StandardScaler) Transform(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = (x - s.mean) / s.scale
	}
	return out
}

func (s *StandardScaler) InverseTransform(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x*s.scale + s.mean
	}
	return out
}

// DecodeScaler reads a scaler document and returns the fitted scaler.
func DecodeScaler(r io.Reader) (domsvc.Scaler, error) {
	var spec ScalerSpec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	return spec.Build()
}

// Build validates the spec and constructs the scaler it describes.
func (spec ScalerSpec) Build() (domsvc.Scaler, error) {
	switch spec.Kind {
	case ScalerMinMax:
		if len(spec.DataMin) != 1 || len(spec.DataMax) != 1 {
			return nil, fmt.Errorf("minmax: expected one feature, got data_min=%d data_max=%d", len(spec.DataMin), len(spec.DataMax))
		}
		lo, hi := spec.FeatureRange[0], spec.FeatureRange[1]
		if lo == 0 && hi == 0 {
			hi = 1
		}
		if err := finite(spec.DataMin[0], spec.DataMax[0], lo, hi); err != nil {
			return nil, fmt.Errorf("minmax: %w", err)
		}
		return NewMinMaxScaler(spec.DataMin[0], spec.DataMax[0], lo, hi)
	case ScalerStandard:
		if len(spec.Mean) != 1 || len(spec.Scale) != 1 {
			return nil, fmt.Errorf("standard: expected one feature, got mean=%d scale=%d", len(spec.Mean), len(spec.Scale))
		}
		if err := finite(spec.Mean[0], spec.Scale[0]); err != nil {
			return nil, fmt.Errorf("standard: %w", err)
		}
		return NewStandardScaler(spec.Mean[0], spec.Scale[0])
	default:
		return nil, fmt.Errorf("unknown scaler kind %q", spec.Kind)
	}
}

func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite parameter %g", v)
		}
	}
	return nil
}
