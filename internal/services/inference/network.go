package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	LayerLSTM    = "lstm"
	LayerDense   = "dense"
	LayerDropout = "dropout"
)

var errEmptySequence = errors.New("empty input sequence")

// LayerSpec is one layer of an exported network. Weight layouts follow
// Keras: kernel is (in x out), LSTM gates are packed in i, f, c, o order.
type LayerSpec struct {
	Type            string      `json:"type"`
	Units           int         `json:"units,omitempty"`
	ReturnSequences bool        `json:"return_sequences,omitempty"`
	Activation      string      `json:"activation,omitempty"`
	Rate            float64     `json:"rate,omitempty"`
	Kernel          [][]float64 `json:"kernel,omitempty"`
	RecurrentKernel [][]float64 `json:"recurrent_kernel,omitempty"`
	Bias            []float64   `json:"bias,omitempty"`
}

// NetworkSpec is the on-disk form of a sequence-to-one regression network.
type NetworkSpec struct {
	Name     string      `json:"name"`
	InputDim int         `json:"input_dim"`
	Layers   []LayerSpec `json:"layers"`
}

type layer interface {
	// forward maps a (steps x dim) sequence to the next representation.
	forward(seq [][]float64) [][]float64
}

// Network is a decoded, validated stack of layers. It holds no state
// between calls and is safe for concurrent use.
type Network struct {
	name     string
	inputDim int
	layers   []layer
}

// DecodeNetwork reads a network document and validates its shapes.
func DecodeNetwork(r io.Reader) (*Network, error) {
	var spec NetworkSpec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return spec.Build()
}

// Build validates layer shapes against each other and constructs the network.
func (spec NetworkSpec) Build() (*Network, error) {
	if len(spec.Layers) == 0 {
		return nil, errors.New("model has no layers")
	}
	inputDim := spec.InputDim
	if inputDim == 0 {
		inputDim = 1
	}

	n := &Network{name: spec.Name, inputDim: inputDim}
	dim := inputDim
	sequence := true
	for i, ls := range spec.Layers {
		switch ls.Type {
		case LayerLSTM:
			if !sequence {
				return nil, fmt.Errorf("layer %d: lstm after a layer that does not return sequences", i)
			}
			l, err := newLSTM(ls, dim)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			n.layers = append(n.layers, l)
			dim = ls.Units
			sequence = ls.ReturnSequences
		case LayerDense:
			if sequence {
				return nil, fmt.Errorf("layer %d: dense expects a vector, previous layer returns sequences", i)
			}
			l, err := newDense(ls, dim)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			n.layers = append(n.layers, l)
			dim = ls.Units
		case LayerDropout:
			if ls.Rate < 0 || ls.Rate >= 1 {
				return nil, fmt.Errorf("layer %d: dropout rate %g out of [0, 1)", i, ls.Rate)
			}
		default:
			return nil, fmt.Errorf("layer %d: unsupported layer type %q", i, ls.Type)
		}
	}
	if last := spec.Layers[len(spec.Layers)-1]; last.Type != LayerDense {
		return nil, fmt.Errorf("last layer must be dense, got %q", last.Type)
	}
	return n, nil
}

func (n *Network) Name() string { return n.name }

func (n *Network) InputDim() int { return n.inputDim }

// Forward runs the network over seq (steps x input_dim) and returns the
// outputs of the final dense layer.
func (n *Network) Forward(seq [][]float64) ([]float64, error) {
	if len(seq) == 0 {
		return nil, errEmptySequence
	}
	for t, row := range seq {
		if len(row) != n.inputDim {
			return nil, fmt.Errorf("step %d: got %d features, model expects %d", t, len(row), n.inputDim)
		}
	}
	x := seq
	for _, l := range n.layers {
		x = l.forward(x)
	}
	return x[0], nil
}

type lstmLayer struct {
	units     int
	kernel    [][]float64 // in x 4u
	recurrent [][]float64 // u x 4u
	bias      []float64   // 4u
	returnSeq bool
}

func newLSTM(ls LayerSpec, in int) (*lstmLayer, error) {
	u := ls.Units
	if u <= 0 {
		return nil, fmt.Errorf("lstm: units must be positive")
	}
	if err := checkMatrix("lstm kernel", ls.Kernel, in, 4*u); err != nil {
		return nil, err
	}
	if err := checkMatrix("lstm recurrent_kernel", ls.RecurrentKernel, u, 4*u); err != nil {
		return nil, err
	}
	if err := checkVector("lstm bias", ls.Bias, 4*u); err != nil {
		return nil, err
	}
	return &lstmLayer{
		units:     u,
		kernel:    ls.Kernel,
		recurrent: ls.RecurrentKernel,
		bias:      ls.Bias,
		returnSeq: ls.ReturnSequences,
	}, nil
}

func (l *lstmLayer) forward(seq [][]float64) [][]float64 {
	u := l.units
	h := make([]float64, u)
	c := make([]float64, u)
	z := make([]float64, 4*u)

	var out [][]float64
	if l.returnSeq {
		out = make([][]float64, 0, len(seq))
	}
	for _, x := range seq {
		copy(z, l.bias)
		accumulate(z, x, l.kernel)
		accumulate(z, h, l.recurrent)

		next := make([]float64, u)
		for j := 0; j < u; j++ {
			ig := sigmoid(z[j])
			fg := sigmoid(z[u+j])
			cc := math.Tanh(z[2*u+j])
			og := sigmoid(z[3*u+j])
			c[j] = fg*c[j] + ig*cc
			next[j] = og * math.Tanh(c[j])
		}
		h = next
		if l.returnSeq {
			out = append(out, h)
		}
	}
	if l.returnSeq {
		return out
	}
	return [][]float64{h}
}

type denseLayer struct {
	kernel     [][]float64 // in x units
	bias       []float64
	activation func(float64) float64
}

func newDense(ls LayerSpec, in int) (*denseLayer, error) {
	if ls.Units <= 0 {
		return nil, fmt.Errorf("dense: units must be positive")
	}
	if err := checkMatrix("dense kernel", ls.Kernel, in, ls.Units); err != nil {
		return nil, err
	}
	if err := checkVector("dense bias", ls.Bias, ls.Units); err != nil {
		return nil, err
	}
	act, err := activation(ls.Activation)
	if err != nil {
		return nil, err
	}
	return &denseLayer{kernel: ls.Kernel, bias: ls.Bias, activation: act}, nil
}

func (l *denseLayer) forward(seq [][]float64) [][]float64 {
	out := make([]float64, len(l.bias))
	copy(out, l.bias)
	accumulate(out, seq[0], l.kernel)
	for i := range out {
		out[i] = l.activation(out[i])
	}
	return [][]float64{out}
}

// accumulate adds x·w to dst.
func accumulate(dst, x []float64, w [][]float64) {
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		row := w[i]
		for j := range dst {
			dst[j] += xi * row[j]
		}
	}
}

func activation(name string) (func(float64) float64, error) {
	switch name {
	case "", "linear":
		return func(x float64) float64 { return x }, nil
	case "relu":
		return func(x float64) float64 { return math.Max(0, x) }, nil
	case "sigmoid":
		return sigmoid, nil
	case "tanh":
		return math.Tanh, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func checkMatrix(name string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("%s: got %d rows, want %d", name, len(m), rows)
	}
	for i, row := range m {
		if err := checkVector(fmt.Sprintf("%s row %d", name, i), row, cols); err != nil {
			return err
		}
	}
	return nil
}

func checkVector(name string, v []float64, n int) error {
	if len(v) != n {
		return fmt.Errorf("%s: got length %d, want %d", name, len(v), n)
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%s: non-finite weight", name)
		}
	}
	return nil
}
