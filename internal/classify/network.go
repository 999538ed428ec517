package classify

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/ppiankov/phishlens/internal/extract"
)

// Classifier turns a normalized feature vector into a phishing probability
type Classifier interface {
	Infer(normalized []float64) (float64, error)
}

// Layer is one fully connected layer: out = act(W·in + b)
type Layer struct {
	Weights    [][]float64 `json:"weights"` // [out][in]
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"` // relu, tanh, sigmoid, linear
}

// Network is a small feed-forward binary classifier loaded from JSON.
// Safe for concurrent use once loaded.
type Network struct {
	Name    string  `json:"name"`
	Version string  `json:"version"`
	Layers  []Layer `json:"layers"`

	width   int
	scratch sync.Pool
}

// ReadNetwork decodes and validates network weights
func ReadNetwork(r io.Reader) (*Network, error) {
	var n Network
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	if err := n.init(); err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *Network) init() error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("network: no layers")
	}

	in := extract.NumFeatures
	width := in
	for li, layer := range n.Layers {
		if len(layer.Weights) == 0 || len(layer.Weights) != len(layer.Bias) {
			return fmt.Errorf("network: layer %d has %d weight rows and %d biases", li, len(layer.Weights), len(layer.Bias))
		}
		for ri, row := range layer.Weights {
			if len(row) != in {
				return fmt.Errorf("network: layer %d row %d has %d inputs, want %d", li, ri, len(row), in)
			}
			for _, w := range row {
				if !finite(w) {
					return fmt.Errorf("network: layer %d has non-finite weight", li)
				}
			}
		}
		if _, ok := activations[layer.Activation]; !ok {
			return fmt.Errorf("network: layer %d has unknown activation %q", li, layer.Activation)
		}
		in = len(layer.Weights)
		if in > width {
			width = in
		}
	}

	last := n.Layers[len(n.Layers)-1]
	if len(last.Weights) != 1 || last.Activation != "sigmoid" {
		return fmt.Errorf("network: final layer must be a single sigmoid unit")
	}

	n.width = width
	n.scratch.New = func() any {
		buf := make([]float64, 2*width)
		return &buf
	}
	return nil
}

// Infer runs a forward pass. Activation buffers come from a pool and are
// returned on every exit path.
func (n *Network) Infer(normalized []float64) (prob float64, err error) {
	if err := checkLength(normalized, extract.NumFeatures); err != nil {
		return 0, err
	}
	if n.width == 0 {
		return 0, &ModelUnavailableError{State: StateNotLoaded}
	}

	bufp := n.scratch.Get().(*[]float64)
	defer n.scratch.Put(bufp)

	// activations ping-pong between the two halves of the scratch buffer
	halves := [2][]float64{(*bufp)[:n.width:n.width], (*bufp)[n.width:]}
	src := 0
	cur := halves[src][:len(normalized)]
	copy(cur, normalized)

	for _, layer := range n.Layers {
		act := activations[layer.Activation]
		dst := 1 - src
		out := halves[dst][:len(layer.Weights)]
		for j, row := range layer.Weights {
			sum := layer.Bias[j]
			for k, w := range row {
				sum += w * cur[k]
			}
			out[j] = act(sum)
		}
		cur, src = out, dst
	}

	prob = cur[0]
	if math.IsNaN(prob) {
		return 0, fmt.Errorf("network produced NaN")
	}
	return math.Min(math.Max(prob, 0), 1), nil
}

var activations = map[string]func(float64) float64{
	"relu": func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return x
	},
	"tanh":    math.Tanh,
	"sigmoid": sigmoid,
	"linear":  func(x float64) float64 { return x },
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
