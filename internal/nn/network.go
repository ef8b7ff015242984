package nn

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Network is a sequential stack of layers ending in a softmax.
type Network struct {
	inputs int
	layers []Layer
	rng    *rand.Rand
}

// NewClassifier builds the landmark classifier:
// 256 relu, dropout 0.3, 128 relu, dropout 0.3, 64 relu, dropout 0.2,
// then a softmax over the classes.
func NewClassifier(inputs, classes int, seed uint64) (*Network, error) {
	if inputs <= 0 {
		return nil, fmt.Errorf("input width must be positive, got %d", inputs)
	}
	if classes < 1 {
		return nil, fmt.Errorf("need at least one class, got %d", classes)
	}

	rng := newRand(seed)
	n := &Network{inputs: inputs, rng: rng}
	n.layers = []Layer{
		NewDense(inputs, 256, ActivationReLU, rng),
		NewDropout(0.3, rng),
		NewDense(256, 128, ActivationReLU, rng),
		NewDropout(0.3, rng),
		NewDense(128, 64, ActivationReLU, rng),
		NewDropout(0.2, rng),
		NewDense(64, classes, ActivationSoftmax, rng),
	}
	return n, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Inputs returns the expected feature width.
func (n *Network) Inputs() int {
	return n.inputs
}

// Classes returns the width of the output layer.
func (n *Network) Classes() int {
	width := n.inputs
	for _, l := range n.layers {
		width = l.outputs(width)
	}
	return width
}

// Forward runs a batch through the network. Rows are samples. Only a
// training pass caches activations for backward.
func (n *Network) Forward(x *mat.Dense, training bool) *mat.Dense {
	out := x
	for _, l := range n.layers {
		out = l.forward(out, training)
	}
	return out
}

// Probabilities returns the class distribution for one feature vector.
// Inference writes no layer state, so concurrent calls are safe as long as
// no Fit is running.
func (n *Network) Probabilities(features []float64) ([]float64, error) {
	if len(features) != n.inputs {
		return nil, fmt.Errorf("expected %d features, got %d", n.inputs, len(features))
	}
	x := mat.NewDense(1, n.inputs, append([]float64(nil), features...))
	out := n.Forward(x, false)
	return append([]float64(nil), out.RawRowView(0)...), nil
}

// Close is a no-op; the native network holds no external resources.
func (n *Network) Close() error {
	return nil
}

// Summary returns one line per layer plus the total parameter count.
func (n *Network) Summary() []string {
	lines := make([]string, 0, len(n.layers)+1)
	total := 0
	for _, l := range n.layers {
		lines = append(lines, l.describe())
		for _, p := range l.params() {
			total += len(p.data)
		}
	}
	return append(lines, fmt.Sprintf("total params=%d", total))
}

func (n *Network) params() []*param {
	var ps []*param
	for _, l := range n.layers {
		ps = append(ps, l.params()...)
	}
	return ps
}

func (n *Network) backward(grad *mat.Dense) {
	for i := len(n.layers) - 1; i >= 0; i-- {
		grad = n.layers[i].backward(grad)
	}
}

// snapshot copies all trainable values.
func (n *Network) snapshot() [][]float64 {
	ps := n.params()
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = append([]float64(nil), p.data...)
	}
	return out
}

func (n *Network) restore(snap [][]float64) {
	for i, p := range n.params() {
		copy(p.data, snap[i])
	}
}

// argmax returns the index of the largest value in each row.
func argmax(m *mat.Dense) []int {
	rows, _ := m.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = floats.MaxIdx(m.RawRowView(i))
	}
	return out
}
