// Package nn implements the small feed-forward classifier used for landmark
// vectors: dense layers with ReLU, dropout, and a softmax output trained with
// sparse categorical cross-entropy and Adam.
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Activation names a dense layer activation.
type Activation string

const (
	ActivationLinear  Activation = "linear"
	ActivationReLU    Activation = "relu"
	ActivationSoftmax Activation = "softmax"
)

// param is a trainable tensor flattened to a slice, with its gradient and
// Adam moment estimates.
type param struct {
	data []float64
	grad []float64
	m    []float64
	v    []float64
}

func newParam(data []float64) *param {
	return &param{
		data: data,
		grad: make([]float64, len(data)),
		m:    make([]float64, len(data)),
		v:    make([]float64, len(data)),
	}
}

// Layer is one stage of a sequential network.
type Layer interface {
	forward(x *mat.Dense, training bool) *mat.Dense
	backward(grad *mat.Dense) *mat.Dense
	params() []*param
	outputs(inputs int) int
	describe() string
}

// Dense is a fully connected layer: y = act(x·W + b).
type Dense struct {
	In         int
	Out        int
	Activation Activation

	w *param
	b *param

	input *mat.Dense
	z     *mat.Dense
}

// NewDense creates a dense layer with Glorot-uniform weights and zero bias.
func NewDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	limit := math.Sqrt(6.0 / float64(in+out))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return newDenseFrom(in, out, act, w, make([]float64, out))
}

func newDenseFrom(in, out int, act Activation, w, b []float64) *Dense {
	return &Dense{
		In:         in,
		Out:        out,
		Activation: act,
		w:          newParam(w),
		b:          newParam(b),
	}
}

func (d *Dense) weights() *mat.Dense {
	return mat.NewDense(d.In, d.Out, d.w.data)
}

func (d *Dense) forward(x *mat.Dense, training bool) *mat.Dense {
	var z mat.Dense
	z.Mul(x, d.weights())
	bias := d.b.data
	z.Apply(func(_, j int, v float64) float64 { return v + bias[j] }, &z)

	if training {
		d.input = x
		d.z = &z
	}

	switch d.Activation {
	case ActivationReLU:
		var a mat.Dense
		a.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, &z)
		return &a
	case ActivationSoftmax:
		return softmax(&z)
	default:
		return &z
	}
}

// backward takes dL/dA and returns dL/dX. For a softmax layer the incoming
// gradient is already dL/dZ, since softmax is always paired with
// cross-entropy in the loss.
func (d *Dense) backward(grad *mat.Dense) *mat.Dense {
	dz := grad
	if d.Activation == ActivationReLU {
		var masked mat.Dense
		z := d.z
		masked.Apply(func(i, j int, v float64) float64 {
			if z.At(i, j) > 0 {
				return v
			}
			return 0
		}, grad)
		dz = &masked
	}

	wGrad := mat.NewDense(d.In, d.Out, d.w.grad)
	wGrad.Mul(d.input.T(), dz)

	rows, _ := dz.Dims()
	for j := range d.b.grad {
		d.b.grad[j] = 0
	}
	for i := 0; i < rows; i++ {
		floats.Add(d.b.grad, dz.RawRowView(i))
	}

	var dx mat.Dense
	dx.Mul(dz, d.weights().T())
	return &dx
}

func (d *Dense) params() []*param { return []*param{d.w, d.b} }

func (d *Dense) outputs(int) int { return d.Out }

func (d *Dense) describe() string {
	return fmt.Sprintf("dense (%d -> %d, %s) params=%d", d.In, d.Out, d.Activation, d.In*d.Out+d.Out)
}

// Dropout zeroes a fraction of activations during training and rescales the
// rest by 1/(1-rate). It is the identity at inference.
type Dropout struct {
	Rate float64

	rng  *rand.Rand
	mask *mat.Dense
}

// NewDropout creates a dropout layer.
func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

func (d *Dropout) forward(x *mat.Dense, training bool) *mat.Dense {
	if !training {
		return x
	}
	if d.Rate <= 0 {
		d.mask = nil
		return x
	}

	rows, cols := x.Dims()
	keep := 1 - d.Rate
	data := make([]float64, rows*cols)
	for i := range data {
		if d.rng.Float64() < keep {
			data[i] = 1 / keep
		}
	}
	d.mask = mat.NewDense(rows, cols, data)

	var out mat.Dense
	out.MulElem(x, d.mask)
	return &out
}

func (d *Dropout) backward(grad *mat.Dense) *mat.Dense {
	if d.mask == nil {
		return grad
	}
	var out mat.Dense
	out.MulElem(grad, d.mask)
	return &out
}

func (d *Dropout) params() []*param { return nil }

func (d *Dropout) outputs(inputs int) int { return inputs }

func (d *Dropout) describe() string {
	return fmt.Sprintf("dropout (rate %.2f)", d.Rate)
}

// softmax applies a numerically stable softmax to each row.
func softmax(z *mat.Dense) *mat.Dense {
	rows, cols := z.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		src := z.RawRowView(i)
		dst := out.RawRowView(i)
		maxV := floats.Max(src)
		var sum float64
		for j, v := range src {
			e := math.Exp(v - maxV)
			dst[j] = e
			sum += e
		}
		floats.Scale(1/sum, dst)
	}
	return out
}
