package nn

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatVersion identifies the serialized network layout.
const FormatVersion = "signsync-ffn/v1"

type networkFile struct {
	Format string      `json:"format"`
	Inputs int         `json:"inputs"`
	Layers []layerFile `json:"layers"`
}

type layerFile struct {
	Type       string     `json:"type"`
	Inputs     int        `json:"inputs,omitempty"`
	Outputs    int        `json:"outputs,omitempty"`
	Activation Activation `json:"activation,omitempty"`
	Rate       float64    `json:"rate,omitempty"`
	Weights    []float64  `json:"weights,omitempty"`
	Bias       []float64  `json:"bias,omitempty"`
}

// Save writes the network architecture and weights as JSON.
func (n *Network) Save(w io.Writer) error {
	f := networkFile{Format: FormatVersion, Inputs: n.inputs}
	for _, l := range n.layers {
		switch l := l.(type) {
		case *Dense:
			f.Layers = append(f.Layers, layerFile{
				Type:       "dense",
				Inputs:     l.In,
				Outputs:    l.Out,
				Activation: l.Activation,
				Weights:    l.w.data,
				Bias:       l.b.data,
			})
		case *Dropout:
			f.Layers = append(f.Layers, layerFile{Type: "dropout", Rate: l.Rate})
		default:
			return fmt.Errorf("cannot serialize layer %T", l)
		}
	}
	return json.NewEncoder(w).Encode(f)
}

// Load reads a network written by Save. The shapes are checked so a
// truncated or hand-edited file fails here rather than at inference.
func Load(r io.Reader) (*Network, error) {
	var f networkFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	if f.Format != FormatVersion {
		return nil, fmt.Errorf("unsupported network format %q", f.Format)
	}
	if f.Inputs <= 0 {
		return nil, fmt.Errorf("invalid input width %d", f.Inputs)
	}

	n := &Network{inputs: f.Inputs, rng: newRand(0)}
	width := f.Inputs
	dense := 0
	for i, lf := range f.Layers {
		switch lf.Type {
		case "dense":
			if lf.Inputs != width {
				return nil, fmt.Errorf("layer %d: expects %d inputs, previous layer gives %d", i, lf.Inputs, width)
			}
			if lf.Outputs <= 0 || len(lf.Weights) != lf.Inputs*lf.Outputs || len(lf.Bias) != lf.Outputs {
				return nil, fmt.Errorf("layer %d: weight shape does not match %dx%d", i, lf.Inputs, lf.Outputs)
			}
			switch lf.Activation {
			case ActivationLinear, ActivationReLU, ActivationSoftmax:
			default:
				return nil, fmt.Errorf("layer %d: unknown activation %q", i, lf.Activation)
			}
			n.layers = append(n.layers, newDenseFrom(lf.Inputs, lf.Outputs, lf.Activation, lf.Weights, lf.Bias))
			width = lf.Outputs
			dense++
		case "dropout":
			if lf.Rate < 0 || lf.Rate >= 1 {
				return nil, fmt.Errorf("layer %d: dropout rate %v out of range", i, lf.Rate)
			}
			n.layers = append(n.layers, NewDropout(lf.Rate, n.rng))
		default:
			return nil, fmt.Errorf("layer %d: unknown type %q", i, lf.Type)
		}
	}
	if dense == 0 {
		return nil, fmt.Errorf("network has no dense layers")
	}

	return n, nil
}

// LoadFile reads a network from disk.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
