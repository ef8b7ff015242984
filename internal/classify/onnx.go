package classify

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions names the graph inputs and outputs of an exported model.
type ONNXOptions struct {
	SharedLibrary string
	InputName     string
	OutputName    string
	Inputs        int
	Classes       int
}

var (
	ortOnce sync.Once
	ortErr  error
)

func initORT(sharedLib string) error {
	ortOnce.Do(func() {
		if sharedLib != "" {
			ort.SetSharedLibraryPath(sharedLib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXModel runs an exported classifier through ONNX Runtime. The graph
// must take a [1, Inputs] float tensor and return [1, Classes]
// probabilities.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	inputs  int
}

// LoadONNX opens a model file.
func LoadONNX(path string, opts ONNXOptions) (*ONNXModel, error) {
	if opts.Inputs <= 0 || opts.Classes <= 0 {
		return nil, fmt.Errorf("onnx model needs input and class counts")
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	if err := initORT(opts.SharedLibrary); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.Inputs)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.Classes)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXModel{
		session: session,
		input:   input,
		output:  output,
		inputs:  opts.Inputs,
	}, nil
}

// Probabilities implements Model.
func (m *ONNXModel) Probabilities(features []float64) ([]float64, error) {
	if len(features) != m.inputs {
		return nil, fmt.Errorf("expected %d features, got %d", m.inputs, len(features))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	in := m.input.GetData()
	for i, f := range features {
		in[i] = float32(f)
	}

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := m.output.GetData()
	probs := make([]float64, len(out))
	for i, v := range out {
		probs[i] = float64(v)
	}
	return probs, nil
}

// Close releases the session and tensors.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	if m.session != nil {
		err := m.session.Destroy()
		m.session = nil
		return err
	}
	return nil
}
