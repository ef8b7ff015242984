package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/labels"
	"github.com/ayusman/signsync/internal/logging"
	"github.com/ayusman/signsync/internal/nn"
)

type stubModel struct {
	probs  []float64
	err    error
	got    []float64
	closed bool
}

func (s *stubModel) Probabilities(f []float64) ([]float64, error) {
	s.got = f
	return s.probs, s.err
}

func (s *stubModel) Close() error {
	s.closed = true
	return nil
}

func newEncoder(t *testing.T, classes ...string) *labels.Encoder {
	t.Helper()
	enc, err := labels.New(classes)
	require.NoError(t, err)
	return enc
}

func TestPredictor_NotLoaded(t *testing.T) {
	var p *Predictor

	res := p.Predict(detector.Vector{})

	assert.Equal(t, LabelModelNotLoaded, res.Label)
	assert.Zero(t, res.Confidence)
	assert.False(t, p.Loaded())
	assert.Nil(t, p.Classes())
	assert.NoError(t, p.Close())
}

func TestPredictor_Argmax(t *testing.T) {
	model := &stubModel{probs: []float64{0.1, 0.7, 0.2}}
	p, err := NewPredictor(model, newEncoder(t, "A", "B", "C"), logging.Discard())
	require.NoError(t, err)

	hand := detector.OpenPalmLandmarks()
	res := p.Predict(hand.Vector())

	assert.Equal(t, "B", res.Label)
	assert.InDelta(t, 0.7, res.Confidence, 1e-12)
	assert.Len(t, model.got, detector.VectorSize)
	assert.Equal(t, []string{"A", "B", "C"}, p.Classes())

	require.NoError(t, p.Close())
	assert.True(t, model.closed)
}

func TestPredictor_Failures(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		p, err := NewPredictor(&stubModel{err: errors.New("boom")}, newEncoder(t, "A"), logging.Discard())
		require.NoError(t, err)

		res := p.Predict(detector.Vector{})
		assert.Equal(t, Result{Label: LabelError}, res)
	})

	t.Run("empty output", func(t *testing.T) {
		p, err := NewPredictor(&stubModel{}, newEncoder(t, "A"), logging.Discard())
		require.NoError(t, err)

		assert.Equal(t, LabelError, p.Predict(detector.Vector{}).Label)
	})

	t.Run("encoder smaller than output", func(t *testing.T) {
		p, err := NewPredictor(&stubModel{probs: []float64{0.1, 0.9}}, newEncoder(t, "A"), logging.Discard())
		require.NoError(t, err)

		assert.Equal(t, LabelError, p.Predict(detector.Vector{}).Label)
	})
}

func TestNewPredictor_RequiresBoth(t *testing.T) {
	_, err := NewPredictor(nil, newEncoder(t, "A"), nil)
	assert.Error(t, err)

	_, err = NewPredictor(&stubModel{}, nil, nil)
	assert.Error(t, err)
}

func TestPredictor_WithNetwork(t *testing.T) {
	net, err := nn.NewClassifier(detector.VectorSize, 2, 42)
	require.NoError(t, err)

	p, err := NewPredictor(net, newEncoder(t, "A", "B"), logging.Discard())
	require.NoError(t, err)

	hand := detector.FistLandmarks()
	res := p.Predict(hand.Vector())

	assert.Contains(t, []string{"A", "B"}, res.Label)
	assert.GreaterOrEqual(t, res.Confidence, 0.5)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestLoadONNX_RequiresShape(t *testing.T) {
	_, err := LoadONNX("model.onnx", ONNXOptions{})
	assert.Error(t, err)
}
