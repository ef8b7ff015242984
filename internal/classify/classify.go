// Package classify turns landmark vectors into sign labels using a trained
// model and the label encoder it was trained with.
package classify

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/labels"
)

// Labels reported in place of a class when no class can be given.
const (
	LabelModelNotLoaded = "Model not loaded"
	LabelNoHand         = "No hand detected"
	LabelError          = "Error"
)

// Model produces a probability distribution over class indices.
type Model interface {
	Probabilities(features []float64) ([]float64, error)
	Close() error
}

// Result is one classification.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Predictor pairs a model with the encoder produced in the same training
// run. A nil *Predictor is valid and reports that no model is loaded.
type Predictor struct {
	model   Model
	encoder *labels.Encoder
	log     logrus.FieldLogger
}

// NewPredictor pairs a model and its encoder.
func NewPredictor(model Model, encoder *labels.Encoder, log logrus.FieldLogger) (*Predictor, error) {
	if model == nil || encoder == nil {
		return nil, fmt.Errorf("model and encoder are both required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Predictor{
		model:   model,
		encoder: encoder,
		log:     log.WithField("component", "classifier"),
	}, nil
}

// Loaded reports whether p can classify.
func (p *Predictor) Loaded() bool {
	return p != nil && p.model != nil && p.encoder != nil
}

// Classes returns the labels the model can produce.
func (p *Predictor) Classes() []string {
	if !p.Loaded() {
		return nil
	}
	return p.encoder.Classes()
}

// Predict classifies one landmark vector. It never fails: an unloaded
// predictor yields LabelModelNotLoaded and a model failure yields
// LabelError, both with zero confidence.
func (p *Predictor) Predict(v detector.Vector) Result {
	if !p.Loaded() {
		return Result{Label: LabelModelNotLoaded}
	}

	probs, err := p.model.Probabilities(v.Slice())
	if err != nil {
		p.log.WithError(err).Error("prediction failed")
		return Result{Label: LabelError}
	}
	if len(probs) == 0 {
		p.log.Error("model returned no probabilities")
		return Result{Label: LabelError}
	}

	idx := floats.MaxIdx(probs)
	label, err := p.encoder.Decode(idx)
	if err != nil {
		p.log.WithError(err).Error("decode class")
		return Result{Label: LabelError}
	}

	return Result{Label: label, Confidence: probs[idx]}
}

// Close releases the model.
func (p *Predictor) Close() error {
	if !p.Loaded() {
		return nil
	}
	return p.model.Close()
}
