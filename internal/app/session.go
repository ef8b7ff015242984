// Package app runs prediction sessions: live camera loops, single image
// prediction and the interactive menu of the predict command.
package app

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/signsync/internal/capture"
	"github.com/ayusman/signsync/internal/classify"
	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/smooth"
)

// FrameDelay is the pause between iterations of a camera loop.
const FrameDelay = 30 * time.Millisecond

// Prediction is the outcome of processing one frame or image.
type Prediction struct {
	Label      string                  `json:"label"`
	Confidence float64                 `json:"confidence"`
	Hand       *detector.HandLandmarks `json:"-"`
	At         time.Time               `json:"timestamp"`
}

// HandDetected reports whether a hand was found.
func (p Prediction) HandDetected() bool {
	return p.Hand != nil
}

// Session owns one smoothing window. It is not safe for concurrent use.
type Session struct {
	extractor *detector.Extractor
	predictor *classify.Predictor
	smoother  *smooth.Smoother
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewSession creates a session. predictor may be nil, in which case every
// frame with a hand reports classify.LabelModelNotLoaded.
func NewSession(ex *detector.Extractor, predictor *classify.Predictor, smoother *smooth.Smoother, log logrus.FieldLogger) *Session {
	if smoother == nil {
		smoother = smooth.NewDefault()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		extractor: ex,
		predictor: predictor,
		smoother:  smoother,
		log:       log.WithField("component", "session"),
		now:       time.Now,
	}
}

// Predictor returns the classifier used by the session.
func (s *Session) Predictor() *classify.Predictor {
	return s.predictor
}

// ProcessFrame classifies a live frame and smooths the result. Frames
// without a hand report classify.LabelNoHand and leave the window as is.
func (s *Session) ProcessFrame(frame *gocv.Mat) Prediction {
	p := s.predict(frame)
	if p.HandDetected() {
		p.Label, p.Confidence = s.smoother.Update(p.Label, p.Confidence)
	}
	return p
}

// PredictMat classifies a single image without smoothing.
func (s *Session) PredictMat(img *gocv.Mat) Prediction {
	return s.predict(img)
}

// PredictImage loads and classifies an image file without smoothing. A
// missing file returns capture.ErrImageNotFound; any other failure is
// reported as classify.LabelError.
func (s *Session) PredictImage(path string) (Prediction, error) {
	img, err := capture.LoadImage(path)
	if errors.Is(err, capture.ErrImageNotFound) {
		return Prediction{}, err
	}
	if err != nil {
		s.log.WithError(err).WithField("file", path).Error("error processing image")
		return Prediction{Label: classify.LabelError, At: s.now()}, nil
	}
	defer img.Close()

	return s.predict(img), nil
}

func (s *Session) predict(frame *gocv.Mat) Prediction {
	at := s.now()

	hand, err := s.extractor.Extract(frame)
	if errors.Is(err, detector.ErrNoHand) {
		return Prediction{Label: classify.LabelNoHand, At: at}
	}
	if err != nil {
		s.log.WithError(err).Warn("landmark extraction failed")
		return Prediction{Label: classify.LabelError, At: at}
	}

	res := s.predictor.Predict(hand.Vector())
	return Prediction{
		Label:      res.Label,
		Confidence: res.Confidence,
		Hand:       hand,
		At:         at,
	}
}
