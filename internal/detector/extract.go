package detector

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrNoHand is returned by Extract when the frame holds no detectable hand.
// It is an expected outcome, not a failure.
var ErrNoHand = errors.New("no hand detected")

// Extractor turns frames into the landmarks of the first detected hand.
type Extractor struct {
	detector Detector
}

// NewExtractor wraps a Detector.
func NewExtractor(d Detector) *Extractor {
	return &Extractor{detector: d}
}

// Extract returns the first hand in the frame, or ErrNoHand.
func (e *Extractor) Extract(frame *gocv.Mat) (*HandLandmarks, error) {
	hands, err := e.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect hands: %w", err)
	}
	if len(hands) == 0 {
		return nil, ErrNoHand
	}
	hand := hands[0]
	return &hand, nil
}

// Close releases the underlying detector.
func (e *Extractor) Close() error {
	return e.detector.Close()
}
