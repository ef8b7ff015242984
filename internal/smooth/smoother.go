// Package smooth reduces frame-to-frame jitter in per-frame classifications
// by majority voting over a short rolling window.
package smooth

import "gonum.org/v1/gonum/stat"

// Default window parameters.
const (
	DefaultCapacity   = 5
	DefaultMinSamples = 3
)

// Sample is one per-frame classification.
type Sample struct {
	Label      string
	Confidence float64
}

// Smoother keeps the most recent samples and votes over them.
// It is not safe for concurrent use; each prediction session owns one.
type Smoother struct {
	capacity   int
	minSamples int
	window     []Sample
}

// New creates a Smoother. Non-positive arguments select the defaults, and
// minSamples is clamped to capacity.
func New(capacity, minSamples int) *Smoother {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if minSamples > capacity {
		minSamples = capacity
	}
	return &Smoother{
		capacity:   capacity,
		minSamples: minSamples,
		window:     make([]Sample, 0, capacity+1),
	}
}

// NewDefault creates a Smoother with a window of 5 that votes from 3 samples on.
func NewDefault() *Smoother {
	return New(DefaultCapacity, DefaultMinSamples)
}

// Update records a sample and returns the smoothed label and confidence.
//
// Until minSamples entries are held the input is returned unchanged. After
// that the result is the most frequent label in the window together with the
// mean confidence of the entries carrying it. When labels tie, the one whose
// first occurrence in the window is oldest wins.
func (s *Smoother) Update(label string, confidence float64) (string, float64) {
	s.window = append(s.window, Sample{Label: label, Confidence: confidence})
	if len(s.window) > s.capacity {
		// Evict the oldest entry.
		copy(s.window, s.window[1:])
		s.window = s.window[:s.capacity]
	}

	if len(s.window) < s.minSamples {
		return label, confidence
	}

	mode := s.mode()

	confidences := make([]float64, 0, len(s.window))
	for _, sm := range s.window {
		if sm.Label == mode {
			confidences = append(confidences, sm.Confidence)
		}
	}

	return mode, stat.Mean(confidences, nil)
}

// mode counts labels in window order, so a strict comparison keeps the
// earliest-seen label on ties.
func (s *Smoother) mode() string {
	counts := make(map[string]int, len(s.window))
	order := make([]string, 0, len(s.window))
	for _, sm := range s.window {
		if counts[sm.Label] == 0 {
			order = append(order, sm.Label)
		}
		counts[sm.Label]++
	}

	best := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best
}

// Len returns the number of samples currently in the window.
func (s *Smoother) Len() int {
	return len(s.window)
}

// Window returns a copy of the window, oldest first.
func (s *Smoother) Window() []Sample {
	out := make([]Sample, len(s.window))
	copy(out, s.window)
	return out
}
