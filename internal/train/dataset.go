package train

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/signsync/internal/capture"
	"github.com/ayusman/signsync/internal/detector"
)

// ErrNoTrainingData is returned when no usable sample was found.
var ErrNoTrainingData = errors.New("no training data found")

// FeatureExtractor turns one image file into a landmark vector.
type FeatureExtractor interface {
	ExtractFile(path string) (detector.Vector, error)
}

// ImageFeatures reads images from disk and runs them through an Extractor.
type ImageFeatures struct {
	Extractor *detector.Extractor
	Load      func(path string) (*gocv.Mat, error)
}

// NewImageFeatures uses capture.LoadImage to read files.
func NewImageFeatures(ex *detector.Extractor) *ImageFeatures {
	return &ImageFeatures{Extractor: ex, Load: capture.LoadImage}
}

// ExtractFile implements FeatureExtractor.
func (f *ImageFeatures) ExtractFile(path string) (detector.Vector, error) {
	img, err := f.Load(path)
	if err != nil {
		return detector.Vector{}, err
	}
	defer img.Close()

	hand, err := f.Extractor.Extract(img)
	if err != nil {
		return detector.Vector{}, err
	}
	return hand.Vector(), nil
}

// Dataset is the extracted feature set of a data directory.
type Dataset struct {
	Features []detector.Vector
	Labels   []string
	Counts   map[string]int
	NoHand   int
	Failed   int
}

// Len returns the number of usable samples.
func (d *Dataset) Len() int {
	return len(d.Features)
}

// LoadDataset extracts features from root/<label>/*.{png,jpg,jpeg} for each
// label. Missing label directories and unusable images are logged and
// skipped.
func LoadDataset(root string, labels []string, fx FeatureExtractor, log logrus.FieldLogger) (*Dataset, error) {
	ds := &Dataset{Counts: make(map[string]int)}

	for _, label := range labels {
		dir := filepath.Join(root, label)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("label", label).Warn("class directory not found")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && capture.IsImageFile(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			v, err := fx.ExtractFile(path)
			switch {
			case errors.Is(err, detector.ErrNoHand):
				ds.NoHand++
				log.WithField("file", path).Debug("no hand detected")
				continue
			case err != nil:
				ds.Failed++
				log.WithError(err).WithField("file", path).Warn("skipping image")
				continue
			}

			ds.Features = append(ds.Features, v)
			ds.Labels = append(ds.Labels, label)
			ds.Counts[label]++
		}

		log.WithFields(logrus.Fields{
			"label":   label,
			"images":  len(names),
			"samples": ds.Counts[label],
		}).Info("class processed")
	}

	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTrainingData, root)
	}
	return ds, nil
}
