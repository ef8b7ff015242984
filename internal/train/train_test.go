package train

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/signsync/internal/artifact"
	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/logging"
	"github.com/ayusman/signsync/internal/nn"
	"github.com/ayusman/signsync/internal/store"
)

// clusterFeatures maps each file to a point near a per-class center so the
// classes are trivially separable. Files named nohand* report no hand and
// files named broken* fail.
type clusterFeatures struct {
	centers map[string]float64
}

func (c clusterFeatures) ExtractFile(path string) (detector.Vector, error) {
	base := filepath.Base(path)
	switch {
	case len(base) >= 6 && base[:6] == "nohand":
		return detector.Vector{}, detector.ErrNoHand
	case len(base) >= 6 && base[:6] == "broken":
		return detector.Vector{}, errors.New("corrupt image")
	}

	label := filepath.Base(filepath.Dir(path))
	h := fnv.New32a()
	h.Write([]byte(base))
	jitter := float64(h.Sum32()%100) / 2000

	var v detector.Vector
	for i := range v {
		v[i] = c.centers[label] + jitter
	}
	return v, nil
}

func writeImages(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0644))
	}
}

func classFiles(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "img_" + string(rune('a'+i)) + ".png"
	}
	return names
}

func TestLoadDataset(t *testing.T) {
	root := t.TempDir()
	writeImages(t, filepath.Join(root, "A"), "1.png", "2.JPG", "3.jpeg", "notes.txt", "nohand.png", "broken.png")
	writeImages(t, filepath.Join(root, "B"), "1.png")

	fx := clusterFeatures{centers: map[string]float64{"A": 0.1, "B": 0.9}}
	ds, err := LoadDataset(root, []string{"A", "B", "C"}, fx, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, 4, ds.Len())
	assert.Equal(t, map[string]int{"A": 3, "B": 1}, ds.Counts)
	assert.Equal(t, []string{"A", "A", "A", "B"}, ds.Labels)
	assert.Equal(t, 1, ds.NoHand)
	assert.Equal(t, 1, ds.Failed)
}

func TestLoadDataset_Empty(t *testing.T) {
	root := t.TempDir()
	writeImages(t, filepath.Join(root, "A"), "nohand.png")

	_, err := LoadDataset(root, []string{"A", "B"}, clusterFeatures{}, logging.Discard())
	assert.ErrorIs(t, err, ErrNoTrainingData)
}

func TestImageFeatures(t *testing.T) {
	mock := detector.NewMockDetector()
	mock.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})

	fx := &ImageFeatures{
		Extractor: detector.NewExtractor(mock),
		Load: func(path string) (*gocv.Mat, error) {
			m := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
			return &m, nil
		},
	}

	v, err := fx.ExtractFile("A/1.png")
	require.NoError(t, err)
	hand := detector.OpenPalmLandmarks()
	assert.Equal(t, hand.Vector(), v)

	mock.SetHands(nil)
	_, err = fx.ExtractFile("A/2.png")
	assert.ErrorIs(t, err, detector.ErrNoHand)

	fx.Load = func(string) (*gocv.Mat, error) { return nil, errors.New("unreadable") }
	_, err = fx.ExtractFile("A/3.png")
	assert.Error(t, err)
}

func TestStratifiedSplit(t *testing.T) {
	y := make([]int, 0, 31)
	for i := 0; i < 20; i++ {
		y = append(y, 0)
	}
	for i := 0; i < 10; i++ {
		y = append(y, 1)
	}
	y = append(y, 2)

	trainIdx, testIdx := stratifiedSplit(y, 0.2, 42)

	assert.Len(t, trainIdx, 31-6)
	assert.Len(t, testIdx, 6)

	counts := map[int]int{}
	for _, i := range testIdx {
		counts[y[i]]++
	}
	assert.Equal(t, map[int]int{0: 4, 1: 2}, counts)

	again, _ := stratifiedSplit(y, 0.2, 42)
	assert.Equal(t, trainIdx, again, "split must be deterministic for a seed")

	seen := map[int]bool{}
	for _, i := range append(append([]int(nil), trainIdx...), testIdx...) {
		assert.False(t, seen[i], "index %d assigned twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, len(y))
}

func TestOrchestrator_Run(t *testing.T) {
	root := t.TempDir()
	data := filepath.Join(root, "data")
	writeImages(t, filepath.Join(data, "A"), classFiles(15)...)
	writeImages(t, filepath.Join(data, "B"), classFiles(15)...)
	writeImages(t, filepath.Join(data, "C"), classFiles(15)...)

	s, err := store.New(filepath.Join(root, "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	manager := artifact.NewManager(filepath.Join(root, "models"), artifact.WithLogger(logging.Discard()))

	fit := nn.DefaultFitConfig()
	fit.Epochs = 40
	fit.BatchSize = 8
	fit.LearningRate = 5e-3

	var epochs int
	fit.OnEpoch = func(nn.EpochStats) { epochs++ }

	o := New(Options{
		DataDir:      data,
		Labels:       []string{"A", "B", "C", "D"},
		TestFraction: 0.2,
		Seed:         42,
		Fit:          fit,
		Chart:        true,
	}, clusterFeatures{centers: map[string]float64{"A": 0.1, "B": 0.5, "C": 0.9}}, manager, s.Runs(), logging.Discard())

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A": 15, "B": 15, "C": 15}, res.Counts)
	assert.GreaterOrEqual(t, res.TestAccuracy, 0.9)
	assert.Equal(t, epochs, res.History.Epochs())
	assert.FileExists(t, res.ChartPath)

	loaded, err := manager.LoadLatest()
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, []string{"A", "B", "C"}, loaded.Predictor.Classes())
	assert.Equal(t, res.Artifact.Timestamp, loaded.Artifact.Timestamp)

	var probe detector.Vector
	for i := range probe {
		probe[i] = 0.9
	}
	assert.Equal(t, "C", loaded.Predictor.Predict(probe).Label)

	run, err := s.Runs().GetByTimestamp(context.Background(), res.Artifact.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, 45, run.Samples)
	assert.Len(t, run.Classes, 3)
}

func TestOrchestrator_NoData(t *testing.T) {
	root := t.TempDir()
	manager := artifact.NewManager(filepath.Join(root, "models"), artifact.WithLogger(logging.Discard()))

	o := New(Options{DataDir: filepath.Join(root, "data"), Labels: []string{"A"}}, clusterFeatures{}, manager, nil, logging.Discard())

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoTrainingData)

	_, err = manager.Latest()
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestOrchestrator_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeImages(t, filepath.Join(root, "A"), classFiles(3)...)

	manager := artifact.NewManager(filepath.Join(root, "models"), artifact.WithLogger(logging.Discard()))
	o := New(Options{DataDir: root, Labels: []string{"A"}}, clusterFeatures{centers: map[string]float64{"A": 0.5}}, manager, nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlotHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.png")

	assert.Error(t, PlotHistory(nn.History{}, path))

	h := nn.History{
		Loss:        []float64{1.0, 0.6, 0.4},
		Accuracy:    []float64{0.5, 0.7, 0.8},
		ValLoss:     []float64{1.1, 0.7, 0.5},
		ValAccuracy: []float64{0.4, 0.6, 0.75},
	}
	require.NoError(t, PlotHistory(h, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
