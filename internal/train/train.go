// Package train builds a classifier from a directory of labeled hand images.
package train

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/signsync/internal/artifact"
	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/labels"
	"github.com/ayusman/signsync/internal/nn"
	"github.com/ayusman/signsync/internal/store"
)

// RunRecorder stores a summary of each completed run.
type RunRecorder interface {
	Create(ctx context.Context, run *store.Run) error
}

// Options controls a training run.
type Options struct {
	DataDir      string
	Labels       []string
	TestFraction float64
	Seed         uint64
	Fit          nn.FitConfig
	Chart        bool
}

// Result summarizes a completed run.
type Result struct {
	Artifact      *artifact.Artifact
	Run           *store.Run
	History       nn.History
	Counts        map[string]int
	TrainAccuracy float64
	TestAccuracy  float64
	TestLoss      float64
	ChartPath     string
}

// Orchestrator runs the full training pipeline.
type Orchestrator struct {
	opts      Options
	features  FeatureExtractor
	artifacts *artifact.Manager
	runs      RunRecorder
	log       logrus.FieldLogger
	now       func() time.Time
}

// New creates an Orchestrator. runs may be nil.
func New(opts Options, features FeatureExtractor, artifacts *artifact.Manager, runs RunRecorder, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = 0.2
	}
	return &Orchestrator{
		opts:      opts,
		features:  features,
		artifacts: artifacts,
		runs:      runs,
		log:       log.WithField("component", "trainer"),
		now:       time.Now,
	}
}

// Run extracts features, fits a classifier, evaluates it on the held-out
// split and saves the resulting artifact.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := o.now()

	o.log.WithFields(logrus.Fields{
		"data_dir": o.opts.DataDir,
		"labels":   strings.Join(o.opts.Labels, ","),
	}).Info("loading dataset")

	ds, err := LoadDataset(o.opts.DataDir, o.opts.Labels, o.features, o.log)
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"samples": ds.Len(),
		"classes": len(ds.Counts),
		"no_hand": ds.NoHand,
		"failed":  ds.Failed,
	}).Info("dataset loaded")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := labels.Fit(ds.Labels)
	if err != nil {
		return nil, err
	}
	y, err := enc.EncodeAll(ds.Labels)
	if err != nil {
		return nil, err
	}

	for label, n := range ds.Counts {
		if n < 2 {
			o.log.WithField("label", label).Warn("class has a single sample, kept out of the test split")
		}
	}

	trainIdx, testIdx := stratifiedSplit(y, o.opts.TestFraction, o.opts.Seed)
	trainX, trainY := matrix(ds.Features, y, trainIdx)
	var testX *mat.Dense
	var testY []int
	if len(testIdx) > 0 {
		testX, testY = matrix(ds.Features, y, testIdx)
	}

	o.log.WithFields(logrus.Fields{
		"train": len(trainIdx),
		"test":  len(testIdx),
	}).Info("dataset split")

	net, err := nn.NewClassifier(detector.VectorSize, enc.Len(), o.opts.Seed)
	if err != nil {
		return nil, err
	}
	for _, line := range net.Summary() {
		o.log.Info(line)
	}

	fit := o.opts.Fit
	userHook := fit.OnEpoch
	fit.OnEpoch = func(s nn.EpochStats) {
		o.log.WithFields(logrus.Fields{
			"epoch":        s.Epoch,
			"loss":         fmt.Sprintf("%.4f", s.Loss),
			"accuracy":     fmt.Sprintf("%.4f", s.Accuracy),
			"val_loss":     fmt.Sprintf("%.4f", s.ValLoss),
			"val_accuracy": fmt.Sprintf("%.4f", s.ValAccuracy),
			"lr":           s.LR,
		}).Debug("epoch complete")
		if userHook != nil {
			userHook(s)
		}
	}

	hist, err := net.Fit(ctx, trainX, trainY, testX, testY, fit)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	res := &Result{History: hist, Counts: ds.Counts}
	_, res.TrainAccuracy = net.Evaluate(trainX, trainY)
	if testX != nil {
		res.TestLoss, res.TestAccuracy = net.Evaluate(testX, testY)
	} else {
		res.TestLoss, res.TestAccuracy = net.Evaluate(trainX, trainY)
	}

	o.log.WithFields(logrus.Fields{
		"epochs":         hist.Epochs(),
		"train_accuracy": fmt.Sprintf("%.4f", res.TrainAccuracy),
		"test_accuracy":  fmt.Sprintf("%.4f", res.TestAccuracy),
		"test_loss":      fmt.Sprintf("%.4f", res.TestLoss),
	}).Info("training complete")

	a, err := o.artifacts.Save(ctx, net, enc, hist)
	if err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	res.Artifact = a

	if o.opts.Chart {
		chart := filepath.Join(o.artifacts.Dir(), artifact.HistoryPrefix+a.Timestamp+".png")
		if err := PlotHistory(hist, chart); err != nil {
			o.log.WithError(err).Warn("history chart not written")
		} else {
			res.ChartPath = chart
		}
	}

	run := &store.Run{
		Timestamp:     a.Timestamp,
		ModelPath:     a.Model,
		EncoderPath:   a.Encoder,
		HistoryPath:   a.History,
		Samples:       ds.Len(),
		Epochs:        hist.Epochs(),
		TrainAccuracy: res.TrainAccuracy,
		TestAccuracy:  res.TestAccuracy,
		TestLoss:      res.TestLoss,
		DurationMS:    o.now().Sub(start).Milliseconds(),
	}
	for _, c := range enc.Classes() {
		run.Classes = append(run.Classes, store.ClassCount{Label: c, Samples: ds.Counts[c]})
	}
	res.Run = run

	if o.runs != nil {
		if err := o.runs.Create(ctx, run); err != nil {
			o.log.WithError(err).Warn("training run not recorded")
		}
	}

	return res, nil
}

func matrix(features []detector.Vector, y []int, idx []int) (*mat.Dense, []int) {
	x := mat.NewDense(len(idx), detector.VectorSize, nil)
	out := make([]int, len(idx))
	for row, i := range idx {
		x.SetRow(row, features[i].Slice())
		out[row] = y[i]
	}
	return x, out
}
