package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/signsync/internal/app"
	"github.com/ayusman/signsync/internal/artifact"
	"github.com/ayusman/signsync/internal/capture"
	"github.com/ayusman/signsync/internal/classify"
	"github.com/ayusman/signsync/internal/config"
	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/smooth"
)

func runPredict(ctx context.Context, args []string) int {
	cfg := loadConfig()
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	fs.StringVar(&cfg.ModelDir, "models", cfg.ModelDir, "Model artifact directory")
	fs.IntVar(&cfg.CameraID, "camera", cfg.CameraID, "Camera device ID")

	log, err := setup(fs, args, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Println("SignSync - Sign Language Prediction")

	artifacts, err := newArtifacts(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to set up artifacts")
		return 1
	}

	loaded, err := loadModel(artifacts, log)
	if errors.Is(err, artifact.ErrNotFound) {
		fmt.Println("No trained model found. Please train a model first.")
		return 1
	}
	var predictor *classify.Predictor
	if loaded != nil {
		defer loaded.Close()
		predictor = loaded.Predictor
	}

	det, err := detector.NewMediaPipeDetector(detector.DefaultConfig(), log)
	if err != nil {
		log.WithError(err).Error("Failed to start hand detector")
		return 1
	}
	ex := detector.NewExtractor(det)
	defer ex.Close()

	session := app.NewSession(ex, predictor, newSmoother(cfg), log)

	camera := func(ctx context.Context) error {
		return session.RunCamera(ctx, capture.NewCamera(cfg.CameraID), gocv.NewWindow(app.WindowTitle), app.LoopOptions{
			SaveDir: ".",
			Out:     os.Stdout,
		})
	}

	if err := app.NewMenu(session, os.Stdin, os.Stdout, camera).Run(ctx); err != nil {
		log.WithError(err).Error("Menu failed")
		return 1
	}
	return 0
}

// loadModel loads the latest artifact. ErrLoadFailure is logged and
// reported as a nil artifact so callers keep running without a model.
func loadModel(artifacts *artifact.Manager, log logrus.FieldLogger) (*artifact.Loaded, error) {
	loaded, err := artifacts.LoadLatest()
	switch {
	case err == nil:
		log.WithFields(logrus.Fields{
			"timestamp": loaded.Artifact.Timestamp,
			"classes":   loaded.Predictor.Classes(),
		}).Info("Model loaded")
		return loaded, nil
	case errors.Is(err, artifact.ErrNotFound):
		log.Warn("No trained model found")
		return nil, err
	default:
		log.WithError(err).Warn("Model could not be loaded, predictions disabled")
		return nil, nil
	}
}

func newSmoother(cfg config.Config) *smooth.Smoother {
	return smooth.New(cfg.SmoothingWindow, cfg.SmoothingMin)
}
