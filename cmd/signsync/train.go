package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/nn"
	"github.com/ayusman/signsync/internal/store"
	"github.com/ayusman/signsync/internal/train"
)

func runTrain(ctx context.Context, args []string) int {
	cfg := loadConfig()
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Dataset root with one directory per label")
	fs.StringVar(&cfg.ModelDir, "models", cfg.ModelDir, "Model artifact directory")
	fs.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "Maximum training epochs")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Mini-batch size")
	noChart := fs.Bool("no-chart", false, "Skip the training history chart")

	log, err := setup(fs, args, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Println("SignSync - Training")

	det, err := detector.NewMediaPipeDetector(detector.TrainingConfig(), log)
	if err != nil {
		log.WithError(err).Error("Failed to start hand detector")
		return 1
	}
	ex := detector.NewExtractor(det)
	defer ex.Close()

	artifacts, err := newArtifacts(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to set up artifacts")
		return 1
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize store")
		return 1
	}
	defer st.Close()

	fit := nn.DefaultFitConfig()
	fit.Epochs = cfg.Epochs
	fit.BatchSize = cfg.BatchSize

	orch := train.New(train.Options{
		DataDir:      cfg.DataDir,
		Labels:       cfg.Labels,
		TestFraction: cfg.TestFraction,
		Seed:         cfg.Seed,
		Fit:          fit,
		Chart:        !*noChart,
	}, train.NewImageFeatures(ex), artifacts, st.Runs(), log)

	res, err := orch.Run(ctx)
	if errors.Is(err, train.ErrNoTrainingData) {
		fmt.Printf("No training data found under %s. Add images to %s/<label>/ first.\n", cfg.DataDir, cfg.DataDir)
		return 1
	}
	if err != nil {
		log.WithError(err).Error("Training failed")
		return 1
	}

	printTrainSummary(res)
	return 0
}

func printTrainSummary(res *train.Result) {
	labels := make([]string, 0, len(res.Counts))
	for l := range res.Counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	fmt.Println("\nSamples per class:")
	for _, l := range labels {
		fmt.Printf("  %s: %d\n", l, res.Counts[l])
	}
	fmt.Printf("\nEpochs: %d\n", res.History.Epochs())
	fmt.Printf("Train accuracy: %.4f\n", res.TrainAccuracy)
	fmt.Printf("Test accuracy: %.4f\n", res.TestAccuracy)
	fmt.Printf("Test loss: %.4f\n", res.TestLoss)
	fmt.Printf("\nModel saved as: %s\n", res.Artifact.Model)
	fmt.Printf("Label encoder saved as: %s\n", res.Artifact.Encoder)
	fmt.Printf("Training history saved as: %s\n", res.Artifact.History)
	if res.ChartPath != "" {
		fmt.Printf("Training chart saved as: %s\n", res.ChartPath)
	}
}
