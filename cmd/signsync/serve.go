package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/ayusman/signsync/internal/app"
	"github.com/ayusman/signsync/internal/artifact"
	"github.com/ayusman/signsync/internal/capture"
	"github.com/ayusman/signsync/internal/classify"
	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/server"
	"github.com/ayusman/signsync/internal/store"
)

func runServe(ctx context.Context, args []string) int {
	cfg := loadConfig()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	fs.StringVar(&cfg.ModelDir, "models", cfg.ModelDir, "Model artifact directory")
	fs.IntVar(&cfg.CameraID, "camera", cfg.CameraID, "Camera device ID")
	noCamera := fs.Bool("no-camera", false, "Disable the live camera loop")

	log, err := setup(fs, args, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	fmt.Println("SignSync - Sign Language Recognition Server")

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize store")
		return 1
	}
	defer st.Close()

	artifacts, err := newArtifacts(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to set up artifacts")
		return 1
	}

	// The server starts without a model; /api/health reports it.
	loaded, _ := loadModel(artifacts, log)
	var (
		predictor *classify.Predictor
		model     *artifact.Artifact
	)
	if loaded != nil {
		defer loaded.Close()
		predictor = loaded.Predictor
		model = &loaded.Artifact
	}

	det, err := detector.NewMediaPipeDetector(detector.DefaultConfig(), log)
	if err != nil {
		log.WithError(err).Error("Failed to start hand detector")
		return 1
	}
	ex := detector.NewExtractor(det)
	defer ex.Close()

	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srvCfg := server.Config{
		StaticDir: webDir,
		Artifacts: artifacts,
		Runs:      st.Runs(),
		Predictor: app.NewSession(ex, predictor, nil, log),
		Model:     model,
		Log:       log,
	}

	var wg sync.WaitGroup
	if !*noCamera {
		live := server.NewLive(capture.NewCamera(cfg.CameraID), app.NewSession(ex, predictor, newSmoother(cfg), log), log)
		srvCfg.Live = live

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := live.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Live camera loop failed")
			}
		}()
	}

	fmt.Printf("Starting server on %s\n", cfg.Addr)
	err = server.New(srvCfg).ListenAndServe(ctx, cfg.Addr)
	wg.Wait()
	if err != nil {
		log.WithError(err).Error("Server failed")
		return 1
	}
	return 0
}
