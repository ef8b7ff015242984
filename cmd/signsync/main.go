package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signsync/internal/artifact"
	"github.com/ayusman/signsync/internal/config"
	"github.com/ayusman/signsync/internal/logging"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var code int
	switch command {
	case "train":
		code = runTrain(ctx, args)
	case "predict":
		code = runPredict(ctx, args)
	case "serve":
		code = runServe(ctx, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		code = 1
	}

	stop()
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`signsync - Sign language recognition

Usage: signsync <command> [options]

Commands:
  train     Train a classifier from data/<label>/ images
  predict   Interactive camera and image prediction
  serve     HTTP API with live translations
  help      Show this message

Run 'signsync <command> -h' for command options.`)
}

// setup loads the configuration, lets fs override it and builds the logger.
func setup(fs *flag.FlagSet, args []string, cfg *config.Config) (*logrus.Logger, error) {
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile}), nil
}

func loadConfig() config.Config {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newArtifacts builds the artifact manager, with an S3 mirror when a bucket
// is configured and ONNX models accepted alongside native ones.
func newArtifacts(cfg config.Config, log logrus.FieldLogger) (*artifact.Manager, error) {
	opts := []artifact.Option{
		artifact.WithLogger(log),
		artifact.WithLoader(".onnx", artifact.ONNXLoader(cfg.ONNXLibrary)),
	}
	if cfg.S3Bucket != "" {
		mirror, err := artifact.NewS3Mirror(cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, fmt.Errorf("create S3 mirror: %w", err)
		}
		opts = append(opts, artifact.WithMirror(mirror))
	}
	return artifact.NewManager(cfg.ModelDir, opts...), nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.signsync/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".signsync", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
