// Package config holds the runtime configuration shared by the train, predict
// and serve commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Environment variables recognized by Load.
const (
	EnvDataDir   = "SIGNSYNC_DATA_DIR"
	EnvModelDir  = "SIGNSYNC_MODEL_DIR"
	EnvDBPath    = "SIGNSYNC_DB_PATH"
	EnvCamera    = "SIGNSYNC_CAMERA"
	EnvAddr      = "SIGNSYNC_ADDR"
	EnvEpochs    = "SIGNSYNC_EPOCHS"
	EnvBatchSize = "SIGNSYNC_BATCH_SIZE"
	EnvLabels    = "SIGNSYNC_LABELS"
	EnvS3Bucket  = "SIGNSYNC_S3_BUCKET"
	EnvS3Prefix  = "SIGNSYNC_S3_PREFIX"
	EnvAWSRegion = "AWS_REGION"
	EnvONNXLib   = "ONNXRUNTIME_LIB"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFile   = "LOG_FILE"
)

// Config is the full set of knobs. Zero values are never used directly;
// start from Default.
type Config struct {
	DataDir  string `validate:"required"`
	ModelDir string `validate:"required"`
	DBPath   string `validate:"required"`
	CameraID int    `validate:"gte=0"`
	Addr     string `validate:"required"`

	Epochs       int     `validate:"gte=1"`
	BatchSize    int     `validate:"gte=1"`
	TestFraction float64 `validate:"gt=0,lt=1"`
	Seed         uint64
	Labels       []string `validate:"min=1,dive,required"`

	SmoothingWindow int `validate:"gte=1"`
	SmoothingMin    int `validate:"gte=1,ltefield=SmoothingWindow"`

	S3Bucket  string
	S3Prefix  string
	AWSRegion string `validate:"required_with=S3Bucket"`

	// ONNXLibrary is the onnxruntime shared library used for .onnx models.
	// Empty uses the platform default.
	ONNXLibrary string

	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFile  string
}

// ASLLetters returns the static ASL alphabet: A to Y without J.
// J and Z are traced with motion and cannot be told apart from one frame.
func ASLLetters() []string {
	letters := make([]string, 0, 24)
	for c := 'A'; c <= 'Z'; c++ {
		if c == 'J' || c == 'Z' {
			continue
		}
		letters = append(letters, string(c))
	}
	return letters
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		DataDir:         "./data",
		ModelDir:        "./models",
		DBPath:          "./models/signsync.db",
		CameraID:        0,
		Addr:            ":8080",
		Epochs:          100,
		BatchSize:       32,
		TestFraction:    0.2,
		Seed:            42,
		Labels:          ASLLetters(),
		SmoothingWindow: 5,
		SmoothingMin:    3,
		AWSRegion:       "us-east-1",
		LogLevel:        "info",
	}
}

// Load starts from Default, reads an optional .env file and applies
// environment overrides. A missing .env is not an error.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str(EnvDataDir, &c.DataDir)
	str(EnvModelDir, &c.ModelDir)
	str(EnvDBPath, &c.DBPath)
	str(EnvAddr, &c.Addr)
	str(EnvS3Bucket, &c.S3Bucket)
	str(EnvS3Prefix, &c.S3Prefix)
	str(EnvAWSRegion, &c.AWSRegion)
	str(EnvONNXLib, &c.ONNXLibrary)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFile, &c.LogFile)

	if err := num(EnvCamera, &c.CameraID); err != nil {
		return err
	}
	if err := num(EnvEpochs, &c.Epochs); err != nil {
		return err
	}
	if err := num(EnvBatchSize, &c.BatchSize); err != nil {
		return err
	}

	if v, ok := lookup(EnvLabels); ok && strings.TrimSpace(v) != "" {
		var labels []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		c.Labels = labels
	}

	return nil
}

// Validate checks the struct tags.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
