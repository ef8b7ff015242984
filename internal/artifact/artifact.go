// Package artifact persists trained models together with their label
// encoder and training history, and tracks which run is current.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/signsync/internal/classify"
	"github.com/ayusman/signsync/internal/detector"
	"github.com/ayusman/signsync/internal/labels"
	"github.com/ayusman/signsync/internal/nn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// File naming inside the model directory.
const (
	PointerFile     = "latest_model.json"
	ModelPrefix     = "sign_language_model_"
	EncoderPrefix   = "label_encoder_"
	HistoryPrefix   = "training_history_"
	TimestampLayout = "20060102_150405"
)

var (
	// ErrNotFound is returned when no artifact has been saved yet.
	ErrNotFound = errors.New("no trained model found")
	// ErrLoadFailure is returned when the current artifact cannot be read.
	ErrLoadFailure = errors.New("failed to load model artifact")
)

// Artifact locates the files of one training run.
type Artifact struct {
	Model     string `json:"model"`
	Encoder   string `json:"encoder"`
	History   string `json:"history"`
	Timestamp string `json:"timestamp"`
}

// Loaded is an artifact read back into memory.
type Loaded struct {
	Artifact  Artifact
	Predictor *classify.Predictor
	History   nn.History
}

// Close releases the loaded model.
func (l *Loaded) Close() error {
	if l == nil {
		return nil
	}
	return l.Predictor.Close()
}

// ModelLoader opens a model file for a classifier with the given number of
// output classes.
type ModelLoader func(path string, classes int) (classify.Model, error)

// Mirror receives a copy of every saved file.
type Mirror interface {
	Upload(ctx context.Context, key string, r io.Reader) error
}

// Manager owns one model directory.
type Manager struct {
	dir     string
	now     func() time.Time
	loaders map[string]ModelLoader
	mirror  Mirror
	log     logrus.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLoader registers a model loader for a file extension such as ".onnx".
func WithLoader(ext string, loader ModelLoader) Option {
	return func(m *Manager) { m.loaders[strings.ToLower(ext)] = loader }
}

// WithMirror uploads saved artifacts to a secondary store.
func WithMirror(mirror Mirror) Option {
	return func(m *Manager) { m.mirror = mirror }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a Manager for dir. The directory is created on first
// save.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:     dir,
		now:     time.Now,
		loaders: map[string]ModelLoader{".json": loadNative},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "artifacts")
	return m
}

// Dir returns the model directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Save writes a new artifact and makes it the latest. The pointer is only
// replaced after the model, encoder and history are fully on disk.
func (m *Manager) Save(ctx context.Context, net *nn.Network, enc *labels.Encoder, hist nn.History) (*Artifact, error) {
	if net == nil || enc == nil {
		return nil, fmt.Errorf("save artifact: network and encoder are required")
	}
	if net.Classes() != enc.Len() {
		return nil, fmt.Errorf("save artifact: network has %d outputs but encoder has %d classes", net.Classes(), enc.Len())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}

	ts, err := m.nextTimestamp()
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		Model:     filepath.Join(m.dir, ModelPrefix+ts+".json"),
		Encoder:   filepath.Join(m.dir, EncoderPrefix+ts+".json"),
		History:   filepath.Join(m.dir, HistoryPrefix+ts+".json"),
		Timestamp: ts,
	}

	if err := writeAtomic(a.Model, net.Save); err != nil {
		return nil, fmt.Errorf("write model: %w", err)
	}
	if err := writeAtomic(a.Encoder, enc.Write); err != nil {
		return nil, fmt.Errorf("write encoder: %w", err)
	}
	if err := writeAtomic(a.History, encodeJSON(hist)); err != nil {
		return nil, fmt.Errorf("write history: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeAtomic(m.pointerPath(), encodeJSON(a)); err != nil {
		return nil, fmt.Errorf("write pointer: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"timestamp": ts,
		"model":     a.Model,
	}).Info("artifact saved")

	if m.mirror != nil {
		m.upload(ctx, a)
	}

	return a, nil
}

// Latest returns the artifact the pointer selects.
func (m *Manager) Latest() (*Artifact, error) {
	data, err := os.ReadFile(m.pointerPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read pointer: %v", ErrLoadFailure, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: parse pointer: %v", ErrLoadFailure, err)
	}
	if a.Model == "" || a.Encoder == "" || a.History == "" {
		return nil, fmt.Errorf("%w: pointer is incomplete", ErrLoadFailure)
	}

	a.Model = m.resolve(a.Model)
	a.Encoder = m.resolve(a.Encoder)
	a.History = m.resolve(a.History)
	return &a, nil
}

// LoadLatest reads the latest artifact into a ready Predictor.
func (m *Manager) LoadLatest() (*Loaded, error) {
	a, err := m.Latest()
	if err != nil {
		return nil, err
	}
	return m.Load(*a)
}

// Load reads the files of a into memory.
func (m *Manager) Load(a Artifact) (*Loaded, error) {
	enc, err := labels.Load(a.Encoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailure, err)
	}

	hist, err := readHistory(a.History)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailure, err)
	}

	ext := strings.ToLower(filepath.Ext(a.Model))
	loader, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no loader for %q models", ErrLoadFailure, ext)
	}

	model, err := loader(a.Model, enc.Len())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailure, err)
	}

	p, err := classify.NewPredictor(model, enc, m.log)
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("%w: %v", ErrLoadFailure, err)
	}

	m.log.WithFields(logrus.Fields{
		"timestamp": a.Timestamp,
		"classes":   enc.Len(),
	}).Info("model loaded")

	return &Loaded{Artifact: a, Predictor: p, History: hist}, nil
}

// List returns every complete artifact in the directory, oldest first.
func (m *Manager) List() ([]Artifact, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model directory: %w", err)
	}

	var out []Artifact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ModelPrefix) {
			continue
		}
		ext := filepath.Ext(name)
		ts := strings.TrimSuffix(strings.TrimPrefix(name, ModelPrefix), ext)

		a := Artifact{
			Model:     filepath.Join(m.dir, name),
			Encoder:   filepath.Join(m.dir, EncoderPrefix+ts+".json"),
			History:   filepath.Join(m.dir, HistoryPrefix+ts+".json"),
			Timestamp: ts,
		}
		if !exists(a.Encoder) || !exists(a.History) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		return timestampLess(out[i].Timestamp, out[j].Timestamp)
	})
	return out, nil
}

// timestampLess orders artifact keys by time, then by collision suffix, so
// "_10" follows "_9".
func timestampLess(a, b string) bool {
	baseA, nA := splitTimestamp(a)
	baseB, nB := splitTimestamp(b)
	if baseA != baseB {
		return baseA < baseB
	}
	return nA < nB
}

func splitTimestamp(ts string) (string, int) {
	if len(ts) <= len(TimestampLayout) || ts[len(TimestampLayout)] != '_' {
		return ts, 0
	}
	n, err := strconv.Atoi(ts[len(TimestampLayout)+1:])
	if err != nil {
		return ts, 0
	}
	return ts[:len(TimestampLayout)], n
}

func readHistory(path string) (nn.History, error) {
	var hist nn.History
	if path == "" {
		return hist, errors.New("no training history")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return hist, fmt.Errorf("read training history: %w", err)
	}
	if err := json.Unmarshal(data, &hist); err != nil {
		return hist, fmt.Errorf("parse training history: %w", err)
	}
	return hist, nil
}

func (m *Manager) pointerPath() string {
	return filepath.Join(m.dir, PointerFile)
}

// resolve falls back to the model directory when a recorded path no
// longer exists, so a moved directory keeps working.
func (m *Manager) resolve(p string) string {
	if exists(p) {
		return p
	}
	local := filepath.Join(m.dir, filepath.Base(p))
	if exists(local) {
		return local
	}
	return p
}

func (m *Manager) nextTimestamp() (string, error) {
	base := m.now().Format(TimestampLayout)
	ts := base
	for n := 1; n < 1000; n++ {
		taken := false
		for _, prefix := range []string{ModelPrefix, EncoderPrefix, HistoryPrefix} {
			matches, err := filepath.Glob(filepath.Join(m.dir, prefix+ts+".*"))
			if err != nil {
				return "", fmt.Errorf("scan model directory: %w", err)
			}
			if len(matches) > 0 {
				taken = true
				break
			}
		}
		if !taken {
			return ts, nil
		}
		ts = base + "_" + strconv.Itoa(n)
	}
	return "", fmt.Errorf("too many artifacts for timestamp %s", base)
}

func (m *Manager) upload(ctx context.Context, a *Artifact) {
	for _, p := range []string{a.Model, a.Encoder, a.History, m.pointerPath()} {
		log := m.log.WithField("file", filepath.Base(p))

		f, err := os.Open(p)
		if err != nil {
			log.WithError(err).Warn("mirror upload skipped")
			continue
		}
		err = m.mirror.Upload(ctx, filepath.Base(p), f)
		f.Close()
		if err != nil {
			log.WithError(err).Warn("mirror upload failed")
			continue
		}
		log.Debug("mirrored")
	}
}

func loadNative(path string, classes int) (classify.Model, error) {
	net, err := nn.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if net.Classes() != classes {
		return nil, fmt.Errorf("model has %d outputs but encoder has %d classes", net.Classes(), classes)
	}
	return net, nil
}

// ONNXLoader opens exported ONNX classifiers that take a landmark vector.
func ONNXLoader(sharedLibrary string) ModelLoader {
	return func(path string, classes int) (classify.Model, error) {
		return classify.LoadONNX(path, classify.ONNXOptions{
			SharedLibrary: sharedLibrary,
			Inputs:        detector.VectorSize,
			Classes:       classes,
		})
	}
}

func encodeJSON(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// writeAtomic writes through a temp file in the same directory and renames
// it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
