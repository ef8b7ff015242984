// Package server provides the HTTP server of SignSync.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/signsync/internal/artifact"
	"github.com/ayusman/signsync/internal/server/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the server configuration. Nil collaborators disable the
// routes that need them.
type Config struct {
	StaticDir string
	Artifacts *artifact.Manager
	Runs      api.RunReader
	Predictor api.ImagePredictor
	// Model is the artifact loaded at startup, nil when none is.
	Model *artifact.Artifact
	Live  *Live
	Log   logrus.FieldLogger
}

// Server represents the HTTP server for the SignSync application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    logrus.FieldLogger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    log.WithField("component", "server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Predictor != nil {
		s.mux.Handle("/api/predict", api.NewPredictHandler(s.config.Predictor, s.log))
	}

	if s.config.Artifacts != nil {
		h := api.NewArtifactHandler(s.config.Artifacts, s.log)
		s.mux.Handle("/api/artifacts", h)
		s.mux.Handle("/api/artifacts/", h)
	}

	if s.config.Runs != nil {
		h := api.NewRunsHandler(s.config.Runs, s.log)
		s.mux.Handle("/api/runs", h)
		s.mux.Handle("/api/runs/", h)
	}

	if s.config.Live != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Live))
		s.mux.Handle("/api/translations", NewTranslationsHandler(s.config.Live, s.log))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":       "ok",
		"uptime":       time.Since(s.start).String(),
		"model_loaded": s.config.Model != nil,
	}
	if s.config.Model != nil {
		response["model_timestamp"] = s.config.Model.Timestamp
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
