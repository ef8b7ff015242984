package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signsync/internal/store"
)

// RunReader is the read side of the training run registry.
type RunReader interface {
	List(ctx context.Context) ([]*store.Run, error)
	GetByID(ctx context.Context, id string) (*store.Run, error)
}

// RunsHandler serves recorded training runs.
type RunsHandler struct {
	runs RunReader
	log  logrus.FieldLogger
}

// NewRunsHandler creates a RunsHandler.
func NewRunsHandler(runs RunReader, log logrus.FieldLogger) *RunsHandler {
	return &RunsHandler{runs: runs, log: log}
}

type listRunsResponse struct {
	Runs  []*store.Run `json:"runs"`
	Count int          `json:"count"`
}

// ServeHTTP routes /api/runs and /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")
	if id == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, id)
}

func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context())
	if err != nil {
		h.log.WithError(err).Error("list runs")
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Count: len(runs)})
}

func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.runs.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("get run")
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
