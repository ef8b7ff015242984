package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signsync/internal/artifact"
)

// ArtifactHandler exposes the model directory read-only.
type ArtifactHandler struct {
	manager *artifact.Manager
	log     logrus.FieldLogger
}

// NewArtifactHandler creates an ArtifactHandler.
func NewArtifactHandler(m *artifact.Manager, log logrus.FieldLogger) *ArtifactHandler {
	return &ArtifactHandler{manager: m, log: log}
}

type listArtifactsResponse struct {
	Artifacts []artifact.Artifact `json:"artifacts"`
	Count     int                 `json:"count"`
}

// ServeHTTP routes /api/artifacts and /api/artifacts/latest.
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/artifacts")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		h.list(w)
	case "latest":
		h.latest(w)
	default:
		writeError(w, http.StatusNotFound, "Artifact not found")
	}
}

func (h *ArtifactHandler) list(w http.ResponseWriter) {
	list, err := h.manager.List()
	if err != nil {
		h.log.WithError(err).Error("list artifacts")
		writeError(w, http.StatusInternalServerError, "Failed to list artifacts")
		return
	}
	if list == nil {
		list = []artifact.Artifact{}
	}
	writeJSON(w, http.StatusOK, listArtifactsResponse{Artifacts: list, Count: len(list)})
}

func (h *ArtifactHandler) latest(w http.ResponseWriter) {
	a, err := h.manager.Latest()
	if errors.Is(err, artifact.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No trained model found")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("read latest artifact")
		writeError(w, http.StatusInternalServerError, "Failed to read latest artifact")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
