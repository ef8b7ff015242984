package api

import (
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/signsync/internal/app"
	"github.com/ayusman/signsync/internal/capture"
)

// maxUploadBytes bounds multipart uploads to /api/predict.
const maxUploadBytes = 10 << 20

// ImagePredictor classifies a single decoded image without smoothing.
type ImagePredictor interface {
	PredictMat(img *gocv.Mat) app.Prediction
}

// PredictHandler classifies uploaded images.
type PredictHandler struct {
	predictor ImagePredictor
	log       logrus.FieldLogger
	mu        sync.Mutex
}

// NewPredictHandler creates a PredictHandler.
func NewPredictHandler(p ImagePredictor, log logrus.FieldLogger) *PredictHandler {
	return &PredictHandler{predictor: p, log: log}
}

type predictResponse struct {
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	HandDetected bool    `json:"hand_detected"`
}

// ServeHTTP handles POST /api/predict with a multipart "image" field.
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing image field")
		return
	}
	defer file.Close()

	img, err := capture.DecodeImage(file, capture.MaxUploadDim)
	if err != nil {
		h.log.WithError(err).Debug("upload rejected")
		writeError(w, http.StatusBadRequest, "Unsupported image")
		return
	}
	defer img.Close()

	h.mu.Lock()
	p := h.predictor.PredictMat(img)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, predictResponse{
		Label:        p.Label,
		Confidence:   p.Confidence,
		HandDetected: p.HandDetected(),
	})
}
