// Package handle — служебные HTTP-ручки: прогнать картинку через детектор
// или OCR-движок без бота.
package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"doc-scanner/api/internal/detect"
	"doc-scanner/api/internal/ocr"
	"doc-scanner/api/internal/util"
)

// Detector — то, что умеет detect.Detector.
type Detector interface {
	Detect(ctx context.Context, img []byte) detect.Result
}

type Handle struct {
	detector Detector
	engines  *ocr.Manager
}

// New; detector может быть nil, если модель не настроена.
func New(detector Detector, engines *ocr.Manager) *Handle {
	return &Handle{detector: detector, engines: engines}
}

// Register вешает ручки на mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/detect", h.Detect)
	mux.HandleFunc("/v1/ocr", h.Recognize)
}

type imageRequest struct {
	ImageB64 string `json:"image_b64"`
	Engine   string `json:"engine,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// readImage разбирает POST {image_b64}; data:URL тоже годится.
func readImage(w http.ResponseWriter, r *http.Request) (imageRequest, []byte, bool) {
	var req imageRequest
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return req, nil, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 30<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return req, nil, false
	}
	img, _, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil || len(img) == 0 {
		writeError(w, http.StatusBadRequest, "bad image_b64")
		return req, nil, false
	}
	return req, img, true
}

// requestDeadline — X-Request-Timeout или ?timeoutSec=, в секундах.
func requestDeadline(r *http.Request, def time.Duration) time.Duration {
	ts := r.Header.Get("X-Request-Timeout")
	if ts == "" {
		ts = r.URL.Query().Get("timeoutSec")
	}
	if v, _ := strconv.Atoi(ts); v > 0 {
		return time.Duration(v) * time.Second
	}
	return def
}
