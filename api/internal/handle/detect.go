package handle

import (
	"context"
	"net/http"
	"time"
)

func (h *Handle) Detect(w http.ResponseWriter, r *http.Request) {
	_, img, ok := readImage(w, r)
	if !ok {
		return
	}
	if h.detector == nil {
		writeError(w, http.StatusServiceUnavailable, "detection is disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r, 30*time.Second))
	defer cancel()

	writeJSON(w, http.StatusOK, h.detector.Detect(ctx, img))
}
