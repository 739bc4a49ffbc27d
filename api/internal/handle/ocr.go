package handle

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Recognize — POST {image_b64, engine?}; без engine берётся движок по умолчанию.
func (h *Handle) Recognize(w http.ResponseWriter, r *http.Request) {
	req, img, ok := readImage(w, r)
	if !ok {
		return
	}
	eng := h.engines.Get(0)
	if name := strings.ToLower(strings.TrimSpace(req.Engine)); name != "" {
		e, found := h.engines.Lookup(name)
		if !found {
			writeError(w, http.StatusBadRequest, "unknown engine: "+name)
			return
		}
		eng = e
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r, 180*time.Second))
	defer cancel()

	res, err := eng.Recognize(ctx, img)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ocr error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
