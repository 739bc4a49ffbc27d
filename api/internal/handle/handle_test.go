package handle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-scanner/api/internal/detect"
	"doc-scanner/api/internal/ocr"
)

type stubDetector struct{ gotDeadline bool }

func (d *stubDetector) Detect(ctx context.Context, img []byte) detect.Result {
	_, d.gotDeadline = ctx.Deadline()
	return detect.Result{Label: "receipt:" + string(img), Confidence: 0.5}
}

type stubEngine struct {
	name string
	err  error
}

func (e stubEngine) Name() string { return e.name }

func (e stubEngine) Recognize(_ context.Context, img []byte) (ocr.Result, error) {
	if e.err != nil {
		return ocr.Result{}, e.err
	}
	return ocr.Result{FinalText: e.name + ":" + string(img), Boxes: []ocr.Box{}}, nil
}

func newMux(det Detector) *http.ServeMux {
	engines := ocr.NewManager(stubEngine{name: "remote"}, stubEngine{name: "broken", err: errors.New("down")})
	mux := http.NewServeMux()
	New(det, engines).Register(mux)
	return mux
}

func post(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestDetect(t *testing.T) {
	det := &stubDetector{}
	mux := newMux(det)

	rec := post(mux, "/v1/detect", `{"image_b64":"data:image/png;base64,`+b64("abc")+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res detect.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "receipt:abc", res.Label)
	assert.True(t, det.gotDeadline)

	rec = post(newMux(nil), "/v1/detect", `{"image_b64":"`+b64("abc")+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecognize(t *testing.T) {
	mux := newMux(nil)

	rec := post(mux, "/v1/ocr", `{"image_b64":"`+b64("page")+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res ocr.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "remote:page", res.FinalText)

	rec = post(mux, "/v1/ocr", `{"image_b64":"`+b64("page")+`","engine":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(mux, "/v1/ocr", `{"image_b64":"`+b64("page")+`","engine":"broken"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "ocr error: down")
}

func TestBadRequests(t *testing.T) {
	mux := newMux(&stubDetector{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/detect", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Equal(t, http.StatusBadRequest, post(mux, "/v1/ocr", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, post(mux, "/v1/ocr", `{"image_b64":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(mux, "/v1/detect", `{"image_b64":"%%%"}`).Code)
}

func TestRequestDeadline(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/ocr?timeoutSec=5", nil)
	assert.Equal(t, 5*time.Second, requestDeadline(r, time.Minute))

	r.Header.Set("X-Request-Timeout", "9")
	assert.Equal(t, 9*time.Second, requestDeadline(r, time.Minute))

	r = httptest.NewRequest(http.MethodPost, "/v1/ocr?timeoutSec=zero", nil)
	assert.Equal(t, time.Minute, requestDeadline(r, time.Minute))
}
