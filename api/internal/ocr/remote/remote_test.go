package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-scanner/api/internal/auth"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestFromBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/base64", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in struct {
			Base64Image string `json:"base64_image"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.True(t, strings.HasPrefix(in.Base64Image, "data:image/jpeg;base64,"), in.Base64Image)

		_, _ = w.Write([]byte(`{"final_text":"Hello\nWorld","boxes":[{"box":[[1,2],[3,2],[3,4],[1,4]],"label":"Hello"}]}`))
	}))
	defer srv.Close()

	e := New(srv.URL, auth.Static("tok"))
	res, err := e.Recognize(context.Background(), jpegHeader)
	require.NoError(t, err)
	assert.Equal(t, "Hello\nWorld", res.FinalText)
	require.Len(t, res.Boxes, 1)
	assert.Equal(t, "Hello", res.Boxes[0].Label)
}

func TestFromFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/file", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			assert.Equal(t, "page-1.jpg", hdr.Filename)
			b, _ := io.ReadAll(f)
			assert.Equal(t, jpegHeader, b)
		}
		_, _ = w.Write([]byte(`{"final_text":"ok","boxes":[]}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, nil).FromFile(context.Background(), "page-1.jpg", jpegHeader)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.FinalText)
}

func TestFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/url", r.URL.Path)
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "https://cdn.example.com/p.jpg", in["url"])
		_, _ = w.Write([]byte(`{"final_text":"from url"}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, nil).FromURL(context.Background(), "https://cdn.example.com/p.jpg")
	require.NoError(t, err)
	assert.Equal(t, "from url", res.FinalText)
	assert.NotNil(t, res.Boxes)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := New(srv.URL, nil, WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := e.Recognize(context.Background(), jpegHeader)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPayloadLimits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"final_text":"` + strings.Repeat("x", 512) + `"}`))
	}))
	defer srv.Close()

	e := New(srv.URL, nil, WithMaxBytes(256))

	_, err := e.Recognize(context.Background(), make([]byte, 1024))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, int32(0), calls.Load())

	_, err = e.FromURL(context.Background(), "https://x/y.jpg")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Recognize(context.Background(), jpegHeader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "model crashed")
}

func TestEmptyImage(t *testing.T) {
	_, err := New("http://127.0.0.1:1", nil).Recognize(context.Background(), nil)
	assert.Error(t, err)
}
