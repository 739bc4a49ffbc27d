package upload

import (
	"context"
	"hash/crc64"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-scanner/api/internal/auth"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

func TestObjectName(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	re := regexp.MustCompile(`^scans/2026/05/01/[0-9a-f-]{36}\.png$`)

	assert.Regexp(t, re, ObjectName(now, "", "image/png"))
	assert.Regexp(t, re, ObjectName(now, "Photo.PNG", "image/jpeg"))
	assert.True(t, strings.HasSuffix(ObjectName(now, "", "application/octet-stream"), ".bin"))
	assert.NotEqual(t, ObjectName(now, "a.png", ""), ObjectName(now, "a.png", ""))
}

func TestHTTPUploader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload-image", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			assert.Equal(t, "page-2.png", hdr.Filename)
			b, _ := io.ReadAll(f)
			assert.Equal(t, pngHeader, b)
		}
		_, _ = w.Write([]byte(`{"image_url":"https://cdn.example.com/page-2.png"}`))
	}))
	defer srv.Close()

	url, err := NewHTTPUploader(srv.URL+"/", auth.Static("tok")).Upload(context.Background(), "page-2.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/page-2.png", url)
}

func TestHTTPUploader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"no url", http.StatusOK, `{}`},
		{"bad json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := NewHTTPUploader(srv.URL, nil).Upload(context.Background(), "", pngHeader)
			assert.Error(t, err)
		})
	}

	_, err := NewHTTPUploader("http://127.0.0.1:1", nil).Upload(context.Background(), "x.jpg", nil)
	assert.Error(t, err)
}

func TestCOSUploader(t *testing.T) {
	webpHeader := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
	tests := []struct {
		name string
		data []byte
		mime string
		ext  string
	}{
		{"png", pngHeader, "image/png", ".png"},
		{"webp", webpHeader, "image/webp", ".webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu      sync.Mutex
				gotPath string
				gotType string
				gotBody []byte
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				defer mu.Unlock()
				assert.Equal(t, http.MethodPut, r.Method)
				assert.NotEmpty(t, r.Header.Get("Authorization"))
				gotPath = r.URL.Path
				gotType = r.Header.Get("Content-Type")
				gotBody, _ = io.ReadAll(r.Body)
				// SDK сверяет CRC64 тела с ответом сервера
				crc := crc64.Checksum(gotBody, crc64.MakeTable(crc64.ECMA))
				w.Header().Set("x-cos-hash-crc64ecma", strconv.FormatUint(crc, 10))
				w.Header().Set("ETag", `"abc"`)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			up, err := NewCOSUploader(srv.URL, "id", "key")
			require.NoError(t, err)
			up.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

			url, err := up.Upload(context.Background(), "", tt.data)
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			assert.True(t, strings.HasPrefix(gotPath, "/scans/2026/01/02/"), gotPath)
			assert.True(t, strings.HasSuffix(gotPath, tt.ext), gotPath)
			assert.Equal(t, tt.mime, gotType)
			assert.Equal(t, tt.data, gotBody)
			assert.Equal(t, srv.URL+gotPath, url)
		})
	}
}

func TestCOSUploader_BadURL(t *testing.T) {
	_, err := NewCOSUploader("not a url", "id", "key")
	assert.Error(t, err)
}
