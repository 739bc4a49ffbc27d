// Package remote — клиент OCR-сервиса (/ocr/base64, /ocr/file, /ocr/url).
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"doc-scanner/api/internal/auth"
	"doc-scanner/api/internal/ocr"
	"doc-scanner/api/internal/util"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 20 << 20
)

// ErrPayloadTooLarge — запрос или ответ больше лимита.
var ErrPayloadTooLarge = errors.New("ocr payload too large")

type Engine struct {
	baseURL  string
	tokens   auth.TokenSource
	timeout  time.Duration
	maxBytes int64
	httpc    *http.Client
}

type Option func(*Engine)

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpc = c }
}

func New(baseURL string, tokens auth.TokenSource, opts ...Option) *Engine {
	e := &Engine{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxBytes,
	}
	for _, o := range opts {
		o(e)
	}
	if e.httpc == nil {
		e.httpc = &http.Client{Timeout: e.timeout + 5*time.Second}
	}
	return e
}

func (e *Engine) Name() string { return "remote" }

// Recognize отправляет снимок через /ocr/base64.
func (e *Engine) Recognize(ctx context.Context, img []byte) (ocr.Result, error) {
	return e.FromBase64(ctx, img, "")
}

// FromBase64 — POST /ocr/base64 {base64_image: "data:<mime>;base64,..."}.
func (e *Engine) FromBase64(ctx context.Context, img []byte, mime string) (ocr.Result, error) {
	if len(img) == 0 {
		return ocr.Result{}, errors.New("ocr: empty image")
	}
	mime = util.PickMIME(mime, "", img)
	payload, _ := json.Marshal(map[string]string{
		"base64_image": util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(img)),
	})
	return e.post(ctx, "/ocr/base64", "application/json", payload)
}

// FromFile — POST /ocr/file, multipart поле file.
func (e *Engine) FromFile(ctx context.Context, name string, img []byte) (ocr.Result, error) {
	if name == "" {
		name = "image.jpg"
	}
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return ocr.Result{}, fmt.Errorf("copy image data: %w", err)
	}
	if err := w.Close(); err != nil {
		return ocr.Result{}, err
	}
	return e.post(ctx, "/ocr/file", w.FormDataContentType(), body.Bytes())
}

// FromURL — POST /ocr/url {url}: распознать уже загруженное изображение.
func (e *Engine) FromURL(ctx context.Context, imageURL string) (ocr.Result, error) {
	payload, _ := json.Marshal(map[string]string{"url": imageURL})
	return e.post(ctx, "/ocr/url", "application/json", payload)
}

func (e *Engine) post(ctx context.Context, path, contentType string, payload []byte) (ocr.Result, error) {
	if int64(len(payload)) > e.maxBytes {
		return ocr.Result{}, fmt.Errorf("request %d bytes: %w", len(payload), ErrPayloadTooLarge)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return ocr.Result{}, err
	}
	req.Header.Set("Content-Type", contentType)
	if err := auth.Authorize(ctx, req, e.tokens); err != nil {
		return ocr.Result{}, fmt.Errorf("ocr auth: %w", err)
	}

	resp, err := e.httpc.Do(req)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("ocr %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		auth.Invalidate(e.tokens)
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return ocr.Result{}, fmt.Errorf("ocr %s %d: %s", path, resp.StatusCode, strings.TrimSpace(string(x)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("ocr %s: read: %w", path, err)
	}
	if int64(len(raw)) > e.maxBytes {
		return ocr.Result{}, fmt.Errorf("response: %w", ErrPayloadTooLarge)
	}

	var out ocr.Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return ocr.Result{}, fmt.Errorf("ocr %s: decode: %w", path, err)
	}
	return out, nil
}
