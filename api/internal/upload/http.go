package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"doc-scanner/api/internal/auth"
)

// HTTPUploader — POST /upload-image (multipart поле file) -> {image_url}.
type HTTPUploader struct {
	baseURL string
	tokens  auth.TokenSource
	httpc   *http.Client
}

func NewHTTPUploader(baseURL string, tokens auth.TokenSource) *HTTPUploader {
	return &HTTPUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("upload: empty image")
	}
	if name == "" {
		name = "image.jpg"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload-image", body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := auth.Authorize(ctx, req, u.tokens); err != nil {
		return "", fmt.Errorf("upload auth: %w", err)
	}

	resp, err := u.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		auth.Invalidate(u.tokens)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload failed with status: %d", resp.StatusCode)
	}

	var out struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.ImageURL == "" {
		return "", errors.New("upload: empty image_url in response")
	}
	return out.ImageURL, nil
}
