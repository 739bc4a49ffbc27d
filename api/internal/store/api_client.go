package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"doc-scanner/api/internal/auth"
	"doc-scanner/api/internal/document"
)

// APIClient — документы в бэкенде (/documents). Владельца определяет токен,
// поэтому owner здесь не используется.
type APIClient struct {
	baseURL string
	tokens  auth.TokenSource
	httpc   *http.Client
}

func NewAPIClient(baseURL string, tokens auth.TokenSource) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// apiDocument — документ в формате бэкенда.
type apiDocument struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Title     string            `json:"title"`
	Data      document.BodyData `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (d apiDocument) toDocument() document.Document {
	return document.Document{
		ID:        d.ID,
		Title:     d.Title,
		Pages:     d.Data.Pages,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (c *APIClient) Create(ctx context.Context, _ int64, doc document.Document) (document.Document, error) {
	if err := doc.Validate(); err != nil {
		return document.Document{}, err
	}
	var out apiDocument
	if err := c.do(ctx, http.MethodPost, "/documents", doc.Body(), &out); err != nil {
		return document.Document{}, err
	}
	return out.toDocument(), nil
}

func (c *APIClient) Get(ctx context.Context, _ int64, id string) (document.Document, error) {
	var out apiDocument
	if err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, &out); err != nil {
		return document.Document{}, err
	}
	return out.toDocument(), nil
}

func (c *APIClient) List(ctx context.Context, _ int64, skip, limit int) ([]document.Document, error) {
	skip, limit = clampPage(skip, limit)
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var out []apiDocument
	if err := c.do(ctx, http.MethodGet, "/documents?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	docs := make([]document.Document, 0, len(out))
	for _, d := range out {
		docs = append(docs, d.toDocument())
	}
	return docs, nil
}

func (c *APIClient) Update(ctx context.Context, _ int64, doc document.Document) (document.Document, error) {
	if err := doc.Validate(); err != nil {
		return document.Document{}, err
	}
	var out apiDocument
	if err := c.do(ctx, http.MethodPut, "/documents/"+url.PathEscape(doc.ID), doc.Body(), &out); err != nil {
		return document.Document{}, err
	}
	return out.toDocument(), nil
}

func (c *APIClient) Delete(ctx context.Context, _ int64, id string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := auth.Authorize(ctx, req, c.tokens); err != nil {
		return fmt.Errorf("documents auth: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		auth.Invalidate(c.tokens)
		return fmt.Errorf("%s %s: unauthorized", method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(x)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
