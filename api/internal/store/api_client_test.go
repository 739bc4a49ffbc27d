package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-scanner/api/internal/auth"
	"doc-scanner/api/internal/detect"
	"doc-scanner/api/internal/document"
)

// fakeBackend — in-memory /documents с проверкой токена.
type fakeBackend struct {
	mu    sync.Mutex
	docs  map[string]apiDocument
	order []string
}

func newFakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	b := &fakeBackend{docs: map[string]apiDocument{}}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return srv
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/documents/")
	switch {
	case r.URL.Path == "/documents" && r.Method == http.MethodPost:
		var in document.Body
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		now := time.Now().UTC().Truncate(time.Second)
		d := apiDocument{ID: uuid.NewString(), UserID: "u1", Title: in.Title, Data: in.Data, CreatedAt: now, UpdatedAt: now}
		b.docs[d.ID] = d
		b.order = append(b.order, d.ID)
		_ = json.NewEncoder(w).Encode(d)
	case r.URL.Path == "/documents" && r.Method == http.MethodGet:
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out := []apiDocument{}
		for i := skip; i < len(b.order) && len(out) < limit; i++ {
			out = append(out, b.docs[b.order[i]])
		}
		_ = json.NewEncoder(w).Encode(out)
	default:
		d, ok := b.docs[id]
		if !ok {
			http.Error(w, `{"detail":"Document not found"}`, http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(d)
		case http.MethodPut:
			var in document.Body
			_ = json.NewDecoder(r.Body).Decode(&in)
			d.Title, d.Data, d.UpdatedAt = in.Title, in.Data, time.Now().UTC()
			b.docs[id] = d
			_ = json.NewEncoder(w).Encode(d)
		case http.MethodDelete:
			delete(b.docs, id)
			for i, x := range b.order {
				if x == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
			_ = json.NewEncoder(w).Encode(d)
		}
	}
}

func samplePages() []document.Page {
	return []document.Page{
		{ImageURL: "https://cdn.example.com/1.jpg", Text: "page one", Detection: &detect.Result{Label: "paper", Confidence: 0.91}},
		{ImageURL: "https://cdn.example.com/2.jpg", Text: "page two"},
		{ImageURL: "https://cdn.example.com/3.jpg", Text: ""},
	}
}

func TestAPIClient_RoundTrip(t *testing.T) {
	srv := newFakeBackend(t)
	c := NewAPIClient(srv.URL, auth.Static("tok"))
	ctx := context.Background()

	created, err := c.Create(ctx, 0, document.Document{Title: "Lease", Pages: samplePages()})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := c.Get(ctx, 0, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lease", got.Title)
	assert.Equal(t, samplePages(), got.Pages)

	got.Title = "Lease (signed)"
	got.Pages = got.Pages[:2]
	updated, err := c.Update(ctx, 0, got)
	require.NoError(t, err)
	assert.Equal(t, "Lease (signed)", updated.Title)
	assert.Len(t, updated.Pages, 2)

	list, err := c.List(ctx, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, c.Delete(ctx, 0, created.ID))
	_, err = c.Get(ctx, 0, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, 0, created.ID), ErrNotFound)
}

func TestAPIClient_RejectsLocalImages(t *testing.T) {
	srv := newFakeBackend(t)
	c := NewAPIClient(srv.URL, auth.Static("tok"))

	_, err := c.Create(context.Background(), 0, document.Document{
		Title: "Draft",
		Pages: []document.Page{{ImageURL: "file:///tmp/x.jpg"}},
	})
	assert.ErrorIs(t, err, document.ErrLocalImage)

	list, err := c.List(context.Background(), 0, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAPIClient_Unauthorized(t *testing.T) {
	srv := newFakeBackend(t)
	_, err := NewAPIClient(srv.URL, auth.Static("wrong")).List(context.Background(), 0, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestClampPage(t *testing.T) {
	s, l := clampPage(-5, 0)
	assert.Equal(t, 0, s)
	assert.Equal(t, DefaultLimit, l)
	_, l = clampPage(0, 5000)
	assert.Equal(t, MaxLimit, l)
}
