package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-scanner/api/internal/detect"
)

func TestPage_IsUploaded(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/a.jpg", true},
		{"http://10.0.0.1:8000/static/b.png", true},
		{"", false},
		{"file:///data/user/0/cache/c.jpg", false},
		{"/tmp/d.jpg", false},
		{"https://", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Page{ImageURL: tt.url}.IsUploaded(), tt.url)
	}
}

func TestDocument_Validate(t *testing.T) {
	doc := Document{
		Title: "Receipts",
		Pages: []Page{
			{ImageURL: "https://cdn.example.com/1.jpg"},
			{ImageURL: "file:///tmp/2.jpg"},
		},
	}
	err := doc.Validate()
	require.ErrorIs(t, err, ErrLocalImage)
	assert.Contains(t, err.Error(), "page 2")

	doc.Pages[1].ImageURL = "https://cdn.example.com/2.jpg"
	assert.NoError(t, doc.Validate())

	doc.Title = "  "
	assert.Error(t, doc.Validate())
}

func TestDocument_FullText(t *testing.T) {
	doc := Document{Pages: []Page{{Text: "first"}, {Text: "  "}, {Text: "third\n"}}}
	assert.Equal(t, "first\n\nthird", doc.FullText())
	assert.Equal(t, "", Document{}.FullText())
}

func TestDefaultTitle(t *testing.T) {
	now := time.Date(2026, 3, 9, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, "Scanned Document 2026-03-09 14:05", DefaultTitle(now))
}

func TestBody_JSON(t *testing.T) {
	doc := Document{
		Title: "Invoice",
		Pages: []Page{
			{ImageURL: "https://x/1.jpg", Text: "hello", Detection: &detect.Result{Label: "paper", Confidence: 0.5}, Image: []byte{1}},
			{ImageURL: "https://x/2.jpg"},
		},
	}
	b, err := json.Marshal(doc.Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"title": "Invoice",
		"data": {"pages": [
			{"image_url": "https://x/1.jpg", "text": "hello", "detection": {"label": "paper", "confidence": 0.5}},
			{"image_url": "https://x/2.jpg", "text": ""}
		]}
	}`, string(b))

	b, err = json.Marshal(Document{Title: "empty"}.Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"empty","data":{"pages":[]}}`, string(b))
}
