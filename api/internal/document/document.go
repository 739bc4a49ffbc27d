// Package document — страницы и документы, которые собирает сканер.
package document

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"doc-scanner/api/internal/detect"
)

// ErrLocalImage — у страницы нет загруженного (http/https) адреса изображения.
var ErrLocalImage = errors.New("page image is not uploaded")

// Page — одна страница документа.
// До обработки у страницы есть только Image (байты снимка) и Name.
type Page struct {
	ImageURL  string         `json:"image_url"`
	Text      string         `json:"text"`
	Detection *detect.Result `json:"detection,omitempty"`

	Image []byte `json:"-"`
	Name  string `json:"-"`
}

// IsUploaded — ImageURL указывает на удалённый http(s) ресурс.
func (p Page) IsUploaded() bool {
	u, err := url.Parse(p.ImageURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

type Document struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Pages     []Page    `json:"pages"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate проверяет документ перед сохранением.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("document title is empty")
	}
	for i, p := range d.Pages {
		if !p.IsUploaded() {
			return fmt.Errorf("page %d: %w", i+1, ErrLocalImage)
		}
	}
	return nil
}

// FullText — текст всех страниц через пустую строку.
func (d Document) FullText() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// DefaultTitle — заголовок, если пользователь ничего не ввёл.
func DefaultTitle(now time.Time) string {
	return "Scanned Document " + now.Format("2006-01-02 15:04")
}

// Body — тело запроса к бэкенду: {title, data:{pages}}.
type Body struct {
	Title string   `json:"title"`
	Data  BodyData `json:"data"`
}

type BodyData struct {
	Pages []Page `json:"pages"`
}

func (d Document) Body() Body {
	pages := d.Pages
	if pages == nil {
		pages = []Page{}
	}
	return Body{Title: d.Title, Data: BodyData{Pages: pages}}
}
