// Package tesseract — локальный OCR через libtesseract (cgo).
// Нужны tesseract-ocr и libtesseract-dev в системе.
package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"doc-scanner/api/internal/ocr"
)

type Engine struct {
	pool *sync.Pool
}

// New проверяет языки на пробном клиенте и заводит пул клиентов.
// langs — коды tesseract, например "eng", "rus".
func New(langs ...string) (*Engine, error) {
	if len(langs) == 0 {
		langs = []string{"eng"}
	}

	check := gosseract.NewClient()
	if err := check.SetLanguage(langs...); err != nil {
		check.Close()
		return nil, fmt.Errorf("tesseract languages %v: %w", langs, err)
	}
	if err := check.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		check.Close()
		return nil, fmt.Errorf("tesseract page seg mode: %w", err)
	}
	check.Close()

	return &Engine{pool: &sync.Pool{
		New: func() any {
			c := gosseract.NewClient()
			_ = c.SetLanguage(langs...)
			_ = c.SetPageSegMode(gosseract.PSM_AUTO)
			return c
		},
	}}, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize не прерывает сам tesseract: при отмене ctx результат просто выбрасывается.
func (e *Engine) Recognize(ctx context.Context, img []byte) (ocr.Result, error) {
	type result struct {
		res ocr.Result
		err error
	}
	ch := make(chan result, 1)

	go func() {
		client := e.pool.Get().(*gosseract.Client)
		defer e.pool.Put(client)
		res, err := recognize(client, img)
		ch <- result{res, err}
	}()

	select {
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	case r := <-ch:
		return r.res, r.err
	}
}

func recognize(client *gosseract.Client, img []byte) (ocr.Result, error) {
	if err := client.SetImageFromBytes(img); err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract text: %w", err)
	}

	res := ocr.Result{FinalText: strings.TrimSpace(text), Boxes: []ocr.Box{}}
	lines, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		// текст уже есть, без боксов переживём
		return res, nil
	}
	for _, l := range lines {
		label := strings.TrimSpace(l.Word)
		if label == "" {
			continue
		}
		r := l.Box
		res.Boxes = append(res.Boxes, ocr.Box{
			Box:   ocr.RectBox(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)),
			Label: label,
		})
	}
	return res, nil
}
