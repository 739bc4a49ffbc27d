package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"

	"doc-scanner/api/internal/detect"
	"doc-scanner/api/internal/document"
	"doc-scanner/api/internal/ocr"
	"doc-scanner/api/internal/upload"
)

// Detector — локальная классификация снимка; ошибок не возвращает.
type Detector interface {
	Detect(ctx context.Context, img []byte) detect.Result
}

// Pipeline обрабатывает одну страницу: загрузка -> OCR -> детекция.
type Pipeline struct {
	Uploader upload.Uploader
	OCR      ocr.Engine
	Detector Detector
}

// PageError — сбой загрузки или OCR на конкретной странице.
type PageError struct {
	Index int
	Stage string
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Index+1, e.Stage, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

func (p Pipeline) ProcessPage(ctx context.Context, index int, in document.Page) (document.Page, error) {
	name := in.Name
	if name == "" {
		name = fmt.Sprintf("page-%d.jpg", index+1)
	}

	imageURL, err := p.Uploader.Upload(ctx, name, in.Image)
	if err != nil {
		return document.Page{}, &PageError{Index: index, Stage: "upload", Err: err}
	}
	if !(document.Page{ImageURL: imageURL}).IsUploaded() {
		return document.Page{}, &PageError{Index: index, Stage: "upload", Err: document.ErrLocalImage}
	}

	res, err := p.OCR.Recognize(ctx, in.Image)
	if err != nil {
		return document.Page{}, &PageError{Index: index, Stage: "ocr", Err: err}
	}

	var det detect.Result
	if p.Detector != nil {
		det = p.Detector.Detect(ctx, in.Image)
	} else {
		det = detect.Result{Label: detect.LabelUnknown}
	}

	return document.Page{
		ImageURL:  imageURL,
		Text:      res.Text(),
		Detection: &det,
		Name:      in.Name,
	}, nil
}

// userMessage — текст ошибки прогона для пользователя.
func userMessage(err error) string {
	var pe *PageError
	if errors.As(err, &pe) && pe.Stage == "ocr" && errors.Is(err, context.DeadlineExceeded) {
		return MsgOCRTimeout
	}
	if errors.Is(err, ants.ErrPoolOverload) {
		return MsgBusy
	}
	return MsgProcessFailed
}
