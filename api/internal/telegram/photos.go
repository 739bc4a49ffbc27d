package telegram

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"doc-scanner/api/internal/document"
	"doc-scanner/api/internal/scan"
	"doc-scanner/api/internal/util"
)

const (
	maxPixels     = 18_000_000
	maxPhotoBytes = 20 << 20
)

func isImageDocument(d *tgbotapi.Document) bool {
	return d != nil && strings.HasPrefix(d.MimeType, "image/")
}

// acceptPhoto — новый снимок страницы: в очередь через review.
func (r *Router) acceptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	s := r.Sessions.Session(cid)

	switch s.Step() {
	case scan.StepList:
		_ = s.ShowCamera()
	case scan.StepSuccess:
		s.Discard()
	case scan.StepReview, scan.StepProcessing, scan.StepTitle:
		r.send(cid, stepHint(s.Step()))
		return
	}

	var fileID string
	if len(msg.Photo) > 0 {
		fileID = msg.Photo[len(msg.Photo)-1].FileID // самое большое превью
	} else {
		fileID = msg.Document.FileID
	}
	img, err := r.fetchFile(ctx, fileID)
	if err != nil {
		r.log().Warnw("photo download failed", "chat", cid, "err", err)
		r.send(cid, "Failed to get the photo. Please send it again.")
		return
	}
	img, err = fitPhoto(img, maxPixels)
	if err != nil {
		r.log().Debugw("photo left as is", "chat", cid, "err", err)
	}

	if err := s.Capture(document.Page{Image: img, Name: pageName(img)}); err != nil {
		r.send(cid, stepHint(s.Step()))
		return
	}
	n := len(s.Snapshot().Queue) + 1
	r.sendWithKeyboard(cid, fmt.Sprintf("📸 Page %d captured. Keep it?", n), makeReviewKeyboard())
	r.maybeNotifyModelLoading(cid)
}

// pageName — имя снимка по содержимому; расширение по сигнатуре.
func pageName(img []byte) string {
	return "page-" + util.SHA256Hex(img)[:12] + util.ImageExt(util.SniffImageMIME(img))
}

func (r *Router) fetchFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	if r.Download != nil {
		return r.Download(ctx, url)
	}
	return download(ctx, url)
}

// fitPhoto уменьшает слишком большой снимок до limit пикселей (JPEG q90).
// Неизвестный формат возвращается как есть вместе с ошибкой.
func fitPhoto(b []byte, limit int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return b, fmt.Errorf("decode config: %w", err)
	}
	total := cfg.Width * cfg.Height
	if total <= limit {
		return b, nil
	}
	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return b, fmt.Errorf("decode: %w", err)
	}
	scale := math.Sqrt(float64(limit) / float64(total))
	newW := max(1, int(float64(cfg.Width)*scale))
	newH := max(1, int(float64(cfg.Height)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90}); err != nil {
		return b, fmt.Errorf("encode: %w", err)
	}
	return out.Bytes(), nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxPhotoBytes {
		return nil, fmt.Errorf("file is larger than %d bytes", maxPhotoBytes)
	}
	return b, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
