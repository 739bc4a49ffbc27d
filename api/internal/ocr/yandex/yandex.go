package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"doc-scanner/api/internal/ocr"
	"doc-scanner/api/internal/util"
)

const recognizeEndpoint = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"

type Engine struct {
	iamc     *IamClient
	folderID string
	langs    []string
	model    string
	endpoint string
	httpc    *http.Client
}

func New(oauth2Token, folderID string, langs ...string) *Engine {
	if len(langs) == 0 {
		langs = []string{"*"}
	}
	return &Engine{
		iamc:     NewIamClient(oauth2Token),
		folderID: folderID,
		langs:    langs,
		model:    "page",
		endpoint: recognizeEndpoint,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "yandex" }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType,omitempty"`      // "JPEG" | "PNG" | "PDF"
	LanguageCodes []string `json:"languageCodes,omitempty"` // ["ru","en"]
	Model         string   `json:"model,omitempty"`         // "page" | "handwritten"
}

type vertex struct {
	X string `json:"x"`
	Y string `json:"y"`
}

type boundingBox struct {
	Vertices []vertex `json:"vertices"`
}

type textAnnotation struct {
	FullText string `json:"fullText,omitempty"`
	Blocks   []struct {
		Lines []struct {
			Text        string      `json:"text,omitempty"`
			BoundingBox boundingBox `json:"boundingBox"`
		} `json:"lines,omitempty"`
	} `json:"blocks,omitempty"`
}

type response struct {
	Result *struct {
		TextAnnotation *textAnnotation `json:"textAnnotation,omitempty"`
		Page           string          `json:"page,omitempty"`
	} `json:"result,omitempty"`
}

// normalize: JPEG и PNG уходят как есть, остальное (webp) перекодируем в JPEG.
func normalize(img []byte) ([]byte, string, error) {
	if mime := util.OCRMimeType(img); mime != "" {
		return img, mime, nil
	}
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, "", fmt.Errorf("yandex ocr: unsupported image: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("yandex ocr: encode jpeg: %w", err)
	}
	return buf.Bytes(), "JPEG", nil
}

func (e *Engine) Recognize(ctx context.Context, img []byte) (ocr.Result, error) {
	img, mime, err := normalize(img)
	if err != nil {
		return ocr.Result{}, err
	}
	payload, _ := json.Marshal(request{
		Content:       base64.StdEncoding.EncodeToString(img),
		MimeType:      mime,
		LanguageCodes: e.langs,
		Model:         e.model,
	})

	resp, err := e.do(ctx, payload)
	if err != nil {
		return ocr.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// один ретрай со свежим IAM-токеном
		resp.Body.Close()
		e.iamc.Invalidate()
		if resp, err = e.do(ctx, payload); err != nil {
			return ocr.Result{}, err
		}
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return ocr.Result{}, fmt.Errorf("yandex ocr %d: %s", resp.StatusCode, string(x))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ocr.Result{}, err
	}
	return out.toResult(), nil
}

func (e *Engine) do(ctx context.Context, payload []byte) (*http.Response, error) {
	iamToken, err := e.iamc.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+iamToken)
	req.Header.Set("x-folder-id", e.folderID)
	return e.httpc.Do(req)
}

func (r *response) toResult() ocr.Result {
	res := ocr.Result{Boxes: []ocr.Box{}}
	if r == nil || r.Result == nil || r.Result.TextAnnotation == nil {
		return res
	}
	ta := r.Result.TextAnnotation

	var lines []string
	for _, b := range ta.Blocks {
		for _, l := range b.Lines {
			s := strings.TrimSpace(l.Text)
			if s == "" {
				continue
			}
			lines = append(lines, s)
			res.Boxes = append(res.Boxes, ocr.Box{Box: l.BoundingBox.points(), Label: s})
		}
	}
	res.FinalText = strings.TrimSpace(ta.FullText)
	if res.FinalText == "" {
		res.FinalText = strings.Join(lines, "\n")
	}
	return res
}

// points — Vision отдаёт координаты строками.
func (b boundingBox) points() [][]float64 {
	out := make([][]float64, 0, len(b.Vertices))
	for _, v := range b.Vertices {
		x, _ := strconv.ParseFloat(v.X, 64)
		y, _ := strconv.ParseFloat(v.Y, 64)
		out = append(out, []float64{x, y})
	}
	return out
}
