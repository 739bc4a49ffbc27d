package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"doc-scanner/api/internal/ocr"
	"doc-scanner/api/internal/util"
)

const systemPrompt = `You are an OCR module of a document scanner.
Read ALL text on the photo of a document page exactly as printed or handwritten.
Keep the reading order, line breaks, numbers and punctuation. Do not translate, summarize or fix spelling.
Return STRICT JSON:
{
  "final_text": string,            // the full page text, lines separated by \n
  "boxes": [                       // one item per text line
    {"box": [[x,y],[x,y],[x,y],[x,y]], "label": string}
  ]
}
Coordinates are pixels of the original image, clockwise from top-left. If there is no text, return {"final_text":"","boxes":[]}.`

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Recognize(ctx context.Context, img []byte) (ocr.Result, error) {
	if e.APIKey == "" {
		return ocr.Result{}, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return ocr.Result{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return ocr.Result{}, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	parts := []genai.Part{
		genai.Text("Return strict JSON only."),
		&genai.Blob{MIMEType: util.PickMIME("", "", img), Data: img},
	}

	// Ретраи на случай 5xx/транзиентных сбоёв
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return ocr.Result{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return decode(firstText(resp))
	}
	return ocr.Result{}, lastErr
}

// decode разбирает ответ модели; если пришёл текст вместо JSON — это и есть распознанный текст.
func decode(txt string) (ocr.Result, error) {
	txt = stripFences(txt)
	if txt == "" {
		return ocr.Result{}, fmt.Errorf("gemini ocr: empty response")
	}
	var out ocr.Result
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		if strings.HasPrefix(txt, "{") {
			return ocr.Result{}, fmt.Errorf("gemini ocr: bad JSON: %w", err)
		}
		return ocr.Result{FinalText: txt, Boxes: []ocr.Box{}}, nil
	}
	return out, nil
}

// stripFences снимает обёртку ```lang ... ``` вокруг ответа.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	body, ok := strings.CutPrefix(s, "```")
	if !ok {
		return s
	}
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
