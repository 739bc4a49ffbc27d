package ocr

import (
	"encoding/json"
	"strings"
)

// Box — найденный фрагмент текста: четырёхугольник и распознанная строка.
type Box struct {
	Box   [][]float64 `json:"box"`
	Label string      `json:"label"`
}

// Result — ответ OCR: итоговый текст + фрагменты.
type Result struct {
	FinalText string `json:"final_text"`
	Boxes     []Box  `json:"boxes"`
}

// Text — итоговый текст; если сервис его не собрал, склеиваем подписи боксов.
func (r Result) Text() string {
	if t := strings.TrimSpace(r.FinalText); t != "" {
		return t
	}
	lines := make([]string, 0, len(r.Boxes))
	for _, b := range r.Boxes {
		if s := strings.TrimSpace(b.Label); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

// UnmarshalJSON терпит boxes: null и отсутствие полей.
func (r *Result) UnmarshalJSON(b []byte) error {
	type alias Result
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	if a.Boxes == nil {
		a.Boxes = []Box{}
	}
	*r = Result(a)
	return nil
}

// RectBox — прямоугольник (x0,y0)-(x1,y1) в виде четырёх вершин по часовой стрелке.
func RectBox(x0, y0, x1, y1 float64) [][]float64 {
	return [][]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}
