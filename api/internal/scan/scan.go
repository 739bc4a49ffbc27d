// Package scan — пошаговый сценарий сканирования: съёмка, просмотр, очередь,
// обработка (загрузка, OCR, детекция), заголовок, сохранение.
package scan

import (
	"errors"
	"fmt"
)

// Step — шаг сценария.
type Step int

const (
	StepCamera Step = iota
	StepReview
	StepList
	StepProcessing
	StepTitle
	StepSuccess
)

func (s Step) String() string {
	switch s {
	case StepCamera:
		return "camera"
	case StepReview:
		return "review"
	case StepList:
		return "list"
	case StepProcessing:
		return "processing"
	case StepTitle:
		return "title"
	case StepSuccess:
		return "success"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	ErrEmptyQueue        = errors.New("no pages to process")
	ErrInvalidTransition = errors.New("action not allowed in current step")
	ErrIndexOutOfRange   = errors.New("page index out of range")
	ErrCancelled         = errors.New("processing cancelled")
)

// Сообщения для пользователя: без технических подробностей.
const (
	MsgProcessFailed = "Failed to process document. Please try again."
	MsgOCRTimeout    = "Text recognition took too long. Please try again."
	MsgSaveFailed    = "Failed to save document. Please try again."
	MsgBusy          = "Too many documents are being processed right now. Please try again in a minute."
)

// Progress — сколько страниц текущего прогона уже обработано.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

func (p Progress) Done() bool { return p.Total > 0 && p.Processed == p.Total }

// Event — состояние сессии после очередного изменения.
type Event struct {
	Step               Step
	Progress           Progress
	QueueLen           int
	Background         bool
	Minimized          bool
	BackgroundComplete bool
	Err                string
}

// transitionError — ErrInvalidTransition с указанием действия и шага.
func transitionError(action string, step Step) error {
	return fmt.Errorf("%s in %s: %w", action, step, ErrInvalidTransition)
}
