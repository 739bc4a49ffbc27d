package detect

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Метки-заглушки: «результата нет», а не ошибка вызова. Confidence у них 0.
const (
	LabelLoading = "Loading model..."
	LabelError   = "Error detecting object"
	LabelUnknown = "Unknown"
)

// Result — метка класса и «сырое» значение выхода модели для неё.
// Confidence не перенормируется: если модель отдаёт логиты, сумма по классам != 1.
type Result struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Sentinel — результат-заглушка (модель не готова, упала и т.п.).
// Нулевой выход модели для настоящей метки заглушкой не считается.
func (r Result) Sentinel() bool {
	switch r.Label {
	case LabelLoading, LabelError:
		return true
	case LabelUnknown:
		return r.Confidence == 0
	}
	return false
}

// Detector — один прямой проход модели + декодирование метки.
type Detector struct {
	loader *Loader
	labels Labels
	log    *zap.SugaredLogger
}

func NewDetector(loader *Loader, labels Labels, log *zap.SugaredLogger) *Detector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Detector{loader: loader, labels: labels, log: log}
}

// Detect никогда не возвращает ошибку: любые сбои сворачиваются в заглушку.
func (d *Detector) Detect(ctx context.Context, img []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("inference panic", "panic", r)
			res = Result{Label: LabelError}
		}
	}()

	st := d.loader.Status()
	switch st.State {
	case StateReady:
	case StateFailed:
		return Result{Label: LabelUnknown}
	default:
		return Result{Label: LabelLoading}
	}

	model, err := d.loader.Model()
	if err != nil {
		return Result{Label: LabelLoading}
	}

	tensor, err := Preprocess(img)
	if err != nil {
		d.log.Warnw("preprocess failed", "err", err)
		return Result{Label: LabelError}
	}

	out, err := model.Run(ctx, tensor)
	if err != nil {
		d.log.Warnw("inference failed", "err", err)
		return Result{Label: LabelError}
	}

	idx, conf, ok := Argmax(out)
	if !ok {
		d.log.Warnw("inference returned empty output")
		return Result{Label: LabelError}
	}
	label, ok := d.labels.At(idx)
	if !ok {
		d.log.Warnw("class index outside label table", "index", idx, "labels", len(d.labels))
		return Result{Label: LabelUnknown, Confidence: conf}
	}
	return Result{Label: label, Confidence: conf}
}

// Argmax — индекс первого максимума (стабильный tie-break).
func Argmax(v []float32) (int, float32, bool) {
	if len(v) == 0 {
		return 0, 0, false
	}
	maxIdx, maxVal := 0, v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > maxVal {
			maxIdx, maxVal = i, v[i]
		}
	}
	return maxIdx, maxVal, true
}

func (r Result) String() string {
	return fmt.Sprintf("%s (%.2f)", r.Label, r.Confidence)
}
