package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"doc-scanner/api/internal/document"
)

// Saver сохраняет готовый документ владельца.
type Saver interface {
	Create(ctx context.Context, owner int64, doc document.Document) (document.Document, error)
}

// Submitter запускает фоновую задачу (пул воркеров).
type Submitter func(task func()) error

func goSubmit(task func()) error {
	go task()
	return nil
}

// Session — сценарий сканирования одного владельца (чата).
// Методы безопасны для вызова из разных горутин.
type Session struct {
	owner  int64
	pipe   Pipeline
	saver  Saver
	submit Submitter
	log    *zap.SugaredLogger
	now    func() time.Time

	mu                 sync.Mutex
	step               Step
	queue              []document.Page
	current            *document.Page
	pages              []document.Page
	title              string
	progress           Progress
	background         bool
	minimized          bool
	backgroundComplete bool
	lastErr            string
	saved              *document.Document
	saving             bool

	runID  uint64
	cancel context.CancelFunc

	subs    map[int]chan Event
	nextSub int
}

type SessionOption func(*Session)

func WithSubmitter(submit Submitter) SessionOption {
	return func(s *Session) {
		if submit != nil {
			s.submit = submit
		}
	}
}

func WithLogger(log *zap.SugaredLogger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSession(owner int64, pipe Pipeline, saver Saver, opts ...SessionOption) *Session {
	s := &Session{
		owner:  owner,
		pipe:   pipe,
		saver:  saver,
		submit: goSubmit,
		log:    zap.NewNop().Sugar(),
		now:    time.Now,
		step:   StepCamera,
		subs:   make(map[int]chan Event),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ---------- съёмка и очередь ----------

// Capture — снимок сделан, ждёт решения пользователя (review).
func (s *Session) Capture(p document.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepCamera {
		return transitionError("capture", s.step)
	}
	if len(p.Image) == 0 {
		return errors.New("captured image is empty")
	}
	s.current = &p
	s.step = StepReview
	s.lastErr = ""
	s.publishLocked()
	return nil
}

// AcceptNext — снимок в очередь, снимаем следующий.
func (s *Session) AcceptNext() error { return s.accept(StepCamera) }

// AcceptDone — снимок в очередь, переходим к списку.
func (s *Session) AcceptDone() error { return s.accept(StepList) }

func (s *Session) accept(next Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepReview || s.current == nil {
		return transitionError("accept", s.step)
	}
	s.queue = append(s.queue, *s.current)
	s.current = nil
	s.step = next
	s.publishLocked()
	return nil
}

// Retake — снимок выбрасывается.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepReview {
		return transitionError("retake", s.step)
	}
	s.current = nil
	s.step = StepCamera
	s.publishLocked()
	return nil
}

// Remove убирает страницу i из очереди, порядок остальных сохраняется.
func (s *Session) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepList && s.step != StepCamera {
		return transitionError("remove", s.step)
	}
	if i < 0 || i >= len(s.queue) {
		return ErrIndexOutOfRange
	}
	q := make([]document.Page, 0, len(s.queue)-1)
	q = append(q, s.queue[:i]...)
	q = append(q, s.queue[i+1:]...)
	s.queue = q
	s.publishLocked()
	return nil
}

// ShowCamera — из списка обратно к съёмке, очередь сохраняется.
func (s *Session) ShowCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepList {
		return transitionError("show camera", s.step)
	}
	s.step = StepCamera
	s.publishLocked()
	return nil
}

// ShowList — к списку без нового снимка (из камеры).
func (s *Session) ShowList() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepCamera && s.step != StepList {
		return transitionError("show list", s.step)
	}
	s.step = StepList
	s.publishLocked()
	return nil
}

// ---------- обработка ----------

// Process обрабатывает очередь в текущей горутине и возвращает итог прогона.
func (s *Session) Process(ctx context.Context) error {
	runCtx, id, queue, err := s.begin(ctx, false)
	if err != nil {
		return err
	}
	return s.run(runCtx, id, queue)
}

// ProcessInBackground запускает прогон в пуле и сразу возвращается.
// Итог: BackgroundComplete (или LastError), дальше Foreground().
func (s *Session) ProcessInBackground(ctx context.Context) error {
	runCtx, id, queue, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	if err := s.submit(func() { _ = s.run(runCtx, id, queue) }); err != nil {
		s.finish(id, nil, err)
		return err
	}
	return nil
}

// begin проверяет очередь и замораживает её на время прогона.
// Фоновый прогон не зависит от ctx вызывающего, только от Discard.
func (s *Session) begin(ctx context.Context, background bool) (context.Context, uint64, []document.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepList && s.step != StepCamera {
		return nil, 0, nil, transitionError("process", s.step)
	}
	if len(s.queue) == 0 {
		return nil, 0, nil, ErrEmptyQueue
	}

	if background {
		ctx = context.WithoutCancel(ctx)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runID++
	s.cancel = cancel
	s.step = StepProcessing
	s.progress = Progress{Processed: 0, Total: len(s.queue)}
	s.pages = nil
	s.background = background
	s.minimized = false
	s.backgroundComplete = false
	s.lastErr = ""

	queue := make([]document.Page, len(s.queue))
	copy(queue, s.queue)
	s.publishLocked()
	return runCtx, s.runID, queue, nil
}

func (s *Session) run(ctx context.Context, id uint64, queue []document.Page) error {
	log := s.log.With("run", id, "pages", len(queue))
	log.Infow("processing started")
	start := time.Now()

	results := make([]document.Page, 0, len(queue))
	for i, in := range queue {
		if ctx.Err() != nil {
			return s.finish(id, nil, ErrCancelled)
		}
		page, err := s.pipe.ProcessPage(ctx, i, in)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
				err = ErrCancelled
			}
			log.Warnw("processing failed", "err", err)
			return s.finish(id, nil, err)
		}
		results = append(results, page)
		if !s.advance(id, i+1) {
			return ErrCancelled
		}
	}
	log.Infow("processing finished", "took", time.Since(start))
	return s.finish(id, results, nil)
}

// advance публикует прогресс, если прогон всё ещё актуален.
func (s *Session) advance(id uint64, processed int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != id {
		return false
	}
	s.progress.Processed = processed
	s.publishLocked()
	return true
}

// finish применяет итог прогона; результаты устаревшего прогона отбрасываются.
func (s *Session) finish(id uint64, pages []document.Page, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != id {
		return ErrCancelled
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.minimized = false

	if runErr != nil {
		s.step = StepList
		s.pages = nil
		s.progress = Progress{}
		s.background = false
		s.lastErr = userMessage(runErr)
		s.publishLocked()
		return runErr
	}

	s.pages = pages
	if s.background {
		s.backgroundComplete = true
	} else {
		s.step = StepTitle
	}
	s.publishLocked()
	return nil
}

// MoveToBackground — пользователь ушёл, прогон продолжается без него.
func (s *Session) MoveToBackground() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepProcessing || s.backgroundComplete {
		return transitionError("background", s.step)
	}
	s.background = true
	s.publishLocked()
	return nil
}

// SetMinimized сворачивает/разворачивает индикатор прогресса.
func (s *Session) SetMinimized(minimized bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepProcessing {
		return transitionError("minimize", s.step)
	}
	s.minimized = minimized
	s.publishLocked()
	return nil
}

// Foreground — пользователь вернулся. Если фоновый прогон закончился, переходим к заголовку.
// Возвращает текущий шаг.
func (s *Session) Foreground() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	if s.background {
		s.background = false
		changed = true
	}
	if s.backgroundComplete {
		s.backgroundComplete = false
		s.step = StepTitle
		changed = true
	}
	if changed {
		s.publishLocked()
	}
	return s.step
}

// ---------- заголовок и сохранение ----------

func (s *Session) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepTitle {
		return transitionError("set title", s.step)
	}
	s.title = strings.TrimSpace(title)
	s.publishLocked()
	return nil
}

// Save сохраняет документ. Пустой заголовок заменяется на "Scanned Document <дата>".
// При ошибке остаёмся на шаге title, можно повторить.
func (s *Session) Save(ctx context.Context) (document.Document, error) {
	s.mu.Lock()
	if s.step != StepTitle || s.saving {
		step := s.step
		s.mu.Unlock()
		return document.Document{}, transitionError("save", step)
	}
	s.saving = true
	id := s.runID
	doc := document.Document{Title: s.title, Pages: append([]document.Page(nil), s.pages...)}
	if doc.Title == "" {
		doc.Title = document.DefaultTitle(s.now())
	}
	s.mu.Unlock()

	err := doc.Validate()
	if err == nil {
		doc, err = s.saver.Create(ctx, s.owner, doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if s.runID != id || s.step != StepTitle {
		return document.Document{}, ErrCancelled
	}
	if err != nil {
		s.log.Warnw("save failed", "err", err)
		s.lastErr = MsgSaveFailed
		s.publishLocked()
		return document.Document{}, err
	}

	s.saved = &doc
	s.step = StepSuccess
	s.queue = nil
	s.current = nil
	s.pages = nil
	s.title = ""
	s.progress = Progress{}
	s.lastErr = ""
	s.publishLocked()
	return doc, nil
}

// Discard сбрасывает всё и отменяет текущий прогон; его результаты больше не применяются.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.runID++
	s.step = StepCamera
	s.queue = nil
	s.current = nil
	s.pages = nil
	s.title = ""
	s.progress = Progress{}
	s.background = false
	s.minimized = false
	s.backgroundComplete = false
	s.lastErr = ""
	s.saved = nil
	s.publishLocked()
}

// ---------- чтение состояния ----------

// Snapshot — копия состояния сессии.
type Snapshot struct {
	Step               Step
	Queue              []document.Page
	Current            *document.Page
	Pages              []document.Page
	Title              string
	Progress           Progress
	Background         bool
	Minimized          bool
	BackgroundComplete bool
	LastError          string
	Saved              *document.Document
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Step:               s.step,
		Queue:              append([]document.Page(nil), s.queue...),
		Pages:              append([]document.Page(nil), s.pages...),
		Title:              s.title,
		Progress:           s.progress,
		Background:         s.background,
		Minimized:          s.minimized,
		BackgroundComplete: s.backgroundComplete,
		LastError:          s.lastErr,
	}
	if s.current != nil {
		c := *s.current
		snap.Current = &c
	}
	if s.saved != nil {
		d := *s.saved
		snap.Saved = &d
	}
	return snap
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// LastError — сообщение о последней ошибке для пользователя (или "").
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClearError — сообщение показано пользователю.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

// ---------- подписка ----------

const subBuffer = 64

// Subscribe возвращает канал событий; текущее состояние приходит сразу.
// При переполнении теряются самые старые события, последнее — никогда.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.eventLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) eventLocked() Event {
	return Event{
		Step:               s.step,
		Progress:           s.progress,
		QueueLen:           len(s.queue),
		Background:         s.background,
		Minimized:          s.minimized,
		BackgroundComplete: s.backgroundComplete,
		Err:                s.lastErr,
	}
}

func (s *Session) publishLocked() {
	ev := s.eventLocked()
	for _, ch := range s.subs {
		push(ch, ev)
	}
}

func push(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
