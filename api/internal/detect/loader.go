package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State — жизненный цикл модели: uninitialized -> loading -> {ready | failed}.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal — ready или failed; дальше состояние не меняется.
func (s State) Terminal() bool { return s == StateReady || s == StateFailed }

// Status — снимок состояния загрузчика.
type Status struct {
	State State
	Err   string
}

// ErrNotReady — модель ещё не загружена (или загрузка упала).
var ErrNotReady = errors.New("model not ready")

// Model — загруженная модель-классификатор.
type Model interface {
	Run(ctx context.Context, in Tensor) ([]float32, error)
	Close() error
}

// LoadFunc создаёт модель. Вызывается ровно один раз за жизнь Loader.
type LoadFunc func(ctx context.Context) (Model, error)

// Loader владеет моделью процесса и публикует её готовность подписчикам.
type Loader struct {
	load LoadFunc
	log  *zap.SugaredLogger

	mu      sync.RWMutex
	status  Status
	model   Model
	subs    map[int]chan Status
	nextSub int
	done    chan struct{}
	closed  bool
}

func NewLoader(load LoadFunc, log *zap.SugaredLogger) *Loader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Loader{
		load: load,
		log:  log,
		subs: make(map[int]chan Status),
		done: make(chan struct{}),
	}
}

// Initialize запускает асинхронную загрузку при первом вызове.
// Повторные вызовы (в т.ч. во время загрузки) ничего не делают и не блокируют.
func (l *Loader) Initialize(ctx context.Context) {
	l.mu.Lock()
	if l.status.State != StateUninitialized {
		l.mu.Unlock()
		return
	}
	l.setLocked(Status{State: StateLoading})
	l.mu.Unlock()

	go l.run(context.WithoutCancel(ctx))
}

func (l *Loader) run(ctx context.Context) {
	l.log.Infow("loading detection model")

	m, err := l.safeLoad(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.log.Errorw("detection model failed to load", "err", err)
		l.setLocked(Status{State: StateFailed, Err: fmt.Sprintf("Failed to load model: %v", err)})
		close(l.done)
		return
	}
	if l.closed {
		// Close уже отработал, модель никому не нужна
		if cerr := m.Close(); cerr != nil {
			l.log.Warnw("close late detection model", "err", cerr)
		}
		l.setLocked(Status{State: StateFailed, Err: "Failed to load model: loader closed"})
		close(l.done)
		return
	}
	l.model = m
	l.setLocked(Status{State: StateReady})
	l.log.Infow("detection model loaded")
	close(l.done)
}

func (l *Loader) safeLoad(ctx context.Context) (m Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if l.load == nil {
		return nil, errors.New("no model loader configured")
	}
	m, err = l.load(ctx)
	if err == nil && m == nil {
		err = errors.New("loader returned nil model")
	}
	return m, err
}

// setLocked меняет статус и рассылает его подписчикам. Вызывать под l.mu.
func (l *Loader) setLocked(st Status) {
	l.status = st
	for _, ch := range l.subs {
		pushLatest(ch, st)
	}
}

// pushLatest кладёт значение в канал ёмкостью 1, вытесняя устаревшее.
func pushLatest(ch chan Status, st Status) {
	for {
		select {
		case ch <- st:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Status — текущее состояние и текст последней ошибки.
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Subscribe возвращает канал изменений статуса. Текущий статус приходит сразу.
// Канал хранит только последнее значение; медленный читатель пропускает
// промежуточные состояния, но не финальное.
func (l *Loader) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	ch <- l.status
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// Done закрывается, когда загрузка завершилась (успешно или нет).
func (l *Loader) Done() <-chan struct{} { return l.done }

// Wait ждёт финального состояния или отмены ctx.
func (l *Loader) Wait(ctx context.Context) (Status, error) {
	select {
	case <-l.done:
		return l.Status(), nil
	case <-ctx.Done():
		return l.Status(), ctx.Err()
	}
}

// Model возвращает модель, если она готова.
func (l *Loader) Model() (Model, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.status.State != StateReady || l.model == nil {
		return nil, ErrNotReady
	}
	return l.model, nil
}

// Close освобождает модель при завершении процесса.
// Модель, догрузившаяся после Close, закрывается сразу.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.model == nil {
		return nil
	}
	err := l.model.Close()
	l.model = nil
	return err
}
