package scan

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// PipelineFactory собирает конвейер для владельца (у каждого чата свой OCR-движок).
type PipelineFactory func(owner int64) Pipeline

// Manager — сессии по владельцам и общий пул фоновых прогонов.
// Пул ограничивает число одновременно обрабатываемых документов; внутри одного
// документа страницы всё равно идут по очереди.
type Manager struct {
	pipeline PipelineFactory
	saver    Saver
	pool     *ants.Pool
	log      *zap.SugaredLogger

	sessions sync.Map // owner -> *Session
}

func NewManager(pipeline PipelineFactory, saver Saver, workers int, log *zap.SugaredLogger) (*Manager, error) {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	// переполненный пул сразу отказывает (ErrPoolOverload), Submit не ждёт
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			log.Errorw("background processing panic", "panic", p)
		}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Manager{pipeline: pipeline, saver: saver, pool: pool, log: log}, nil
}

// Session возвращает сессию владельца, создавая её при первом обращении.
func (m *Manager) Session(owner int64) *Session {
	if v, ok := m.sessions.Load(owner); ok {
		return v.(*Session)
	}
	s := NewSession(owner, m.pipeline(owner), m.saver,
		WithSubmitter(m.pool.Submit),
		WithLogger(m.log.With("owner", owner)),
	)
	v, _ := m.sessions.LoadOrStore(owner, s)
	return v.(*Session)
}

// Running — сколько прогонов сейчас выполняется в пуле.
func (m *Manager) Running() int { return m.pool.Running() }

// Close отменяет все прогоны и останавливает пул.
func (m *Manager) Close() {
	m.sessions.Range(func(_, v any) bool {
		s := v.(*Session)
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		return true
	})
	m.pool.Release()
}
