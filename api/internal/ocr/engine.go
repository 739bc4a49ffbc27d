package ocr

import (
	"context"
	"sort"
	"sync"
)

// Engine распознаёт текст на изображении.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img []byte) (Result, error)
}

// Manager — движок OCR по умолчанию + выбор пользователя для отдельных чатов.
type Manager struct {
	def Engine

	mu      sync.RWMutex
	engines map[string]Engine
	m       sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine, more ...Engine) *Manager {
	mgr := &Manager{def: defaultEngine, engines: map[string]Engine{}}
	mgr.Register(defaultEngine)
	for _, e := range more {
		mgr.Register(e)
	}
	return mgr
}

// Register делает движок доступным для /engine.
func (m *Manager) Register(e Engine) {
	if e == nil {
		return
	}
	m.mu.Lock()
	m.engines[e.Name()] = e
	m.mu.Unlock()
}

// Names — зарегистрированные движки по алфавиту.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.engines))
	for name := range m.engines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Lookup(name string) (Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[name]
	return e, ok
}

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}

// ForChat — Engine, который на каждый вызов берёт текущий выбор чата.
func (m *Manager) ForChat(chatID int64) Engine {
	return chatEngine{m: m, chatID: chatID}
}

type chatEngine struct {
	m      *Manager
	chatID int64
}

func (c chatEngine) Name() string { return c.m.Get(c.chatID).Name() }

func (c chatEngine) Recognize(ctx context.Context, img []byte) (Result, error) {
	return c.m.Get(c.chatID).Recognize(ctx, img)
}
