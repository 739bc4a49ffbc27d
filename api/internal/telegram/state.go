package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-scanner/api/internal/scan"
)

// watcher ведёт сообщение с прогрессом одного прогона и сообщает итог.
type watcher struct {
	r      *Router
	chatID int64
	s      *scan.Session
	cancel context.CancelFunc
	done   chan struct{}

	msgID    int
	lastText string
}

// watch подписывается на сессию до запуска прогона, чтобы не пропустить его начало.
func (r *Router) watch(ctx context.Context, chatID int64, s *scan.Session) *watcher {
	r.stopWatcher(chatID)

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &watcher{r: r, chatID: chatID, s: s, cancel: cancel, done: make(chan struct{})}
	events, unsubscribe := s.Subscribe()
	r.watchers.Store(chatID, w)

	go func() {
		defer close(w.done)
		defer unsubscribe()
		defer r.watchers.CompareAndDelete(chatID, w)
		w.loop(ctx, events)
	}()
	return w
}

func (r *Router) stopWatcher(chatID int64) {
	if v, ok := r.watchers.Load(chatID); ok {
		v.(*watcher).stop()
	}
}

func (w *watcher) stop() { w.cancel() }

func (w *watcher) loop(ctx context.Context, events <-chan scan.Event) {
	started := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Step == scan.StepProcessing {
				started = true
			}
			if !started {
				continue
			}
			if !w.handle(ev) {
				return
			}
		}
	}
}

// handle возвращает false, когда прогон закончился.
func (w *watcher) handle(ev scan.Event) bool {
	r := w.r
	switch ev.Step {
	case scan.StepProcessing:
		w.render(ev)
		if ev.BackgroundComplete {
			r.send(w.chatID, "✅ Your document is ready. Use /resume to name and save it.")
			return false
		}
		return true
	case scan.StepTitle:
		w.finishMessage("✅ Processing finished.")
		r.askTitle(w.chatID, w.s)
	case scan.StepList:
		w.finishMessage("⚠️ Processing stopped.")
		msg := ev.Err
		if msg == "" {
			msg = scan.MsgProcessFailed
		}
		r.send(w.chatID, "⚠️ "+msg)
		w.s.ClearError()
		r.showList(w.chatID, w.s)
	default:
		w.finishMessage("✖️ Processing cancelled.")
	}
	return false
}

func (w *watcher) render(ev scan.Event) {
	text := progressText(ev)
	if text == w.lastText {
		return
	}
	w.lastText = text

	var kb tgbotapi.InlineKeyboardMarkup
	if ev.BackgroundComplete {
		kb = tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	} else {
		kb = makeProgressKeyboard(ev)
	}

	if w.msgID == 0 {
		msg := tgbotapi.NewMessage(w.chatID, text)
		msg.ReplyMarkup = kb
		if m, ok := w.r.sendMsg(msg); ok {
			w.msgID = m.MessageID
		}
		return
	}
	w.r.editWithKeyboard(w.chatID, w.msgID, text, kb)
}

// finishMessage заменяет прогресс итоговой строкой без кнопок.
func (w *watcher) finishMessage(text string) {
	if w.msgID == 0 {
		return
	}
	w.r.editWithKeyboard(w.chatID, w.msgID, text, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
}
