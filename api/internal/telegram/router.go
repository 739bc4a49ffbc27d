// Package telegram — чат как экран сканера: фото страниц, кнопки вместо
// экранных действий, сообщение с прогрессом вместо полосы загрузки.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"doc-scanner/api/internal/detect"
	"doc-scanner/api/internal/ocr"
	"doc-scanner/api/internal/scan"
	"doc-scanner/api/internal/store"
)

// Sender — часть *tgbotapi.BotAPI, которой пользуется роутер.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot      Sender
	Sessions *scan.Manager
	Engines  *ocr.Manager
	Docs     store.Documents
	Loader   *detect.Loader // nil — детекция выключена

	// Download скачивает файл Telegram; nil — обычный HTTP GET.
	Download func(ctx context.Context, url string) ([]byte, error)
	Log      *zap.SugaredLogger

	watchers sync.Map // chatID -> *watcher
	notified sync.Map // chatID -> struct{}: предупреждение о загрузке модели
}

func (r *Router) log() *zap.SugaredLogger {
	if r.Log == nil {
		return zap.NewNop().Sugar()
	}
	return r.Log
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(ctx, msg)
		return
	}
	if len(msg.Photo) > 0 || isImageDocument(msg.Document) {
		r.acceptPhoto(ctx, msg)
		return
	}
	if text := strings.TrimSpace(msg.Text); text != "" {
		r.handleText(ctx, cid, text)
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, "Send photos of document pages, one by one. I'll upload them, recognize the text and save the document.\n"+
			"Commands: /scan, /list, /process, /resume, /discard, /engine, /docs, /doc <id>, /status")
		r.maybeNotifyModelLoading(cid)
	case "scan":
		r.cmdScan(cid)
	case "list":
		r.cmdList(cid)
	case "process":
		r.startProcessing(ctx, cid, false)
	case "resume":
		r.cmdResume(cid)
	case "discard":
		r.discard(cid)
	case "engine":
		r.handleEngineCommand(cid, args)
	case "docs":
		r.cmdDocs(ctx, cid)
	case "doc":
		r.cmdDoc(ctx, cid, args)
	case "status":
		r.cmdStatus(cid)
	default:
		r.send(cid, "Unknown command. Try /help")
	}
}

// handleEngineCommand — /engine [name]: показать или переключить OCR-движок чата.
func (r *Router) handleEngineCommand(chatID int64, args []string) {
	names := strings.Join(r.Engines.Names(), " | ")
	if len(args) == 0 {
		r.send(chatID, "Current OCR engine: "+r.Engines.Get(chatID).Name()+"\nAvailable: "+names+"\nUsage: /engine <name>")
		return
	}
	name := strings.ToLower(args[0])
	eng, ok := r.Engines.Lookup(name)
	if !ok {
		r.send(chatID, "Unknown engine. Available: "+names)
		return
	}
	r.Engines.Set(chatID, eng)
	r.send(chatID, "✅ OCR engine: "+eng.Name())
}

func (r *Router) cmdStatus(chatID int64) {
	snap := r.Sessions.Session(chatID).Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Step: %s\nPages in queue: %d\n", snap.Step, len(snap.Queue))
	if snap.Step == scan.StepProcessing {
		fmt.Fprintf(&b, "Progress: %d/%d\n", snap.Progress.Processed, snap.Progress.Total)
	}
	fmt.Fprintf(&b, "OCR engine: %s\n", r.Engines.Get(chatID).Name())
	if r.Loader != nil {
		st := r.Loader.Status()
		fmt.Fprintf(&b, "Detection model: %s", st.State)
		if st.Err != "" {
			fmt.Fprintf(&b, " (%s)", st.Err)
		}
	} else {
		b.WriteString("Detection model: disabled")
	}
	r.send(chatID, b.String())
}

// maybeNotifyModelLoading предупреждает один раз, пока модель грузится,
// и сообщает, когда она готова.
func (r *Router) maybeNotifyModelLoading(chatID int64) {
	if r.Loader == nil {
		return
	}
	st := r.Loader.Status()
	if st.State != detect.StateUninitialized && st.State != detect.StateLoading {
		return
	}
	if _, loaded := r.notified.LoadOrStore(chatID, struct{}{}); loaded {
		return
	}
	r.send(chatID, "⏳ The detection model is loading. This happens only once; pages processed meanwhile may have no detection.")
	go func() {
		st, err := r.Loader.Wait(context.Background())
		if err != nil || st.State != detect.StateReady {
			return
		}
		r.send(chatID, "✅ The detection model is ready.")
	}()
}

func (r *Router) send(chatID int64, text string) {
	r.sendMsg(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	r.sendMsg(msg)
}

func (r *Router) sendMsg(msg tgbotapi.MessageConfig) (tgbotapi.Message, bool) {
	m, err := r.Bot.Send(msg)
	if err != nil {
		r.log().Warnw("telegram send failed", "chat", msg.ChatID, "err", err)
		return m, false
	}
	return m, true
}

// SendText отправляет длинный текст несколькими сообщениями.
func (r *Router) SendText(chatID int64, text string) {
	for _, part := range splitText(text, maxMessageLen) {
		r.send(chatID, part)
	}
}
