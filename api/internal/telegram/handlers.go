package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"doc-scanner/api/internal/document"
	"doc-scanner/api/internal/scan"
	"doc-scanner/api/internal/store"
)

const (
	saveTimeout = 30 * time.Second
	docsPage    = 20
)

// cmdScan начинает новый документ с чистой очереди.
func (r *Router) cmdScan(chatID int64) {
	r.stopWatcher(chatID)
	r.Sessions.Session(chatID).Discard()
	r.send(chatID, "📷 New document. Send a photo of the first page.")
	r.maybeNotifyModelLoading(chatID)
}

func (r *Router) cmdList(chatID int64) {
	s := r.Sessions.Session(chatID)
	if err := s.ShowList(); err != nil {
		r.send(chatID, stepHint(s.Step()))
		return
	}
	r.showList(chatID, s)
}

func (r *Router) showList(chatID int64, s *scan.Session) {
	n := len(s.Snapshot().Queue)
	r.sendWithKeyboard(chatID, listText(n), makeListKeyboard(n))
}

// cmdResume — пользователь вернулся к фоновой обработке.
func (r *Router) cmdResume(chatID int64) {
	s := r.Sessions.Session(chatID)
	step := s.Foreground()
	switch step {
	case scan.StepTitle:
		r.askTitle(chatID, s)
	case scan.StepProcessing:
		p := s.Snapshot().Progress
		r.send(chatID, fmt.Sprintf("⏳ Still processing: %d/%d. I'll ask for a title when it's done.", p.Processed, p.Total))
	case scan.StepList:
		if msg := s.LastError(); msg != "" {
			r.send(chatID, "⚠️ "+msg)
			s.ClearError()
		}
		r.showList(chatID, s)
	default:
		r.send(chatID, stepHint(step))
	}
}

func (r *Router) discard(chatID int64) {
	r.stopWatcher(chatID)
	r.Sessions.Session(chatID).Discard()
	r.send(chatID, "🗑 Discarded. Send a photo to start a new document.")
}

// startProcessing запускает прогон очереди. Обычный прогон идёт в своей
// горутине (бот не должен ждать), фоновый — в пуле менеджера.
func (r *Router) startProcessing(ctx context.Context, chatID int64, background bool) {
	s := r.Sessions.Session(chatID)
	w := r.watch(ctx, chatID, s)

	if background {
		if err := s.ProcessInBackground(ctx); err != nil {
			if isUsageError(err) {
				w.stop()
				r.send(chatID, processRefusal(err, s.Step()))
			}
			return
		}
		r.send(chatID, "🌙 Processing in background. I'll let you know when it's done.")
		return
	}

	go func() {
		err := s.Process(ctx)
		switch {
		case err == nil, errors.Is(err, scan.ErrCancelled):
		case isUsageError(err):
			w.stop()
			r.send(chatID, processRefusal(err, s.Step()))
		default:
			r.log().Warnw("processing failed", "chat", chatID, "err", err)
		}
	}()
}

func isUsageError(err error) bool {
	return errors.Is(err, scan.ErrEmptyQueue) || errors.Is(err, scan.ErrInvalidTransition)
}

func processRefusal(err error, step scan.Step) string {
	if errors.Is(err, scan.ErrEmptyQueue) {
		return "There are no pages to process. Send a photo first."
	}
	return stepHint(step)
}

func (r *Router) askTitle(chatID int64, s *scan.Session) {
	n := len(s.Snapshot().Pages)
	r.sendWithKeyboard(chatID,
		fmt.Sprintf("✅ %d page(s) processed. Send a title for the document.", n),
		makeTitleKeyboard())
}

// handleText — обычный текст в чате; на шаге title это название документа.
func (r *Router) handleText(ctx context.Context, chatID int64, text string) {
	s := r.Sessions.Session(chatID)
	if s.Step() != scan.StepTitle {
		r.send(chatID, stepHint(s.Step()))
		return
	}
	if err := s.SetTitle(text); err != nil {
		r.send(chatID, stepHint(s.Step()))
		return
	}
	r.save(ctx, chatID, s)
}

func (r *Router) save(ctx context.Context, chatID int64, s *scan.Session) {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	doc, err := s.Save(ctx)
	if err != nil {
		if errors.Is(err, scan.ErrInvalidTransition) || errors.Is(err, scan.ErrCancelled) {
			r.send(chatID, stepHint(s.Step()))
			return
		}
		r.log().Warnw("save failed", "chat", chatID, "err", err)
		msg := s.LastError()
		if msg == "" {
			msg = scan.MsgSaveFailed
		}
		r.sendWithKeyboard(chatID, "⚠️ "+msg+"\nSend the title again to retry.", makeTitleKeyboard())
		return
	}

	r.send(chatID, fmt.Sprintf("💾 Saved «%s» (%d page(s)), id: %s", doc.Title, len(doc.Pages), doc.ID))
	if text := doc.FullText(); text != "" {
		r.SendText(chatID, text)
	} else {
		r.send(chatID, "(no text recognized)")
	}
}

func (r *Router) cmdDocs(ctx context.Context, chatID int64) {
	if r.Docs == nil {
		r.send(chatID, "Document storage is not configured.")
		return
	}
	docs, err := r.Docs.List(ctx, chatID, 0, docsPage)
	if err != nil {
		r.log().Warnw("list documents failed", "chat", chatID, "err", err)
		r.send(chatID, "Failed to load documents. Please try again.")
		return
	}
	if len(docs) == 0 {
		r.send(chatID, "You have no saved documents yet.")
		return
	}
	var b strings.Builder
	b.WriteString("📚 Your documents:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "• %s (%d page(s)): /doc %s\n", d.Title, len(d.Pages), d.ID)
	}
	r.SendText(chatID, b.String())
}

func (r *Router) cmdDoc(ctx context.Context, chatID int64, args []string) {
	if r.Docs == nil {
		r.send(chatID, "Document storage is not configured.")
		return
	}
	if len(args) == 0 {
		r.send(chatID, "Usage: /doc <id>")
		return
	}
	doc, err := r.Docs.Get(ctx, chatID, args[0])
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.send(chatID, "Document not found.")
		return
	case err != nil:
		r.log().Warnw("get document failed", "chat", chatID, "id", args[0], "err", err)
		r.send(chatID, "Failed to load the document. Please try again.")
		return
	}
	r.SendText(chatID, formatDocument(doc))
}

func formatDocument(doc document.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📄 %s\n", doc.Title)
	if !doc.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Created: %s\n", doc.CreatedAt.Format("2006-01-02 15:04"))
	}
	for i, p := range doc.Pages {
		fmt.Fprintf(&b, "\n— Page %d", i+1)
		if p.Detection != nil && !p.Detection.Sentinel() {
			fmt.Fprintf(&b, " [%s]", p.Detection)
		}
		b.WriteString(" —\n")
		if t := strings.TrimSpace(p.Text); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
		b.WriteString(p.ImageURL)
		b.WriteString("\n")
	}
	return b.String()
}

// stepHint — что сейчас можно сделать.
func stepHint(step scan.Step) string {
	switch step {
	case scan.StepCamera:
		return "Send a photo of the next page, or /list to see the queue."
	case scan.StepReview:
		return "Keep, add more or retake the last photo using the buttons above."
	case scan.StepList:
		return "Use /process to recognize the pages, or send another photo."
	case scan.StepProcessing:
		return "Processing is in progress. Use /resume or /discard."
	case scan.StepTitle:
		return "Send a title for the document to save it."
	case scan.StepSuccess:
		return "Document saved. Send a photo or /scan to start a new one."
	}
	return "Use /help to see what I can do."
}
