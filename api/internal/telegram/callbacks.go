package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-scanner/api/internal/scan"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	s := r.Sessions.Session(cid)

	err := r.dispatchCallback(ctx, cid, msgID, s, cb.Data)

	answer := ""
	if err != nil {
		answer = "Not available right now"
		if errors.Is(err, scan.ErrIndexOutOfRange) {
			answer = "That page is no longer in the queue"
		}
	}
	if _, rerr := r.Bot.Request(tgbotapi.NewCallback(cb.ID, answer)); rerr != nil {
		r.log().Debugw("callback ack failed", "chat", cid, "err", rerr)
	}
}

func (r *Router) dispatchCallback(ctx context.Context, cid int64, msgID int, s *scan.Session, data string) error {
	switch {
	case data == cbNext:
		if err := s.AcceptNext(); err != nil {
			return err
		}
		r.dropKeyboard(cid, msgID)
		r.send(cid, "📷 Send the next page.")
	case data == cbDone:
		if err := s.AcceptDone(); err != nil {
			return err
		}
		r.dropKeyboard(cid, msgID)
		r.showList(cid, s)
	case data == cbRetake:
		if err := s.Retake(); err != nil {
			return err
		}
		r.dropKeyboard(cid, msgID)
		r.send(cid, "🔄 Photo dropped. Send it again.")
	case strings.HasPrefix(data, cbRemovePrefix):
		i, err := strconv.Atoi(strings.TrimPrefix(data, cbRemovePrefix))
		if err != nil {
			return scan.ErrIndexOutOfRange
		}
		if err := s.Remove(i); err != nil {
			return err
		}
		n := len(s.Snapshot().Queue)
		r.editWithKeyboard(cid, msgID, listText(n), makeListKeyboard(n))
	case data == cbAdd:
		if err := s.ShowCamera(); err != nil {
			return err
		}
		r.dropKeyboard(cid, msgID)
		r.send(cid, "📷 Send the next page.")
	case data == cbProcess, data == cbProcessBg:
		if s.Step() != scan.StepList {
			return scan.ErrInvalidTransition
		}
		r.dropKeyboard(cid, msgID)
		r.startProcessing(ctx, cid, data == cbProcessBg)
	case data == cbBackground:
		return s.MoveToBackground()
	case data == cbMinimize:
		return s.SetMinimized(true)
	case data == cbExpand:
		return s.SetMinimized(false)
	case data == cbDiscard:
		r.dropKeyboard(cid, msgID)
		r.discard(cid)
	case data == cbDefaultTitle:
		if s.Step() != scan.StepTitle {
			return scan.ErrInvalidTransition
		}
		r.dropKeyboard(cid, msgID)
		if err := s.SetTitle(""); err != nil {
			return err
		}
		r.save(ctx, cid, s)
	default:
		return scan.ErrInvalidTransition
	}
	return nil
}

// dropKeyboard убирает кнопки с сообщения, на котором нажали.
func (r *Router) dropKeyboard(chatID int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := r.Bot.Send(edit); err != nil {
		r.log().Debugw("drop keyboard failed", "chat", chatID, "err", err)
	}
}

func (r *Router) editWithKeyboard(chatID int64, msgID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, kb)
	if _, err := r.Bot.Send(edit); err != nil {
		r.log().Debugw("edit message failed", "chat", chatID, "err", err)
	}
}
