package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-scanner/api/internal/scan"
)

// callback data
const (
	cbNext         = "rv_next"
	cbDone         = "rv_done"
	cbRetake       = "rv_retake"
	cbRemovePrefix = "ls_rm:"
	cbAdd          = "ls_add"
	cbProcess      = "ls_process"
	cbProcessBg    = "ls_bg"
	cbBackground   = "pr_bg"
	cbMinimize     = "pr_min"
	cbExpand       = "pr_max"
	cbDiscard      = "discard"
	cbDefaultTitle = "tt_default"
)

const maxMessageLen = 3900

func makeReviewKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Next page", cbNext),
			tgbotapi.NewInlineKeyboardButtonData("✅ Done", cbDone),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Retake", cbRetake),
		),
	)
}

// makeListKeyboard — по кнопке удаления на страницу, затем действия над очередью.
func makeListKeyboard(pages int) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, pages+3)
	for i := 0; i < pages; i++ {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🗑 Remove page %d", i+1), cbRemovePrefix+strconv.Itoa(i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📷 Add page", cbAdd),
	))
	if pages > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Process", cbProcess),
			tgbotapi.NewInlineKeyboardButtonData("🌙 Process in background", cbProcessBg),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Discard", cbDiscard),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func makeProgressKeyboard(ev scan.Event) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if !ev.Background {
		toggle := tgbotapi.NewInlineKeyboardButtonData("➖ Minimize", cbMinimize)
		if ev.Minimized {
			toggle = tgbotapi.NewInlineKeyboardButtonData("➕ Expand", cbExpand)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌙 Background", cbBackground),
			toggle,
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Discard", cbDiscard),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func makeTitleKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Use default title", cbDefaultTitle),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Discard", cbDiscard),
	))
}

func listText(pages int) string {
	if pages == 0 {
		return "No pages yet. Send a photo of the first page."
	}
	return fmt.Sprintf("📄 Pages in queue: %d\nRemove pages you don't need, add more or start processing.", pages)
}

// progressText — развёрнутый вид с полосой и свёрнутый «пузырь».
func progressText(ev scan.Event) string {
	p := ev.Progress
	switch {
	case ev.BackgroundComplete:
		return fmt.Sprintf("✅ Processed %d/%d pages.", p.Processed, p.Total)
	case ev.Background:
		return fmt.Sprintf("🌙 Processing in background: %d/%d. Use /resume to come back.", p.Processed, p.Total)
	case ev.Minimized:
		return fmt.Sprintf("⏳ %d/%d", p.Processed, p.Total)
	}
	return fmt.Sprintf("⏳ Processing pages %d/%d\n%s", p.Processed, p.Total, progressBar(p, 10))
}

func progressBar(p scan.Progress, width int) string {
	filled := 0
	if p.Total > 0 {
		filled = p.Processed * width / p.Total
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// splitText режет длинный текст на куски по границам рун.
func splitText(s string, limit int) []string {
	if s == "" {
		return nil
	}
	var out []string
	r := []rune(s)
	for len(r) > limit {
		cut := limit
		if i := lastIndexRune(r[:limit], '\n'); i > limit/2 {
			cut = i + 1
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func lastIndexRune(r []rune, c rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == c {
			return i
		}
	}
	return -1
}
