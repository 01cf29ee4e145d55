package handlers

import (
	"strings"

	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/i18n"
)

// Language /language 命令：弹出语言选择按钮。
func (h *Handlers) Language(c *bot.Context) error {
	names := h.tr.Languages()

	rows := make([][]bot.Button, 0, len(names))
	for _, code := range h.tr.LanguageCodes() {
		rows = append(rows, []bot.Button{{
			Text:         names[code],
			CallbackData: "set_language:" + code,
		}})
	}

	return c.ReplyKeyboard(h.tr.T(c.Lang, "language_select", nil),
		&bot.Keyboard{Inline: rows})
}

// SetLanguage 语言选择按钮的回调。
//
// 确认文案和常驻键盘都用新语言渲染，用户立刻看到切换生效。
func (h *Handlers) SetLanguage(c *bot.Context) error {
	code := strings.TrimPrefix(c.Event.CallbackData, "set_language:")
	if !h.tr.Has(code) {
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	if err := h.store.SetLanguage(c.Event.UserID, code); err != nil {
		h.logger.Error("failed to store language preference",
			zap.String("user_id", c.Event.UserID),
			zap.String("lang", code),
			zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	return c.ReplyKeyboard(
		h.tr.T(code, "language_changed", i18n.Args{"language": h.tr.Languages()[code]}),
		h.mainKeyboard(code))
}
