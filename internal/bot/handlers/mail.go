package handlers

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/confirm"
	"tempmail/bot/internal/domain"
	"tempmail/bot/internal/i18n"
)

const messageLabelLimit = 40

// NewMail 创建邮箱入口。
//
// 已有邮箱时不直接替换，先进入待确认状态并弹出确认按钮，
// 替换是不可逆操作。
func (h *Handlers) NewMail(c *bot.Context) error {
	session, err := h.mail.Session(c.Event.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.logger.Error("failed to load session",
			zap.String("user_id", c.Event.UserID), zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	if session != nil && session.HasMailbox() {
		h.confirm.Begin(c.Event.UserID, confirm.AwaitingReplace)
		keyboard := &bot.Keyboard{Inline: [][]bot.Button{{
			{Text: h.tr.T(c.Lang, "confirm_yes", nil), CallbackData: "confirm_new_email"},
			{Text: h.tr.T(c.Lang, "confirm_no", nil), CallbackData: "cancel_new_email"},
		}}}
		return c.ReplyKeyboard(
			h.tr.T(c.Lang, "mail_exists", i18n.Args{"email": session.Email}),
			keyboard)
	}

	return h.provision(c, false)
}

// ConfirmNewMail 替换确认按钮的回调。
func (h *Handlers) ConfirmNewMail(c *bot.Context) error {
	if h.confirm.Resolve(c.Event.UserID) != confirm.AwaitingReplace {
		// 确认已过期或早被取消，不做破坏性操作
		return c.Reply(h.tr.T(c.Lang, "operation_cancelled", nil))
	}
	return h.provision(c, true)
}

// CancelNewMail 替换取消按钮的回调。
func (h *Handlers) CancelNewMail(c *bot.Context) error {
	h.confirm.Clear(c.Event.UserID)
	return c.Reply(h.tr.T(c.Lang, "operation_cancelled", nil))
}

// provision 执行创建或替换，并把服务层错误翻译成用户文案。
func (h *Handlers) provision(c *bot.Context, replace bool) error {
	if err := c.Reply(h.tr.T(c.Lang, "mail_creating", nil)); err != nil {
		h.logger.Warn("failed to send progress message", zap.Error(err))
	}

	var (
		session *domain.Session
		err     error
	)
	if replace {
		session, err = h.mail.Replace(c.Ctx, c.Event.UserID, c.Lang)
	} else {
		session, err = h.mail.Provision(c.Ctx, c.Event.UserID, c.Lang)
	}

	if err != nil {
		if errors.Is(err, domain.ErrSessionNotSaved) {
			// 邮箱已真实存在，照常展示地址，但要警告持久化失败
			if replyErr := c.Reply(h.tr.T(c.Lang, "mail_created",
				i18n.Args{"email": session.Email})); replyErr != nil {
				return replyErr
			}
			return c.Reply(h.tr.T(c.Lang, "session_not_saved",
				i18n.Args{"email": session.Email}))
		}

		h.logger.Error("failed to provision mailbox",
			zap.String("user_id", c.Event.UserID), zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error_create_account", nil))
	}

	return c.Reply(h.tr.T(c.Lang, "mail_created", i18n.Args{"email": session.Email}))
}

// Inbox /inbox 命令与收件箱按钮。
func (h *Handlers) Inbox(c *bot.Context) error {
	if err := c.Reply(h.tr.T(c.Lang, "checking_inbox", nil)); err != nil {
		h.logger.Warn("failed to send progress message", zap.Error(err))
	}
	return h.sendInbox(c)
}

// InboxRefresh 收件箱刷新与返回按钮的回调。
func (h *Handlers) InboxRefresh(c *bot.Context) error {
	return h.sendInbox(c)
}

// sendInbox 拉取收件箱并渲染成消息列表。
func (h *Handlers) sendInbox(c *bot.Context) error {
	messages, session, err := h.mail.Inbox(c.Ctx, c.Event.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNoMailbox) {
			return c.Reply(h.tr.T(c.Lang, "no_mail", nil))
		}
		h.logger.Error("failed to fetch inbox",
			zap.String("user_id", c.Event.UserID), zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error_messages", nil))
	}

	if len(messages) == 0 {
		keyboard := &bot.Keyboard{Inline: [][]bot.Button{{
			{Text: h.tr.T(c.Lang, "btn_refresh", nil), CallbackData: "refresh_inbox"},
		}}}
		return c.ReplyKeyboard(
			h.tr.T(c.Lang, "inbox_empty", i18n.Args{"email": session.Email}),
			keyboard)
	}

	rows := make([][]bot.Button, 0, len(messages)+1)
	for _, m := range messages {
		rows = append(rows, []bot.Button{{
			Text:         messageLabel(m),
			CallbackData: "view_message:" + m.ID,
		}})
	}
	rows = append(rows, []bot.Button{{
		Text:         h.tr.T(c.Lang, "btn_refresh", nil),
		CallbackData: "refresh_inbox",
	}})

	return c.ReplyKeyboard(
		h.tr.T(c.Lang, "inbox_messages", i18n.Args{
			"count": fmt.Sprintf("%d", len(messages)),
			"email": session.Email,
		}),
		&bot.Keyboard{Inline: rows})
}

// ViewMessage 查看单封邮件的回调。
func (h *Handlers) ViewMessage(c *bot.Context) error {
	messageID := strings.TrimPrefix(c.Event.CallbackData, "view_message:")
	if messageID == "" {
		return c.Reply(h.tr.T(c.Lang, "error_messages", nil))
	}

	message, err := h.mail.ReadMessage(c.Ctx, c.Event.UserID, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrNoMailbox) {
			return c.Reply(h.tr.T(c.Lang, "no_mail", nil))
		}
		h.logger.Error("failed to read message",
			zap.String("user_id", c.Event.UserID),
			zap.String("message_id", messageID),
			zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error_messages", nil))
	}

	body := strings.TrimSpace(message.Text)
	if body == "" {
		body = strings.TrimSpace(message.Intro)
	}
	if body == "" {
		body = h.tr.T(c.Lang, "message_no_text", nil)
	}

	keyboard := &bot.Keyboard{Inline: [][]bot.Button{{
		{Text: h.tr.T(c.Lang, "btn_back", nil), CallbackData: "back_to_inbox"},
	}}}

	return c.ReplyKeyboard(h.tr.T(c.Lang, "message_view", i18n.Args{
		"from":    senderLabel(message.From),
		"subject": message.Subject,
		"date":    message.CreatedAt,
		"body":    body,
	}), keyboard)
}

// Delete 删除邮箱入口，同样要先确认。
func (h *Handlers) Delete(c *bot.Context) error {
	session, err := h.mail.Session(c.Event.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.logger.Error("failed to load session",
			zap.String("user_id", c.Event.UserID), zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	if session == nil || !session.HasMailbox() {
		return c.Reply(h.tr.T(c.Lang, "no_mail_delete", nil))
	}

	h.confirm.Begin(c.Event.UserID, confirm.AwaitingDelete)
	keyboard := &bot.Keyboard{Inline: [][]bot.Button{{
		{Text: h.tr.T(c.Lang, "delete_yes", nil), CallbackData: "confirm_delete_email"},
		{Text: h.tr.T(c.Lang, "delete_no", nil), CallbackData: "cancel_delete_email"},
	}}}
	return c.ReplyKeyboard(
		h.tr.T(c.Lang, "mail_delete_confirm", i18n.Args{"email": session.Email}),
		keyboard)
}

// ConfirmDelete 删除确认按钮的回调。
func (h *Handlers) ConfirmDelete(c *bot.Context) error {
	if h.confirm.Resolve(c.Event.UserID) != confirm.AwaitingDelete {
		return c.Reply(h.tr.T(c.Lang, "operation_cancelled_delete", nil))
	}

	if err := h.mail.Delete(c.Ctx, c.Event.UserID); err != nil {
		if errors.Is(err, domain.ErrNoMailbox) {
			return c.Reply(h.tr.T(c.Lang, "no_mail_delete", nil))
		}
		h.logger.Error("failed to delete mailbox",
			zap.String("user_id", c.Event.UserID), zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error_delete", nil))
	}

	return c.Reply(h.tr.T(c.Lang, "mail_deleted", nil))
}

// CancelDelete 删除取消按钮的回调。
func (h *Handlers) CancelDelete(c *bot.Context) error {
	h.confirm.Clear(c.Event.UserID)
	return c.Reply(h.tr.T(c.Lang, "operation_cancelled_delete", nil))
}

// messageLabel 收件箱列表里单封邮件的按钮文本。
func messageLabel(m domain.Message) string {
	label := senderLabel(m.From)
	if m.Subject != "" {
		label += " — " + m.Subject
	}

	runes := []rune(label)
	if len(runes) > messageLabelLimit {
		label = string(runes[:messageLabelLimit-1]) + "…"
	}
	return label
}

// senderLabel 发件人的展示名，没有名字时退回地址。
func senderLabel(from domain.MessageSender) string {
	if from.Name != "" {
		return from.Name
	}
	return from.Address
}
