package handlers

import (
	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/confirm"
	"tempmail/bot/internal/domain"
	"tempmail/bot/internal/i18n"
	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/service"
	"tempmail/bot/internal/storage"
)

// Handlers 机器人全部命令、按钮与回调的处理器集合。
type Handlers struct {
	mail    *service.MailService
	confirm *confirm.Manager
	store   storage.Store
	tr      *i18n.Translator
	logger  *zap.Logger
	metrics *monitoring.Metrics

	adminIDs map[string]struct{}
}

// New 创建处理器集合。
func New(mail *service.MailService, confirmMgr *confirm.Manager, store storage.Store, tr *i18n.Translator, logger *zap.Logger, metrics *monitoring.Metrics, adminIDs []string) *Handlers {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return &Handlers{
		mail:     mail,
		confirm:  confirmMgr,
		store:    store,
		tr:       tr,
		logger:   logger,
		metrics:  metrics,
		adminIDs: admins,
	}
}

// Register 把全部路由挂到分发器上。
//
// 常驻按钮的文本因语言而异，同一个处理器要挂上每种语言的标签。
func (h *Handlers) Register(d *bot.Dispatcher) {
	d.Command("start", h.Start)
	d.Command("help", h.Help)
	d.Command("newmail", h.NewMail)
	d.Command("inbox", h.Inbox)
	d.Command("delete", h.Delete)
	d.Command("language", h.Language)

	d.Command("admin", h.Admin)
	d.Command("stats", h.Stats)
	d.Command("broadcast", h.Broadcast)
	d.Command("ban", h.BanUser)
	d.Command("unban", h.UnbanUser)

	d.Callback("confirm_new_email", h.ConfirmNewMail)
	d.Callback("cancel_new_email", h.CancelNewMail)
	d.Callback("confirm_delete_email", h.ConfirmDelete)
	d.Callback("cancel_delete_email", h.CancelDelete)
	d.Callback("view_message:", h.ViewMessage)
	d.Callback("back_to_inbox", h.InboxRefresh)
	d.Callback("refresh_inbox", h.InboxRefresh)
	d.Callback("set_language:", h.SetLanguage)
	d.Callback("admin_stats", h.Stats)
	d.Callback("admin_broadcast", h.BroadcastHint)
	d.Callback("admin_bans", h.BannedList)

	for _, lang := range h.tr.LanguageCodes() {
		d.Button(h.NewMail, h.tr.T(lang, "btn_new_mail", nil))
		d.Button(h.Inbox, h.tr.T(lang, "btn_inbox", nil))
		d.Button(h.Delete, h.tr.T(lang, "btn_delete", nil))
		d.Button(h.Language, h.tr.T(lang, "btn_language", nil))
	}

	d.Fallback(h.Unknown)
}

// Start /start 命令：欢迎语加常驻键盘。
//
// 首次见到的用户落一条语言偏好并计入用户总数。
func (h *Handlers) Start(c *bot.Context) error {
	if lang, err := h.store.GetLanguage(c.Event.UserID); err == nil && lang == "" {
		if err := h.store.SetLanguage(c.Event.UserID, c.Lang); err != nil {
			h.logger.Error("failed to register user",
				zap.String("user_id", c.Event.UserID), zap.Error(err))
		} else if err := h.store.UpdateStats(func(s *domain.Stats) {
			s.TotalUsers++
		}); err != nil {
			h.logger.Error("failed to update user count", zap.Error(err))
		}
	}

	return c.ReplyKeyboard(h.tr.T(c.Lang, "start", nil), h.mainKeyboard(c.Lang))
}

// Help /help 命令。
func (h *Handlers) Help(c *bot.Context) error {
	return c.Reply(h.tr.T(c.Lang, "help", nil))
}

// Unknown 兜底处理器。
//
// 待确认状态下的任意文本视为放弃操作，其余文本提示查看帮助。
func (h *Handlers) Unknown(c *bot.Context) error {
	switch h.confirm.Resolve(c.Event.UserID) {
	case confirm.AwaitingReplace:
		return c.Reply(h.tr.T(c.Lang, "operation_cancelled", nil))
	case confirm.AwaitingDelete:
		return c.Reply(h.tr.T(c.Lang, "operation_cancelled_delete", nil))
	}
	return c.Reply(h.tr.T(c.Lang, "unknown_command", nil))
}

// mainKeyboard 指定语言的常驻键盘。
func (h *Handlers) mainKeyboard(lang string) *bot.Keyboard {
	return &bot.Keyboard{
		Reply: [][]string{
			{h.tr.T(lang, "btn_new_mail", nil), h.tr.T(lang, "btn_inbox", nil)},
			{h.tr.T(lang, "btn_delete", nil), h.tr.T(lang, "btn_language", nil)},
		},
	}
}

// isAdmin 发送者是否在管理员名单里。
func (h *Handlers) isAdmin(userID string) bool {
	_, ok := h.adminIDs[userID]
	return ok
}
