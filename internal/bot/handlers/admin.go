package handlers

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/domain"
	"tempmail/bot/internal/i18n"
)

const broadcastConcurrency = 8

// Admin /admin 命令：管理面板，仅管理员可用。
func (h *Handlers) Admin(c *bot.Context) error {
	if !h.isAdmin(c.Event.UserID) {
		return nil
	}

	keyboard := &bot.Keyboard{Inline: [][]bot.Button{
		{{Text: h.tr.T(c.Lang, "btn_admin_stats", nil), CallbackData: "admin_stats"}},
		{{Text: h.tr.T(c.Lang, "btn_admin_broadcast", nil), CallbackData: "admin_broadcast"}},
		{{Text: h.tr.T(c.Lang, "btn_admin_bans", nil), CallbackData: "admin_bans"}},
	}}
	return c.ReplyKeyboard(h.tr.T(c.Lang, "admin_panel", nil), keyboard)
}

// BroadcastHint 管理面板的群发按钮：提示命令用法。
func (h *Handlers) BroadcastHint(c *bot.Context) error {
	if !h.isAdmin(c.Event.UserID) {
		return nil
	}
	return c.Reply(h.tr.T(c.Lang, "broadcast_usage", nil))
}

// BannedList 管理面板的封禁名单按钮。
func (h *Handlers) BannedList(c *bot.Context) error {
	if !h.isAdmin(c.Event.UserID) {
		return nil
	}

	banned, err := h.store.BannedUsers()
	if err != nil {
		h.logger.Error("failed to list banned users", zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	if len(banned) == 0 {
		return c.Reply(h.tr.T(c.Lang, "banned_list_empty", nil))
	}
	return c.Reply(h.tr.T(c.Lang, "banned_list", i18n.Args{
		"users": strings.Join(banned, "\n"),
	}))
}

// Stats /stats 命令，仅管理员可用。
func (h *Handlers) Stats(c *bot.Context) error {
	if !h.isAdmin(c.Event.UserID) {
		return nil
	}

	stats, err := h.store.GetStats()
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	return c.Reply(h.tr.T(c.Lang, "stats_message", i18n.Args{
		"users":      fmt.Sprintf("%d", stats.TotalUsers),
		"emails":     fmt.Sprintf("%d", stats.CreatedEmails),
		"broadcasts": fmt.Sprintf("%d", stats.TotalBroadcasts),
	}))
}

// Broadcast /broadcast <文本> 命令，把文本群发给所有已知用户。
//
// 并发发送但限制并发度，单个用户发送失败只计数不中断。
func (h *Handlers) Broadcast(c *bot.Context) error {
	if !h.isAdmin(c.Event.UserID) {
		return nil
	}

	text := c.Event.CommandArgs()
	if text == "" {
		return c.Reply(h.tr.T(c.Lang, "broadcast_usage", nil))
	}

	sessions, err := h.store.ListAll()
	if err != nil {
		h.logger.Error("failed to list broadcast recipients", zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	if err := c.Reply(h.tr.T(c.Lang, "broadcast_started", nil)); err != nil {
		h.logger.Warn("failed to send progress message", zap.Error(err))
	}

	var sent, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(broadcastConcurrency)
	for userID := range sessions {
		g.Go(func() error {
			if err := c.SendTo(userID, text); err != nil {
				failed.Add(1)
				h.logger.Warn("broadcast delivery failed",
					zap.String("user_id", userID), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	g.Wait()

	record := domain.Broadcast{
		ID:      uuid.NewString(),
		Date:    time.Now().UTC(),
		AdminID: c.Event.UserID,
		Text:    text,
		Sent:    int(sent.Load()),
		Failed:  int(failed.Load()),
	}
	// 群发计数由 AddBroadcast 在存储层一并递增
	if err := h.store.AddBroadcast(record); err != nil {
		h.logger.Error("failed to record broadcast", zap.Error(err))
	}

	h.metrics.BroadcastsSent.Inc()
	h.logger.Info("broadcast finished",
		zap.String("admin_id", c.Event.UserID),
		zap.Int("sent", record.Sent),
		zap.Int("failed", record.Failed))

	return c.Reply(h.tr.T(c.Lang, "broadcast_done", i18n.Args{
		"sent":   fmt.Sprintf("%d", record.Sent),
		"failed": fmt.Sprintf("%d", record.Failed),
	}))
}

// BanUser /ban <user_id> 命令。
//
// 被封用户会收到一条通知，发不出去也不影响封禁生效。
func (h *Handlers) BanUser(c *bot.Context) error {
	if !h.isAdmin(c.Event.UserID) {
		return nil
	}

	target := strings.TrimSpace(c.Event.CommandArgs())
	if target == "" {
		return c.Reply(h.tr.T(c.Lang, "ban_usage", nil))
	}

	if err := h.store.Ban(target); err != nil {
		h.logger.Error("failed to ban user",
			zap.String("target", target), zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	if err := c.SendTo(target, h.banNotice(target)); err != nil {
		h.logger.Debug("failed to notify banned user",
			zap.String("target", target), zap.Error(err))
	}

	h.logger.Info("user banned",
		zap.String("admin_id", c.Event.UserID),
		zap.String("target", target))

	return c.Reply(h.tr.T(c.Lang, "ban_done", i18n.Args{"user": target}))
}

// UnbanUser /unban <user_id> 命令。
func (h *Handlers) UnbanUser(c *bot.Context) error {
	if !h.isAdmin(c.Event.UserID) {
		return nil
	}

	target := strings.TrimSpace(c.Event.CommandArgs())
	if target == "" {
		return c.Reply(h.tr.T(c.Lang, "unban_usage", nil))
	}

	if err := h.store.Unban(target); err != nil {
		h.logger.Error("failed to unban user",
			zap.String("target", target), zap.Error(err))
		return c.Reply(h.tr.T(c.Lang, "error", nil))
	}

	if err := c.SendTo(target, h.targetText(target, "unban_notice")); err != nil {
		h.logger.Debug("failed to notify unbanned user",
			zap.String("target", target), zap.Error(err))
	}

	h.logger.Info("user unbanned",
		zap.String("admin_id", c.Event.UserID),
		zap.String("target", target))

	return c.Reply(h.tr.T(c.Lang, "unban_done", i18n.Args{"user": target}))
}

// banNotice 封禁通知，按对方语言偏好渲染。
func (h *Handlers) banNotice(target string) string {
	return h.targetText(target, "banned")
}

// targetText 按目标用户的语言偏好渲染文案。
func (h *Handlers) targetText(target, key string) string {
	lang, err := h.store.GetLanguage(target)
	if err != nil || lang == "" {
		lang = h.tr.BaseLang()
	}
	return h.tr.T(lang, key, nil)
}
