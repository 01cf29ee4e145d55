package middleware

import (
	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/i18n"
	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/storage"
)

// Ban 封禁检查中间件。
//
// 管道的第一级：封禁名单中的用户收到固定拒绝语，事件到此为止，
// 后续中间件与处理器都不会执行。无发送者的事件跳过检查。
func Ban(store storage.BotStore, translator *i18n.Translator, metrics *monitoring.Metrics, logger *zap.Logger) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return func(c *bot.Context) error {
			if !c.Event.HasSender() {
				return next(c)
			}

			banned, err := store.IsBanned(c.Event.UserID)
			if err != nil {
				// 名单读不到时放行，封禁是管制手段而不是安全边界
				logger.Error("failed to check ban list",
					zap.String("user_id", c.Event.UserID), zap.Error(err))
				return next(c)
			}

			if banned {
				metrics.EventsRejected.WithLabelValues("ban").Inc()
				logger.Info("rejected banned user", zap.String("user_id", c.Event.UserID))
				return c.Reply(translator.T(translator.BaseLang(), "banned", nil))
			}

			return next(c)
		}
	}
}
