package middleware

import (
	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/storage"
)

// Language 语言解析中间件。
//
// 管道的最后一级：把用户的语言偏好写进处理上下文，永远放行。
// 无发送者或未设置偏好时使用基准语言。
func Language(store storage.BotStore, baseLang string, logger *zap.Logger) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return func(c *bot.Context) error {
			c.Lang = baseLang

			if c.Event.HasSender() {
				lang, err := store.GetLanguage(c.Event.UserID)
				if err != nil {
					logger.Error("failed to resolve language",
						zap.String("user_id", c.Event.UserID), zap.Error(err))
				} else if lang != "" {
					c.Lang = lang
				}
			}

			return next(c)
		}
	}
}
