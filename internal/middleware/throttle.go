package middleware

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/i18n"
	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/storage"
)

const trackerRetention = time.Hour

// RateTracker 记录每个用户最近一次被接受的消息时间。
//
// 纯内存、互斥锁保护，进程重启即清零；每次访问顺手清理
// 超过一小时的陈旧条目。
type RateTracker struct {
	mu       sync.Mutex
	accepted map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

// NewRateTracker 创建限流跟踪器，interval 为两条消息间的最小间隔。
func NewRateTracker(interval time.Duration) *RateTracker {
	return &RateTracker{
		accepted: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Try 尝试接受一条消息。
//
// 返回值:
//   - time.Duration: 被拒绝时还需等待的时间，被接受时为 0
//   - bool: 是否接受
func (t *RateTracker) Try(userID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	// 清理陈旧条目
	cutoff := now.Add(-trackerRetention)
	for id, ts := range t.accepted {
		if ts.Before(cutoff) {
			delete(t.accepted, id)
		}
	}

	if last, ok := t.accepted[userID]; ok {
		if elapsed := now.Sub(last); elapsed < t.interval {
			return t.interval - elapsed, false
		}
	}

	t.accepted[userID] = now
	return 0, true
}

// Throttle 消息限流中间件。
//
// 只对文本消息生效，按钮回调不限流（与确认流程抢时序会把
// 用户卡在待确认状态里）。被拒绝的用户收到剩余等待秒数。
func Throttle(tracker *RateTracker, store storage.BotStore, translator *i18n.Translator, metrics *monitoring.Metrics, logger *zap.Logger) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return func(c *bot.Context) error {
			if c.Event.IsCallback() || !c.Event.HasSender() {
				return next(c)
			}

			remaining, ok := tracker.Try(c.Event.UserID)
			if !ok {
				metrics.EventsRejected.WithLabelValues("throttle").Inc()

				lang, err := store.GetLanguage(c.Event.UserID)
				if err != nil || lang == "" {
					lang = translator.BaseLang()
				}

				logger.Debug("throttled user",
					zap.String("user_id", c.Event.UserID),
					zap.Duration("remaining", remaining))

				return c.Reply(translator.T(lang, "throttling_message", i18n.Args{
					"seconds": fmt.Sprintf("%.1f", remaining.Seconds()),
				}))
			}

			return next(c)
		}
	}
}
