package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/i18n"
	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/storage/memory"
)

type recordTransport struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordTransport) Send(_ context.Context, _ string, out bot.Outgoing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, out.Text)
	return nil
}

func (r *recordTransport) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

func newTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator("ru")
	require.NoError(t, err)
	return tr
}

func TestRateTracker(t *testing.T) {
	t.Run("间隔内的消息被拒绝", func(t *testing.T) {
		tracker := NewRateTracker(2 * time.Second)
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		current := base
		tracker.now = func() time.Time { return current }

		_, ok := tracker.Try("u1")
		assert.True(t, ok)

		current = base.Add(1 * time.Second)
		remaining, ok := tracker.Try("u1")
		assert.False(t, ok)
		assert.InDelta(t, 1.0, remaining.Seconds(), 0.001)

		current = base.Add(2100 * time.Millisecond)
		_, ok = tracker.Try("u1")
		assert.True(t, ok)
	})

	t.Run("拒绝不刷新计时窗口", func(t *testing.T) {
		tracker := NewRateTracker(2 * time.Second)
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		current := base
		tracker.now = func() time.Time { return current }

		tracker.Try("u1")
		current = base.Add(1900 * time.Millisecond)
		_, ok := tracker.Try("u1")
		assert.False(t, ok)

		// 窗口从第一条被接受的消息起算，而不是从被拒绝那条起算
		current = base.Add(2 * time.Second)
		_, ok = tracker.Try("u1")
		assert.True(t, ok)
	})

	t.Run("用户之间互不影响", func(t *testing.T) {
		tracker := NewRateTracker(2 * time.Second)

		_, ok := tracker.Try("u1")
		assert.True(t, ok)
		_, ok = tracker.Try("u2")
		assert.True(t, ok)
	})

	t.Run("陈旧条目被清理", func(t *testing.T) {
		tracker := NewRateTracker(2 * time.Second)
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		current := base
		tracker.now = func() time.Time { return current }

		tracker.Try("u1")
		current = base.Add(2 * time.Hour)
		tracker.Try("u2")

		tracker.mu.Lock()
		_, exists := tracker.accepted["u1"]
		tracker.mu.Unlock()
		assert.False(t, exists)
	})
}

func TestBanMiddleware(t *testing.T) {
	tr := newTranslator(t)
	metrics := monitoring.NewMetrics()
	logger := zap.NewNop()

	t.Run("被封用户收到拒绝语且处理器不执行", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.Ban("u1"))

		transport := &recordTransport{}
		called := false
		handler := Ban(store, tr, metrics, logger)(func(c *bot.Context) error {
			called = true
			return nil
		})

		c := bot.NewContext(context.Background(), bot.Event{UserID: "u1", Text: "hi"}, transport)
		require.NoError(t, handler(c))
		assert.False(t, called)
		assert.Equal(t, tr.T("ru", "banned", nil), transport.last())
	})

	t.Run("未封禁用户放行", func(t *testing.T) {
		store := memory.NewStore()

		called := false
		handler := Ban(store, tr, metrics, logger)(func(c *bot.Context) error {
			called = true
			return nil
		})

		c := bot.NewContext(context.Background(), bot.Event{UserID: "u1", Text: "hi"}, &recordTransport{})
		require.NoError(t, handler(c))
		assert.True(t, called)
	})
}

func TestThrottleMiddleware(t *testing.T) {
	tr := newTranslator(t)
	metrics := monitoring.NewMetrics()
	logger := zap.NewNop()

	t.Run("连续消息被限流并提示等待秒数", func(t *testing.T) {
		store := memory.NewStore()
		tracker := NewRateTracker(2 * time.Second)
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		current := base
		tracker.now = func() time.Time { return current }

		transport := &recordTransport{}
		calls := 0
		handler := Throttle(tracker, store, tr, metrics, logger)(func(c *bot.Context) error {
			calls++
			return nil
		})

		c := bot.NewContext(context.Background(), bot.Event{UserID: "u1", Text: "hi"}, transport)
		require.NoError(t, handler(c))
		assert.Equal(t, 1, calls)

		current = base.Add(time.Second)
		require.NoError(t, handler(c))
		assert.Equal(t, 1, calls)
		assert.Contains(t, transport.last(), "1.0")
	})

	t.Run("按钮回调不限流", func(t *testing.T) {
		store := memory.NewStore()
		tracker := NewRateTracker(2 * time.Second)

		calls := 0
		handler := Throttle(tracker, store, tr, metrics, logger)(func(c *bot.Context) error {
			calls++
			return nil
		})

		c := bot.NewContext(context.Background(),
			bot.Event{UserID: "u1", CallbackData: "refresh_inbox"}, &recordTransport{})
		require.NoError(t, handler(c))
		require.NoError(t, handler(c))
		assert.Equal(t, 2, calls)
	})

	t.Run("限流提示使用用户语言", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SetLanguage("u1", "en"))
		tracker := NewRateTracker(2 * time.Second)

		transport := &recordTransport{}
		handler := Throttle(tracker, store, tr, metrics, logger)(func(c *bot.Context) error {
			return nil
		})

		c := bot.NewContext(context.Background(), bot.Event{UserID: "u1", Text: "hi"}, transport)
		require.NoError(t, handler(c))
		require.NoError(t, handler(c))
		assert.Contains(t, transport.last(), "Too fast")
	})
}

func TestLanguageMiddleware(t *testing.T) {
	logger := zap.NewNop()

	t.Run("无偏好时使用基准语言", func(t *testing.T) {
		store := memory.NewStore()

		var got string
		handler := Language(store, "ru", logger)(func(c *bot.Context) error {
			got = c.Lang
			return nil
		})

		c := bot.NewContext(context.Background(), bot.Event{UserID: "u1", Text: "hi"}, &recordTransport{})
		require.NoError(t, handler(c))
		assert.Equal(t, "ru", got)
	})

	t.Run("偏好覆盖基准语言", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SetLanguage("u1", "en"))

		var got string
		handler := Language(store, "ru", logger)(func(c *bot.Context) error {
			got = c.Lang
			return nil
		})

		c := bot.NewContext(context.Background(), bot.Event{UserID: "u1", Text: "hi"}, &recordTransport{})
		require.NoError(t, handler(c))
		assert.Equal(t, "en", got)
	})
}

func TestPipelineOrder(t *testing.T) {
	tr := newTranslator(t)
	metrics := monitoring.NewMetrics()
	logger := zap.NewNop()

	// 封禁检查在限流之前：被封用户的消息不应占用限流额度
	store := memory.NewStore()
	require.NoError(t, store.Ban("u1"))
	tracker := NewRateTracker(2 * time.Second)

	var handler bot.Handler = func(c *bot.Context) error { return nil }
	handler = Throttle(tracker, store, tr, metrics, logger)(handler)
	handler = Ban(store, tr, metrics, logger)(handler)

	c := bot.NewContext(context.Background(), bot.Event{UserID: "u1", Text: "hi"}, &recordTransport{})
	require.NoError(t, handler(c))

	tracker.mu.Lock()
	_, tracked := tracker.accepted["u1"]
	tracker.mu.Unlock()
	assert.False(t, tracked)
}
