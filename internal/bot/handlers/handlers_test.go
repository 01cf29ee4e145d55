package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
	"tempmail/bot/internal/cache"
	"tempmail/bot/internal/confirm"
	"tempmail/bot/internal/domain"
	"tempmail/bot/internal/i18n"
	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/provider"
	"tempmail/bot/internal/service"
	"tempmail/bot/internal/storage/memory"
)

// stubTransport 记录全部出站消息的假传输层。
type stubTransport struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

type sentMessage struct {
	UserID string
	Out    bot.Outgoing
}

func (s *stubTransport) Send(_ context.Context, userID string, out bot.Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[userID] {
		return errors.New("delivery failed")
	}
	s.sent = append(s.sent, sentMessage{UserID: userID, Out: out})
	return nil
}

func (s *stubTransport) last() sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentMessage{}
	}
	return s.sent[len(s.sent)-1]
}

func (s *stubTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type testEnv struct {
	handlers  *Handlers
	transport *stubTransport
	store     *memory.Store
	tr        *i18n.Translator
	messages  *[]domain.Message
}

func newTestEnv(t *testing.T, adminIDs ...string) *testEnv {
	t.Helper()

	var messages []domain.Message
	mux := http.NewServeMux()
	mux.HandleFunc("GET /domains", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{{"id": "d1", "domain": "temp.example"}})
	})
	mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "acc-1", "address": body["address"]})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(messages)
	})
	mux.HandleFunc("GET /messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		for _, m := range messages {
			if m.ID == r.PathValue("id") {
				json.NewEncoder(w).Encode(m)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("DELETE /accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cacheStore := cache.NewMemory(time.Minute)
	t.Cleanup(func() { cacheStore.Close() })

	logger := zap.NewNop()
	metrics := monitoring.NewMetrics()
	client := provider.NewClient(server.URL, cacheStore, logger)
	mem := memory.NewStore()
	mail := service.NewMailService(client, mem, mem, logger, metrics)

	tr, err := i18n.NewTranslator("ru")
	require.NoError(t, err)

	transport := &stubTransport{failFor: make(map[string]bool)}
	h := New(mail, confirm.NewManager(time.Minute), mem, tr, logger, metrics, adminIDs)

	return &testEnv{
		handlers:  h,
		transport: transport,
		store:     mem,
		tr:        tr,
		messages:  &messages,
	}
}

func (e *testEnv) ctx(userID, text string) *bot.Context {
	c := bot.NewContext(context.Background(), bot.Event{UserID: userID, Text: text}, e.transport)
	c.Lang = "ru"
	return c
}

func (e *testEnv) callback(userID, data string) *bot.Context {
	c := bot.NewContext(context.Background(), bot.Event{UserID: userID, CallbackData: data}, e.transport)
	c.Lang = "ru"
	return c
}

func TestStartAndHelp(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.handlers.Start(env.ctx("u1", "/start")))
	last := env.transport.last()
	assert.Equal(t, env.tr.T("ru", "start", nil), last.Out.Text)
	require.NotNil(t, last.Out.Keyboard)
	assert.NotEmpty(t, last.Out.Keyboard.Reply)

	require.NoError(t, env.handlers.Help(env.ctx("u1", "/help")))
	assert.Equal(t, env.tr.T("ru", "help", nil), env.transport.last().Out.Text)
}

func TestNewMailFlow(t *testing.T) {
	t.Run("无邮箱时直接创建", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		assert.Contains(t, env.transport.last().Out.Text, "@temp.example")

		session, err := env.store.Get("u1")
		require.NoError(t, err)
		assert.True(t, session.HasMailbox())
	})

	t.Run("已有邮箱时要求确认", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		first, err := env.store.Get("u1")
		require.NoError(t, err)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		last := env.transport.last()
		assert.Contains(t, last.Out.Text, first.Email)
		require.NotNil(t, last.Out.Keyboard)
		require.NotEmpty(t, last.Out.Keyboard.Inline)

		// 未确认前邮箱保持不变
		unchanged, err := env.store.Get("u1")
		require.NoError(t, err)
		assert.Equal(t, first.Email, unchanged.Email)
	})

	t.Run("确认后替换邮箱", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		first, err := env.store.Get("u1")
		require.NoError(t, err)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		require.NoError(t, env.handlers.ConfirmNewMail(env.callback("u1", "confirm_new_email")))

		second, err := env.store.Get("u1")
		require.NoError(t, err)
		assert.NotEqual(t, first.Email, second.Email)
	})

	t.Run("取消后邮箱保持不变", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		first, err := env.store.Get("u1")
		require.NoError(t, err)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		require.NoError(t, env.handlers.CancelNewMail(env.callback("u1", "cancel_new_email")))
		assert.Equal(t, env.tr.T("ru", "operation_cancelled", nil), env.transport.last().Out.Text)

		unchanged, err := env.store.Get("u1")
		require.NoError(t, err)
		assert.Equal(t, first.Email, unchanged.Email)
	})

	t.Run("无待确认状态时确认回调不生效", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.ConfirmNewMail(env.callback("u1", "confirm_new_email")))
		assert.Equal(t, env.tr.T("ru", "operation_cancelled", nil), env.transport.last().Out.Text)

		_, err := env.store.Get("u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDeleteFlow(t *testing.T) {
	t.Run("无邮箱时提示无可删除", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.Delete(env.ctx("u1", "/delete")))
		assert.Equal(t, env.tr.T("ru", "no_mail_delete", nil), env.transport.last().Out.Text)
	})

	t.Run("确认后删除", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		require.NoError(t, env.handlers.Delete(env.ctx("u1", "/delete")))
		require.NotNil(t, env.transport.last().Out.Keyboard)

		require.NoError(t, env.handlers.ConfirmDelete(env.callback("u1", "confirm_delete_email")))
		assert.Equal(t, env.tr.T("ru", "mail_deleted", nil), env.transport.last().Out.Text)

		_, err := env.store.Get("u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("任意文本放弃待确认状态", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		require.NoError(t, env.handlers.Delete(env.ctx("u1", "/delete")))

		require.NoError(t, env.handlers.Unknown(env.ctx("u1", "привет")))
		assert.Equal(t, env.tr.T("ru", "operation_cancelled_delete", nil), env.transport.last().Out.Text)

		// 放弃之后确认回调已失效
		require.NoError(t, env.handlers.ConfirmDelete(env.callback("u1", "confirm_delete_email")))
		session, err := env.store.Get("u1")
		require.NoError(t, err)
		assert.True(t, session.HasMailbox())
	})
}

func TestInboxFlow(t *testing.T) {
	t.Run("无邮箱时提示先创建", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.Inbox(env.ctx("u1", "/inbox")))
		assert.Equal(t, env.tr.T("ru", "no_mail", nil), env.transport.last().Out.Text)
	})

	t.Run("空收件箱带刷新按钮", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		require.NoError(t, env.handlers.Inbox(env.ctx("u1", "/inbox")))

		last := env.transport.last()
		require.NotNil(t, last.Out.Keyboard)
		assert.Equal(t, "refresh_inbox", last.Out.Keyboard.Inline[0][0].CallbackData)
	})

	t.Run("每封邮件一个查看按钮", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		*env.messages = []domain.Message{
			{ID: "m1", Subject: "first", From: domain.MessageSender{Address: "a@b.c"}},
			{ID: "m2", Subject: "second", From: domain.MessageSender{Name: "Alice", Address: "x@y.z"}},
		}

		require.NoError(t, env.handlers.Inbox(env.ctx("u1", "/inbox")))
		last := env.transport.last()
		require.NotNil(t, last.Out.Keyboard)
		require.Len(t, last.Out.Keyboard.Inline, 3)
		assert.Equal(t, "view_message:m1", last.Out.Keyboard.Inline[0][0].CallbackData)
		assert.Contains(t, last.Out.Keyboard.Inline[1][0].Text, "Alice")
	})

	t.Run("查看邮件详情", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		*env.messages = []domain.Message{
			{ID: "m1", Subject: "greetings", Text: "hello there",
				From: domain.MessageSender{Address: "a@b.c"}},
		}

		require.NoError(t, env.handlers.ViewMessage(env.callback("u1", "view_message:m1")))
		last := env.transport.last()
		assert.Contains(t, last.Out.Text, "greetings")
		assert.Contains(t, last.Out.Text, "hello there")
		require.NotNil(t, last.Out.Keyboard)
		assert.Equal(t, "back_to_inbox", last.Out.Keyboard.Inline[0][0].CallbackData)
	})
}

func TestLanguageFlow(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.handlers.Language(env.ctx("u1", "/language")))
	last := env.transport.last()
	require.NotNil(t, last.Out.Keyboard)
	assert.Equal(t, "set_language:en", last.Out.Keyboard.Inline[0][0].CallbackData)

	require.NoError(t, env.handlers.SetLanguage(env.callback("u1", "set_language:en")))
	assert.Equal(t,
		env.tr.T("en", "language_changed", i18n.Args{"language": "English"}),
		env.transport.last().Out.Text)

	lang, err := env.store.GetLanguage("u1")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
}

func TestAdminCommands(t *testing.T) {
	t.Run("非管理员命令被静默忽略", func(t *testing.T) {
		env := newTestEnv(t, "admin")

		require.NoError(t, env.handlers.Stats(env.ctx("u1", "/stats")))
		require.NoError(t, env.handlers.Broadcast(env.ctx("u1", "/broadcast hi")))
		require.NoError(t, env.handlers.BanUser(env.ctx("u1", "/ban u2")))
		assert.Zero(t, env.transport.count())
	})

	t.Run("统计", func(t *testing.T) {
		env := newTestEnv(t, "admin")

		// /start 注册用户，/newmail 计入已创建邮箱
		require.NoError(t, env.handlers.Start(env.ctx("u1", "/start")))
		require.NoError(t, env.handlers.Start(env.ctx("u1", "/start")))
		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))

		stats, err := env.store.GetStats()
		require.NoError(t, err)
		// 重复 /start 不重复计数
		assert.Equal(t, 1, stats.TotalUsers)
		assert.Equal(t, 1, stats.CreatedEmails)

		require.NoError(t, env.handlers.Stats(env.ctx("admin", "/stats")))
		text := env.transport.last().Out.Text
		assert.Contains(t, text, "1")
	})

	t.Run("群发给所有会话用户", func(t *testing.T) {
		env := newTestEnv(t, "admin")

		require.NoError(t, env.handlers.NewMail(env.ctx("u1", "/newmail")))
		require.NoError(t, env.handlers.NewMail(env.ctx("u2", "/newmail")))
		env.transport.failFor["u2"] = true

		require.NoError(t, env.handlers.Broadcast(env.ctx("admin", "/broadcast важное объявление")))

		broadcasts, err := env.store.Broadcasts()
		require.NoError(t, err)
		require.Len(t, broadcasts, 1)
		assert.Equal(t, "важное объявление", broadcasts[0].Text)
		assert.Equal(t, 1, broadcasts[0].Sent)
		assert.Equal(t, 1, broadcasts[0].Failed)
		assert.NotEmpty(t, broadcasts[0].ID)

		// 一次群发只计一次
		stats, err := env.store.GetStats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalBroadcasts)
	})

	t.Run("缺少群发文本时提示用法", func(t *testing.T) {
		env := newTestEnv(t, "admin")

		require.NoError(t, env.handlers.Broadcast(env.ctx("admin", "/broadcast")))
		assert.Equal(t, env.tr.T("ru", "broadcast_usage", nil), env.transport.last().Out.Text)
	})

	t.Run("封禁与解封", func(t *testing.T) {
		env := newTestEnv(t, "admin")

		require.NoError(t, env.handlers.BanUser(env.ctx("admin", "/ban u2")))
		banned, err := env.store.IsBanned("u2")
		require.NoError(t, err)
		assert.True(t, banned)

		require.NoError(t, env.handlers.UnbanUser(env.ctx("admin", "/unban u2")))
		banned, err = env.store.IsBanned("u2")
		require.NoError(t, err)
		assert.False(t, banned)
	})

	t.Run("管理面板带操作按钮", func(t *testing.T) {
		env := newTestEnv(t, "admin")

		require.NoError(t, env.handlers.Admin(env.ctx("admin", "/admin")))
		last := env.transport.last()
		assert.Equal(t, env.tr.T("ru", "admin_panel", nil), last.Out.Text)
		require.NotNil(t, last.Out.Keyboard)
		require.Len(t, last.Out.Keyboard.Inline, 3)
		assert.Equal(t, "admin_stats", last.Out.Keyboard.Inline[0][0].CallbackData)
		assert.Equal(t, "admin_broadcast", last.Out.Keyboard.Inline[1][0].CallbackData)
		assert.Equal(t, "admin_bans", last.Out.Keyboard.Inline[2][0].CallbackData)

		// 非管理员拿不到面板
		require.NoError(t, env.handlers.Admin(env.ctx("u1", "/admin")))
		assert.Equal(t, 1, env.transport.count())
	})

	t.Run("封禁名单按钮", func(t *testing.T) {
		env := newTestEnv(t, "admin")

		require.NoError(t, env.handlers.BannedList(env.callback("admin", "admin_bans")))
		assert.Equal(t, env.tr.T("ru", "banned_list_empty", nil), env.transport.last().Out.Text)

		require.NoError(t, env.handlers.BanUser(env.ctx("admin", "/ban u2")))
		require.NoError(t, env.handlers.BannedList(env.callback("admin", "admin_bans")))
		assert.Contains(t, env.transport.last().Out.Text, "u2")
	})

	t.Run("封禁通知发送失败不影响封禁", func(t *testing.T) {
		env := newTestEnv(t, "admin")
		env.transport.failFor["u2"] = true

		require.NoError(t, env.handlers.BanUser(env.ctx("admin", "/ban u2")))
		banned, err := env.store.IsBanned("u2")
		require.NoError(t, err)
		assert.True(t, banned)
	})
}
