package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tempmail/bot/internal/bot"
)

// Transport 控制台传输，用于本地运行与联调。
//
// 入站：每行一个事件，"<user_id> <文本>"，文本以 "cb:" 开头时
// 作为按钮回调投递。出站：打印到指定的 writer。
// 生产部署时换成真实聊天平台的传输实现。
type Transport struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

// New 创建控制台传输。
func New(out io.Writer, logger *zap.Logger) *Transport {
	return &Transport{out: out, logger: logger}
}

// Send 把出站消息打印到控制台。
func (t *Transport) Send(_ context.Context, userID string, msg bot.Outgoing) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := fmt.Fprintf(t.out, "-> %s: %s\n", userID, msg.Text); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if msg.Keyboard == nil {
		return nil
	}
	for _, row := range msg.Keyboard.Inline {
		for _, btn := range row {
			fmt.Fprintf(t.out, "   [%s] cb:%s\n", btn.Text, btn.CallbackData)
		}
	}
	for _, row := range msg.Keyboard.Reply {
		fmt.Fprintf(t.out, "   %s\n", strings.Join(row, " | "))
	}
	return nil
}

// Listen 读取入站事件直到 EOF 或 ctx 取消，每个事件交给 dispatch。
func (t *Transport) Listen(ctx context.Context, in io.Reader, dispatch func(bot.Event)) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		dispatch(event)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	t.logger.Info("console input closed")
	return nil
}

// parseLine 把一行输入解析成事件。
func parseLine(line string) (bot.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return bot.Event{}, false
	}

	userID, rest, found := strings.Cut(line, " ")
	if !found || rest == "" {
		return bot.Event{}, false
	}

	if data, isCallback := strings.CutPrefix(rest, "cb:"); isCallback {
		return bot.Event{UserID: userID, CallbackData: data}, true
	}
	return bot.Event{UserID: userID, Text: rest}, true
}
