package bot

import (
	"context"
	"strings"
)

// Event 来自聊天传输层的一次入站事件。
//
// 具体的聊天协议（消息格式、按钮回执的投递方式）由外部传输层
// 负责，核心只消费发送者、文本与回调数据三个字段。
type Event struct {
	UserID       string
	Text         string
	CallbackData string
}

// IsCallback 事件是否为按钮回调。
func (e Event) IsCallback() bool {
	return e.CallbackData != ""
}

// HasSender 事件是否带有可识别的发送者。
func (e Event) HasSender() bool {
	return e.UserID != ""
}

// IsCommand 文本是否为斜杠命令。
func (e Event) IsCommand() bool {
	return strings.HasPrefix(e.Text, "/")
}

// Command 返回命令名（去掉斜杠与参数），非命令时返回空字符串。
func (e Event) Command() string {
	if !e.IsCommand() {
		return ""
	}
	name := strings.TrimPrefix(e.Text, "/")
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name = name[:i]
	}
	return name
}

// CommandArgs 返回命令后的参数部分。
func (e Event) CommandArgs() string {
	if i := strings.IndexByte(e.Text, ' '); i >= 0 {
		return strings.TrimSpace(e.Text[i+1:])
	}
	return ""
}

// Button 内联键盘按钮。
type Button struct {
	Text         string
	CallbackData string
}

// Keyboard 回复附带的键盘。
//
// Inline 为消息内联按钮，Reply 为聊天底部的常驻按钮，
// 两者由传输层渲染成具体协议的标记。
type Keyboard struct {
	Inline [][]Button
	Reply  [][]string
}

// Outgoing 一条出站回复。
type Outgoing struct {
	Text     string
	Keyboard *Keyboard
}

// Transport 聊天传输层的发送能力，核心唯一依赖的出站接口。
type Transport interface {
	Send(ctx context.Context, userID string, out Outgoing) error
}

// Context 一次事件处理的上下文，随事件穿过中间件到达处理器。
type Context struct {
	Ctx   context.Context
	Event Event
	// Lang 由语言中间件填充的语言代码。
	Lang string

	transport Transport
}

// NewContext 创建事件处理上下文。
func NewContext(ctx context.Context, event Event, transport Transport) *Context {
	return &Context{
		Ctx:       ctx,
		Event:     event,
		transport: transport,
	}
}

// Reply 向事件发送者回复文本。
func (c *Context) Reply(text string) error {
	return c.transport.Send(c.Ctx, c.Event.UserID, Outgoing{Text: text})
}

// ReplyKeyboard 向事件发送者回复文本并附带键盘。
func (c *Context) ReplyKeyboard(text string, keyboard *Keyboard) error {
	return c.transport.Send(c.Ctx, c.Event.UserID, Outgoing{Text: text, Keyboard: keyboard})
}

// SendTo 向任意用户发送文本，供群发与封禁通知使用。
func (c *Context) SendTo(userID, text string) error {
	return c.transport.Send(c.Ctx, userID, Outgoing{Text: text})
}

// Handler 事件处理器。
type Handler func(c *Context) error

// Middleware 包裹处理器的中间件。
type Middleware func(next Handler) Handler
