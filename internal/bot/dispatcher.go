package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/pool"
)

// Dispatcher 把入站事件路由到处理器。
//
// 路由优先级：回调前缀 → 斜杠命令 → 按钮文本 → 兜底处理器。
// 每个事件先穿过中间件链（注册顺序即执行顺序），再在协程池
// 中执行，处理器之间没有跨用户的串行化。
type Dispatcher struct {
	logger    *zap.Logger
	transport Transport
	metrics   *monitoring.Metrics
	workers   *pool.WorkerPool

	middlewares []Middleware
	commands    map[string]Handler
	buttons     map[string]Handler
	callbacks   []callbackRoute
	fallback    Handler
}

type callbackRoute struct {
	prefix  string
	handler Handler
}

// NewDispatcher 创建事件分发器。
func NewDispatcher(transport Transport, logger *zap.Logger, metrics *monitoring.Metrics, workers, queueSize int) *Dispatcher {
	return &Dispatcher{
		logger:    logger,
		transport: transport,
		metrics:   metrics,
		workers:   pool.NewWorkerPool(workers, queueSize, logger),
		commands:  make(map[string]Handler),
		buttons:   make(map[string]Handler),
	}
}

// Use 追加中间件，注册顺序即执行顺序。
func (d *Dispatcher) Use(mw ...Middleware) {
	d.middlewares = append(d.middlewares, mw...)
}

// Command 注册斜杠命令处理器，名称不含斜杠。
func (d *Dispatcher) Command(name string, h Handler) {
	d.commands[name] = h
}

// Button 注册按钮文本处理器，同一处理器可挂多个语言的标签。
func (d *Dispatcher) Button(h Handler, labels ...string) {
	for _, label := range labels {
		d.buttons[label] = h
	}
}

// Callback 注册回调处理器，按前缀匹配。
func (d *Dispatcher) Callback(prefix string, h Handler) {
	d.callbacks = append(d.callbacks, callbackRoute{prefix: prefix, handler: h})
}

// Fallback 注册兜底处理器，接收所有未匹配的文本事件。
func (d *Dispatcher) Fallback(h Handler) {
	d.fallback = h
}

// Start 启动协程池。
func (d *Dispatcher) Start() {
	d.workers.Start()
}

// Stop 排空队列并等待在途事件处理完毕。
func (d *Dispatcher) Stop() {
	d.workers.Stop()
}

// Dispatch 把事件提交到协程池异步处理。
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	d.workers.Submit(func() {
		d.handle(ctx, event)
	})
}

// handle 同步处理一个事件：套上中间件链后路由到处理器。
func (d *Dispatcher) handle(ctx context.Context, event Event) {
	eventType := "message"
	if event.IsCallback() {
		eventType = "callback"
	}
	d.metrics.EventsTotal.WithLabelValues(eventType).Inc()

	handler := d.route
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		handler = d.middlewares[i](handler)
	}

	c := NewContext(ctx, event, d.transport)
	if err := handler(c); err != nil {
		d.logger.Error("event handling failed",
			zap.String("user_id", event.UserID),
			zap.String("type", eventType),
			zap.Error(err))
	}
}

// route 中间件链尽头的路由处理器。
func (d *Dispatcher) route(c *Context) error {
	event := c.Event

	if event.IsCallback() {
		for _, r := range d.callbacks {
			if strings.HasPrefix(event.CallbackData, r.prefix) {
				return r.handler(c)
			}
		}
		d.logger.Warn("unmatched callback",
			zap.String("user_id", event.UserID),
			zap.String("data", event.CallbackData))
		return nil
	}

	if name := event.Command(); name != "" {
		if h, ok := d.commands[name]; ok {
			return h(c)
		}
	}

	if h, ok := d.buttons[event.Text]; ok {
		return h(c)
	}

	if d.fallback != nil && !event.IsCommand() {
		return d.fallback(c)
	}

	return nil
}
