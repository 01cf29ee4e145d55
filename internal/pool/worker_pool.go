package pool

import (
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 事件处理协程池。
//
// 每个入站事件在独立协程中处理，但并发总量受池大小约束，
// 防止事件风暴耗尽资源。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewWorkerPool 创建协程池。
//
// 参数:
//   - maxWorkers: 最大并发协程数
//   - queueSize: 任务队列长度，队列满时 Submit 阻塞
func NewWorkerPool(maxWorkers, queueSize int, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		logger:     logger,
	}
}

// Start 启动工作协程。
func (p *WorkerPool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit 提交任务，队列满时阻塞直到有空位。
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// Stop 停止接收新任务，排空队列并等待在途任务完成。
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

// worker 工作协程，队列关闭且排空后才退出；panic 只打日志不拖垮进程。
func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("task panicked", zap.Any("panic", r))
				}
			}()
			task()
		}()
	}
}
