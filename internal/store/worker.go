package store

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/accelboard/internal/metrics"
	"github.com/betbot/accelboard/pkg/logger"
)

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// worker 单 goroutine 顺序执行写入任务；队列满时丢弃，保证刷新回调不被阻塞
type worker struct {
	name    string
	timeout time.Duration
	jobs    chan job
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWorker(name string, queueSize int, timeout time.Duration) *worker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &worker{
		name:    name,
		timeout: timeout,
		jobs:    make(chan job, queueSize),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// submit 非阻塞入队；close 之后的任务直接丢弃
func (w *worker) submit(name string, fn func(ctx context.Context) error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		logger.Debugf("[%s] 写入队列已关闭，丢弃 %s", w.name, name)
		return false
	}
	select {
	case w.jobs <- job{name: name, fn: fn}:
		return true
	default:
		metrics.StoreErrors.Add(1)
		logger.Warnf("[%s] 写入队列已满，丢弃 %s", w.name, name)
		return false
	}
}

func (w *worker) loop() {
	defer close(w.done)
	for j := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := j.fn(ctx); err != nil {
			metrics.StoreErrors.Add(1)
			logger.Warnf("[%s] %s 失败: %v", w.name, j.name, err)
		}
		cancel()
	}
}

// close 停止接收并等待队列清空
func (w *worker) close(ctx context.Context) {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-ctx.Done():
		logger.Warnf("[%s] 等待写入队列清空超时", w.name)
	}
}
