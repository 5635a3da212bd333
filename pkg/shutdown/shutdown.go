// Package shutdown 优雅关闭：并发执行注册的回调，整体受 ctx 超时约束
package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/accelboard/pkg/logger"
)

// Handler 关闭回调
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	mu        sync.Mutex
	callbacks []entry
	done      bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, entry{name: name, handler: handler})
}

// Shutdown 并发执行所有回调（只执行一次），返回是否在 ctx 结束前全部完成
func (m *Manager) Shutdown(ctx context.Context) bool {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return true
	}
	m.done = true
	callbacks := append([]entry(nil), m.callbacks...)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Info("没有注册的关闭回调")
		return true
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(e entry) {
			defer wg.Done()
			if err := e.handler(ctx); err != nil {
				logger.Warnf("关闭 %s 失败: %v", e.name, err)
				return
			}
			logger.Debugf("已关闭 %s", e.name)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("所有关闭回调已完成")
		return true
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
		return false
	}
}
