// Package syncgroup 管理一组长期运行的 goroutine
package syncgroup

import (
	"sync"

	"github.com/betbot/accelboard/pkg/logger"
)

type task struct {
	name string
	fn   func()
}

// SyncGroup sync.WaitGroup 的包装：先 Add 再 Run，Wait 等待全部退出
// goroutine 中的 panic 会被记录而不是让进程崩溃
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []task
	running int
}

func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 登记一个 goroutine，下一次 Run 时启动
func (g *SyncGroup) Add(name string, fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.pending = append(g.pending, task{name: name, fn: fn})
	g.mu.Unlock()
}

// Run 启动所有已登记的 goroutine，可以多次调用（每次只启动新登记的）
func (g *SyncGroup) Run() {
	g.mu.Lock()
	tasks := g.pending
	g.pending = nil
	g.running += len(tasks)
	g.mu.Unlock()

	for _, t := range tasks {
		g.wg.Add(1)
		go func(t task) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("goroutine %s panic: %v", t.name, r)
				}
				g.mu.Lock()
				g.running--
				g.mu.Unlock()
				g.wg.Done()
			}()
			t.fn()
		}(t)
	}
}

// Running 当前运行中的 goroutine 数量
func (g *SyncGroup) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Wait 等待所有已启动的 goroutine 退出
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}
