// Package common 放置各组件共用的小工具：单 goroutine 循环、时间闸门
package common

import (
	"context"
	"sync"
	"time"
)

// LoopFunc 循环体；tickC 在 tick <= 0 时为 nil（永不触发）
type LoopFunc func(loopCtx context.Context, tickC <-chan time.Time)

// Loop 只启动一次的后台循环
//
//	var l common.Loop
//	l.Start(ctx, 5*time.Second, s.loop)
//	defer l.Stop(2 * time.Second)
type Loop struct {
	once   sync.Once
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start 启动循环，重复调用只有第一次生效，返回本次是否真正启动
func (l *Loop) Start(parent context.Context, tick time.Duration, run LoopFunc) bool {
	started := false
	l.once.Do(func() {
		loopCtx, cancel := context.WithCancel(parent)
		done := make(chan struct{})

		l.mu.Lock()
		l.cancel = cancel
		l.done = done
		l.mu.Unlock()

		go func() {
			defer close(done)
			runWithTicker(loopCtx, tick, run)
		}()
		started = true
	})
	return started
}

// Running 循环是否仍在运行
func (l *Loop) Running() bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Stop 取消循环并等待退出；超时返回 false
func (l *Loop) Stop(timeout time.Duration) bool {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return true
	}
	cancel()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func runWithTicker(loopCtx context.Context, tick time.Duration, run LoopFunc) {
	var tickC <-chan time.Time
	if tick > 0 {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		tickC = ticker.C
	}
	run(loopCtx, tickC)
}
