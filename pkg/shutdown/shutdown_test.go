package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_RunsAllOnce(t *testing.T) {
	m := NewManager()
	var calls atomic.Int32
	m.OnShutdown("a", func(ctx context.Context) error { calls.Add(1); return nil })
	m.OnShutdown("b", func(ctx context.Context) error { calls.Add(1); return errors.New("失败也算完成") })
	m.OnShutdown("nil", nil)

	if !m.Shutdown(context.Background()) {
		t.Fatal("应该在超时前完成")
	}
	if !m.Shutdown(context.Background()) {
		t.Fatal("重复调用直接返回")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("每个回调只执行一次，实际 %d 次", got)
	}
}

func TestManager_Timeout(t *testing.T) {
	m := NewManager()
	block := make(chan struct{})
	defer close(block)
	m.OnShutdown("slow", func(ctx context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if m.Shutdown(ctx) {
		t.Error("回调阻塞时应该报告超时")
	}
}
