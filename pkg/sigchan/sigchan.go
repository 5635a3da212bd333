// Package sigchan 非阻塞的合并信号通道
//
// 多次 Emit 在消费者处理之前只会唤醒一次，期间累计的原因通过 Drain 取出。
package sigchan

import "sync"

// maxReasons 单次合并最多保留的原因条数
const maxReasons = 32

type Chan struct {
	c chan struct{}

	mu      sync.Mutex
	reasons []string
	dropped int
}

func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号（非阻塞），reason 为空时只唤醒
func (c *Chan) Emit(reason string) {
	if reason != "" {
		c.mu.Lock()
		if len(c.reasons) < maxReasons {
			c.reasons = append(c.reasons, reason)
		} else {
			c.dropped++
		}
		c.mu.Unlock()
	}
	select {
	case c.c <- struct{}{}:
	default:
		// 已有未消费的信号，合并
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Drain 取出并清空累计的原因，dropped 为超出上限被丢弃的条数
func (c *Chan) Drain() (reasons []string, dropped int) {
	c.mu.Lock()
	reasons, dropped = c.reasons, c.dropped
	c.reasons, c.dropped = nil, 0
	c.mu.Unlock()
	return reasons, dropped
}
