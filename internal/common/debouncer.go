package common

import (
	"sync"
	"time"
)

// Debouncer 时间闸门：距离上次通过超过 interval 才放行
// interval <= 0 时总是放行
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// TryMark 可以放行时记录 now 并返回 true（判断和记录是原子的）
func (d *Debouncer) TryMark(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interval > 0 && !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return false
	}
	d.last = now
	return true
}
