package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/betbot/accelboard/internal/common"
	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
)

// Recorder 把刷新结果和成交异步写入 Store（实现 refresh.Listener / refresh.TradeListener）
type Recorder struct {
	store   Store
	gate    *common.Debouncer
	worker  *worker
	lastSeq atomic.Uint64
}

var (
	_ refresh.Listener      = (*Recorder)(nil)
	_ refresh.TradeListener = (*Recorder)(nil)
)

// NewRecorder minInterval 内的多次刷新只记录第一次
func NewRecorder(s Store, minInterval time.Duration, queueSize int) *Recorder {
	return &Recorder{
		store:  s,
		gate:   common.NewDebouncer(minInterval),
		worker: newWorker("store", queueSize, 5*time.Second),
	}
}

func (r *Recorder) OnBoard(v refresh.View) {
	// SetTopN 重新排行不产生新的刷新记录
	if v.Seq == 0 || v.Seq == r.lastSeq.Load() {
		return
	}
	at := v.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if !r.gate.TryMark(at) {
		return
	}
	r.lastSeq.Store(v.Seq)
	rec := NewRefreshRecord(v)
	r.worker.submit("保存刷新记录", func(ctx context.Context) error {
		return r.store.SaveRefresh(ctx, rec)
	})
}

func (r *Recorder) OnNotice(refresh.Notice) {}

func (r *Recorder) OnTrade(ev domain.TradeEvent) {
	rec := NewTradeRecord(ev)
	r.worker.submit("保存成交记录", func(ctx context.Context) error {
		return r.store.SaveTrade(ctx, rec)
	})
}

// Close 等待未完成的写入（不关闭 Store）
func (r *Recorder) Close(ctx context.Context) {
	r.worker.close(ctx)
}
