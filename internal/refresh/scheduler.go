package refresh

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/accelboard/internal/common"
	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/marketdata"
	"github.com/betbot/accelboard/internal/metrics"
	"github.com/betbot/accelboard/internal/upstream"
	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/logger"
	"github.com/betbot/accelboard/pkg/sigchan"
)

// Fetcher 行情数据来源（upstream.Client 实现）
type Fetcher interface {
	FetchMarketData(ctx context.Context) (any, error)
}

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice 展示给用户的通知
type Notice struct {
	Level   NoticeLevel
	Message string
	At      time.Time
}

// Listener 刷新结果监听者，回调在刷新 goroutine 中同步执行，不能阻塞
type Listener interface {
	OnBoard(View)
	OnNotice(Notice)
}

// TradeListener 可选：同时关心推送通道上的成交事件
type TradeListener interface {
	OnTrade(domain.TradeEvent)
}

// State 调度器状态
type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Scheduler 单消费者刷新循环：定时器和 Trigger 都汇入同一个 goroutine；
// RefreshNow 供 HTTP/TUI 同步调用。
type Scheduler struct {
	fetcher   Fetcher
	board     *Board
	interval  time.Duration
	serialize bool
	now       func() time.Time

	seq     atomic.Uint64
	trigger *sigchan.Chan
	loop    common.Loop

	// inFlight 和 rerun 必须在同一把锁下读写，否则补刷请求可能丢失
	flightMu sync.Mutex
	inFlight bool
	rerun    bool

	mu        sync.RWMutex
	listeners []Listener
}

func NewScheduler(fetcher Fetcher, board *Board, cfg config.RefreshConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		fetcher:   fetcher,
		board:     board,
		interval:  interval,
		serialize: cfg.Serialize,
		now:       time.Now,
		trigger:   sigchan.New(1),
	}
}

// SetClock 替换时间源（测试用）
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Scheduler) Board() *Board { return s.board }

func (s *Scheduler) State() State {
	if s.loop.Running() {
		return StatePolling
	}
	return StateIdle
}

func (s *Scheduler) AddListener(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Start 启动轮询：立即刷新一次，之后按间隔刷新
func (s *Scheduler) Start(ctx context.Context) {
	if s.loop.Start(ctx, s.interval, s.run) {
		logger.Infof("[refresh] 开始轮询，间隔 %v，串行=%v", s.interval, s.serialize)
	}
}

// Stop 停止轮询并等待循环退出
func (s *Scheduler) Stop() {
	if !s.loop.Stop(5 * time.Second) {
		logger.Warnf("[refresh] 停止超时")
	}
}

// Trigger 请求一次刷新（非阻塞，多次请求会合并）
func (s *Scheduler) Trigger(reason string) {
	s.trigger.Emit(reason)
}

// HandleTrade 推送通道收到成交：转发给监听者并立即刷新
func (s *Scheduler) HandleTrade(ev domain.TradeEvent) {
	for _, l := range s.snapshotListeners() {
		if tl, ok := l.(TradeListener); ok {
			tl.OnTrade(ev)
		}
		l.OnNotice(Notice{Level: NoticeInfo, Message: ev.Summary(), At: s.now()})
	}
	s.Trigger("trade:" + ev.Symbol)
}

// RefreshNow 同步执行一次刷新
//   - 串行模式下已有刷新在进行：ErrRefreshInProgress
//   - 响应返回时已有更新的刷新被应用：ErrStaleResponse
//   - 拉取失败：原始错误（同时通知监听者）
func (s *Scheduler) RefreshNow(ctx context.Context, source string) (View, error) {
	return s.refresh(ctx, source, false)
}

// refresh pushed 为 true 时，被串行保护跳过的请求会在当前刷新结束后补一次
func (s *Scheduler) refresh(ctx context.Context, source string, pushed bool) (View, error) {
	if s.serialize {
		if !s.beginInFlight(pushed) {
			metrics.RefreshSkipped.Add(1)
			return s.board.View(), ErrRefreshInProgress
		}
		defer s.finishInFlight()
	}

	seq := s.seq.Add(1)
	metrics.RefreshRuns.Add(1)

	raw, err := s.fetcher.FetchMarketData(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.board.View(), errors.Wrap(ctx.Err(), "刷新已取消")
		}
		if seq <= s.board.LastSeq() {
			metrics.RefreshStale.Add(1)
			logger.Debugf("[refresh] 丢弃过期的失败响应 seq=%d: %v", seq, err)
			return s.board.View(), ErrStaleResponse
		}
		metrics.RefreshErrors.Add(1)
		logger.Warnf("[refresh] 刷新失败 (source=%s seq=%d): %v", source, seq, err)
		s.notifyNotice(Notice{Level: NoticeError, Message: upstream.NoticeText(err), At: s.now()})
		return s.board.View(), err
	}

	snap := marketdata.ParseSnapshot(raw)
	view, err := s.board.Apply(Update{
		Seq:    seq,
		Source: source,
		Shape:  snap.Shape(),
		Quotes: snap.Quotes(),
		At:     s.now(),
	})
	if errors.Is(err, ErrStaleResponse) {
		metrics.RefreshStale.Add(1)
		logger.Debugf("[refresh] 丢弃过期响应 seq=%d (已应用 %d)", seq, view.Seq)
		return view, err
	}

	logger.Debugf("[refresh] 已刷新 source=%s seq=%d shape=%s quotes=%d leaderboard=%d",
		source, seq, view.Shape, len(view.Quotes), len(view.Leaderboard))
	s.notifyBoard(view)
	return view, nil
}

// SetTopN 修改条数并通知监听者
func (s *Scheduler) SetTopN(n int) View {
	view := s.board.SetTopN(n)
	s.notifyBoard(view)
	return view
}

func (s *Scheduler) beginInFlight(pushed bool) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inFlight {
		if pushed {
			s.rerun = true
		}
		return false
	}
	s.inFlight = true
	return true
}

func (s *Scheduler) finishInFlight() {
	s.flightMu.Lock()
	s.inFlight = false
	rerun := s.rerun
	s.rerun = false
	s.flightMu.Unlock()

	// 进行中被跳过的推送触发，在结束后补一次
	if rerun {
		s.trigger.Emit("rerun")
	}
}

func (s *Scheduler) run(ctx context.Context, tickC <-chan time.Time) {
	s.runScheduled(ctx, "startup", false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tickC:
			s.runScheduled(ctx, "timer", false)
		case <-s.trigger.C():
			reasons, dropped := s.trigger.Drain()
			if dropped > 0 {
				logger.Debugf("[refresh] 合并触发 %d 条（另有 %d 条被丢弃）", len(reasons), dropped)
			}
			source := "trigger"
			if len(reasons) > 0 {
				source = strings.Join(reasons, ",")
			}
			s.runScheduled(ctx, source, true)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, source string, pushed bool) {
	_, err := s.refresh(ctx, source, pushed)
	if errors.Is(err, ErrRefreshInProgress) {
		logger.Debugf("[refresh] 跳过 %s：已有刷新在进行", source)
	}
}

func (s *Scheduler) snapshotListeners() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Listener(nil), s.listeners...)
}

func (s *Scheduler) notifyBoard(v View) {
	for _, l := range s.snapshotListeners() {
		l.OnBoard(v)
	}
}

func (s *Scheduler) notifyNotice(n Notice) {
	for _, l := range s.snapshotListeners() {
		l.OnNotice(n)
	}
}
