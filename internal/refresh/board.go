// Package refresh 驱动行情刷新：定时轮询 + 推送触发，结果写入 Board 并通知监听者。
package refresh

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/marketdata"
)

var (
	// ErrStaleResponse 响应的序号不比已应用的新，被丢弃
	ErrStaleResponse = errors.New("过期的行情响应")
	// ErrRefreshInProgress 串行模式下已有刷新在进行
	ErrRefreshInProgress = errors.New("刷新进行中")
)

// View Board 的只读快照
type View struct {
	Seq         uint64
	Source      string
	Shape       string
	Quotes      []domain.Quote
	Leaderboard []domain.LeaderboardEntry
	Chart       domain.ChartSeries
	TopN        int
	UpdatedAt   time.Time
}

// Update 一次刷新得到的数据
type Update struct {
	Seq    uint64
	Source string
	Shape  string
	Quotes []domain.Quote
	At     time.Time
}

// Board 当前展示状态，只有 Scheduler 写入（SetTopN 除外）
type Board struct {
	mu          sync.RWMutex
	quotes      []domain.Quote
	leaderboard []domain.LeaderboardEntry
	acc         *marketdata.Accumulator
	topN        int
	maxTopN     int
	lastSeq     uint64
	shape       string
	source      string
	updatedAt   time.Time
}

func NewBoard(topN, maxTopN int) *Board {
	return &Board{
		acc:         marketdata.NewAccumulator(),
		topN:        marketdata.ClampTopN(topN, maxTopN),
		maxTopN:     maxTopN,
		quotes:      []domain.Quote{},
		leaderboard: []domain.LeaderboardEntry{},
	}
}

// Apply 应用一次刷新结果；seq 不大于上次应用的序号时返回 ErrStaleResponse
func (b *Board) Apply(u Update) (View, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u.Seq <= b.lastSeq {
		return b.viewLocked(), ErrStaleResponse
	}
	quotes := u.Quotes
	if quotes == nil {
		quotes = []domain.Quote{}
	}
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}

	b.quotes = quotes
	b.leaderboard = marketdata.Rank(quotes, b.topN)
	b.acc.Append(quotes, at)
	b.lastSeq = u.Seq
	b.shape = u.Shape
	b.source = u.Source
	b.updatedAt = at
	return b.viewLocked(), nil
}

// SetTopN 修改条数并用当前行情重新排行（不重新拉取）
func (b *Board) SetTopN(n int) View {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topN = marketdata.ClampTopN(n, b.maxTopN)
	b.leaderboard = marketdata.Rank(b.quotes, b.topN)
	return b.viewLocked()
}

func (b *Board) TopN() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.topN
}

func (b *Board) MaxTopN() int {
	return b.maxTopN
}

func (b *Board) LastSeq() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeq
}

func (b *Board) View() View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.viewLocked()
}

// Restore 启动预热：恢复上次退出时的行情和图表，序号保持为 0，任何新刷新都会覆盖
func (b *Board) Restore(v View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v.TopN > 0 {
		b.topN = marketdata.ClampTopN(v.TopN, b.maxTopN)
	}
	b.quotes = append([]domain.Quote{}, v.Quotes...)
	b.leaderboard = marketdata.Rank(b.quotes, b.topN)
	b.acc.Restore(v.Chart)
	b.shape = v.Shape
	b.source = "restore"
	b.updatedAt = v.UpdatedAt
}

func (b *Board) viewLocked() View {
	return View{
		Seq:         b.lastSeq,
		Source:      b.source,
		Shape:       b.shape,
		Quotes:      append([]domain.Quote{}, b.quotes...),
		Leaderboard: append([]domain.LeaderboardEntry{}, b.leaderboard...),
		Chart:       b.acc.Series(),
		TopN:        b.topN,
		UpdatedAt:   b.updatedAt,
	}
}
