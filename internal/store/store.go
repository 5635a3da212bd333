// Package store 保存刷新历史和成交记录（sqlite / badger），并可选地发布到 Redis。
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/wire"
	"github.com/betbot/accelboard/pkg/config"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RefreshRecord 一次已应用刷新的摘要（只保留排行榜）
type RefreshRecord struct {
	ID          string                  `json:"id"`
	Seq         uint64                  `json:"seq"`
	Source      string                  `json:"source"`
	Shape       string                  `json:"shape"`
	QuoteCount  int                     `json:"quote_count"`
	TopN        int                     `json:"top_n"`
	Leaderboard []wire.LeaderboardEntry `json:"leaderboard"`
	RecordedAt  time.Time               `json:"recorded_at"`
}

// TradeRecord 推送通道收到的成交
type TradeRecord struct {
	ID string `json:"id"`
	wire.Trade
}

// Store 历史存储
type Store interface {
	SaveRefresh(ctx context.Context, rec RefreshRecord) error
	SaveTrade(ctx context.Context, rec TradeRecord) error
	// RecentRefreshes 最新的在前
	RecentRefreshes(ctx context.Context, limit int) ([]RefreshRecord, error)
	// RecentTrades 最新的在前
	RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
	Close() error
}

// Open 按配置打开存储；driver 为 none 或空时返回不落盘的 Nop
func Open(cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "badger":
		return OpenBadger(cfg.Path)
	case "", "none":
		return Nop{}, nil
	default:
		return nil, errors.Errorf("未知的存储类型: %s", cfg.Driver)
	}
}

// NewRefreshRecord 从 View 生成记录
func NewRefreshRecord(v refresh.View) RefreshRecord {
	at := v.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return RefreshRecord{
		ID:          uuid.NewString(),
		Seq:         v.Seq,
		Source:      v.Source,
		Shape:       v.Shape,
		QuoteCount:  len(v.Quotes),
		TopN:        v.TopN,
		Leaderboard: wire.FromLeaderboard(v.Leaderboard),
		RecordedAt:  at,
	}
}

func NewTradeRecord(ev domain.TradeEvent) TradeRecord {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	return TradeRecord{ID: uuid.NewString(), Trade: wire.FromTrade(ev)}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Nop 不保存任何数据
type Nop struct{}

func (Nop) SaveRefresh(context.Context, RefreshRecord) error { return nil }
func (Nop) SaveTrade(context.Context, TradeRecord) error     { return nil }
func (Nop) RecentRefreshes(context.Context, int) ([]RefreshRecord, error) {
	return []RefreshRecord{}, nil
}
func (Nop) RecentTrades(context.Context, int) ([]TradeRecord, error) {
	return []TradeRecord{}, nil
}
func (Nop) Close() error { return nil }
