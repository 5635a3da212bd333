package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide 交易方向
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Valid 是否为已知方向
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Label 中文方向描述
func (s TradeSide) Label() string {
	if s == TradeSideBuy {
		return "买入"
	}
	return "卖出"
}

// TradeEvent 推送通道上的成交通知
type TradeEvent struct {
	Side       TradeSide
	Symbol     string
	Quantity   decimal.Decimal
	Price      *decimal.Decimal
	ReceivedAt time.Time
}

// Summary 通知文案，例如 "买入 AAPL 10股 @ $182.30"
func (t TradeEvent) Summary() string {
	price := "--"
	if t.Price != nil {
		price = t.Price.StringFixed(2)
	}
	return t.Side.Label() + " " + t.Symbol + " " + t.Quantity.String() + "股 @ $" + price
}
