package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote 单个标的的行情快照
// Price 为 nil 表示没有实时行情（非交易时段或未监控），这类行情不参与排行和图表
type Quote struct {
	Symbol       string
	Name         string
	StockType    string
	Price        *decimal.Decimal
	ChangePct    *decimal.Decimal
	Acceleration *decimal.Decimal
	Volume       *int64
	Timestamp    *time.Time
}

// HasPrice 是否有实时价格
func (q Quote) HasPrice() bool {
	return q.Price != nil
}

// AccelerationFloat 返回加速度的 float64 值，没有加速度时返回 nil
func (q Quote) AccelerationFloat() *float64 {
	return decimalToFloat(q.Acceleration)
}

// PriceFloat 返回价格的 float64 值
func (q Quote) PriceFloat() *float64 {
	return decimalToFloat(q.Price)
}

// ChangePctFloat 返回涨跌幅的 float64 值
func (q Quote) ChangePctFloat() *float64 {
	return decimalToFloat(q.ChangePct)
}

// IsAccelerating 加速度为正视为加速上涨
func (q Quote) IsAccelerating() bool {
	return q.Acceleration != nil && !q.Acceleration.IsNegative()
}

func decimalToFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// DecimalPtr 便捷构造 *decimal.Decimal
func DecimalPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
