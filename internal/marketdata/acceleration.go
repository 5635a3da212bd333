package marketdata

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultMaxHistory = 60

type accelSample struct {
	at        time.Time
	price     decimal.Decimal
	changePct decimal.Decimal
}

// AccelerationCalculator 涨幅加速度计算器
// 每个标的保留最近 maxHistory 条 (时间, 价格, 涨跌幅)，
// 加速度 = 最近三条涨跌幅之差 / 秒数 * 60（每分钟），保留 4 位小数
type AccelerationCalculator struct {
	mu         sync.Mutex
	history    map[string][]accelSample
	order      []string
	maxHistory int
}

// AcceleratingSymbol TopAccelerating 的结果项
type AcceleratingSymbol struct {
	Symbol       string
	Acceleration decimal.Decimal
	Price        decimal.Decimal
	ChangePct    decimal.Decimal
}

func NewAccelerationCalculator(maxHistory int) *AccelerationCalculator {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &AccelerationCalculator{
		history:    make(map[string][]accelSample),
		maxHistory: maxHistory,
	}
}

// Update 记录当前时间的价格并返回最新加速度
func (c *AccelerationCalculator) Update(symbol string, price, changePct decimal.Decimal) decimal.Decimal {
	return c.UpdateAt(symbol, price, changePct, time.Now())
}

func (c *AccelerationCalculator) UpdateAt(symbol string, price, changePct decimal.Decimal, at time.Time) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.history[symbol]
	if !ok {
		c.order = append(c.order, symbol)
	}
	h = append(h, accelSample{at: at, price: price, changePct: changePct})
	if len(h) > c.maxHistory {
		h = append([]accelSample(nil), h[len(h)-c.maxHistory:]...)
	}
	c.history[symbol] = h

	return accelerationOf(h)
}

// Acceleration 返回标的当前加速度，不足三条记录时为 0
func (c *AccelerationCalculator) Acceleration(symbol string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return accelerationOf(c.history[symbol])
}

// HistoryLen 标的已记录的条数
func (c *AccelerationCalculator) HistoryLen(symbol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history[symbol])
}

// TopAccelerating 加速度最高的 n 个标的
func (c *AccelerationCalculator) TopAccelerating(n int) []AcceleratingSymbol {
	c.mu.Lock()
	out := make([]AcceleratingSymbol, 0, len(c.order))
	for _, symbol := range c.order {
		h := c.history[symbol]
		if len(h) == 0 {
			continue
		}
		last := h[len(h)-1]
		out = append(out, AcceleratingSymbol{
			Symbol:       symbol,
			Acceleration: accelerationOf(h),
			Price:        last.price,
			ChangePct:    last.changePct,
		})
	}
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Acceleration.GreaterThan(out[j].Acceleration)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func accelerationOf(h []accelSample) decimal.Decimal {
	if len(h) < 3 {
		return decimal.Zero
	}
	recent := h[len(h)-3:]
	seconds := recent[2].at.Sub(recent[0].at).Seconds()
	if seconds <= 0 {
		return decimal.Zero
	}
	diff := recent[2].changePct.Sub(recent[0].changePct)
	return diff.Div(decimal.NewFromFloat(seconds)).Mul(decimal.NewFromInt(60)).Round(4)
}
