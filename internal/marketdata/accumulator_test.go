package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/accelboard/internal/domain"
)

// TestAppendSeries_ReplacesWholesale 连续两次不相交的标的集合，图表只保留第二次的数据
func TestAppendSeries_ReplacesWholesale(t *testing.T) {
	acc := NewAccumulator()

	acc.AppendWithLabel([]domain.Quote{
		quote("AAA", f(1), f(0.5)),
		quote("BBB", f(2), f(0.7)),
	}, "10:00:00")

	series := acc.AppendWithLabel([]domain.Quote{
		quote("CCC", f(3), f(1.2)),
		quote("DDD", f(4), nil),
		quote("EEE", nil, f(9)),
	}, "10:00:05")

	if !equalStrings(series.Legend, []string{"CCC", "DDD"}) {
		t.Fatalf("图例应该只包含第二次有价格的标的，得到 %v", series.Legend)
	}
	if !equalStrings(series.Labels, []string{"10:00:05"}) {
		t.Errorf("横轴应该只有本轮标签，得到 %v", series.Labels)
	}
	if len(series.Lines) != 2 {
		t.Fatalf("期望 2 条线，得到 %d", len(series.Lines))
	}
	for _, l := range series.Lines {
		if len(l.Points) != 1 {
			t.Errorf("%s 期望 1 个点，得到 %d", l.Symbol, len(l.Points))
		}
	}
	ccc, ok := series.Line("CCC")
	if !ok || ccc.Points[0].Acceleration == nil || *ccc.Points[0].Acceleration != 1.2 {
		t.Errorf("CCC 的加速度点错误: %+v", ccc)
	}
	ddd, _ := series.Line("DDD")
	if ddd.Points[0].Acceleration != nil {
		t.Errorf("DDD 没有加速度，点值应该为 nil")
	}
	if _, ok := series.Line("AAA"); ok {
		t.Error("上一轮的 AAA 不应该保留")
	}
}

// TestAppendSeries_NoPricedQuotesKeepsPrevious 本轮没有有价格的行情时图表不变
func TestAppendSeries_NoPricedQuotesKeepsPrevious(t *testing.T) {
	prev := AppendSeries(domain.ChartSeries{}, []domain.Quote{quote("AAA", f(1), f(0.5))}, "09:30:00")

	next := AppendSeries(prev, []domain.Quote{quote("BBB", nil, f(1))}, "09:30:05")
	if !equalStrings(next.Legend, []string{"AAA"}) || next.Labels[0] != "09:30:00" {
		t.Errorf("图表应保持不变，得到 %+v", next)
	}
}

// TestAppendSeries_DuplicateSymbols 同一标的只保留第一次出现
func TestAppendSeries_DuplicateSymbols(t *testing.T) {
	series := AppendSeries(domain.ChartSeries{}, []domain.Quote{
		quote("AAA", f(1), f(0.5)),
		quote("AAA", f(1), f(0.9)),
	}, "t")
	if len(series.Lines) != 1 || *series.Lines[0].Points[0].Acceleration != 0.5 {
		t.Errorf("重复标的处理错误: %+v", series)
	}
}

// TestAccumulator_AppendUsesClockLabel 标签使用 15:04:05 格式
func TestAccumulator_AppendUsesClockLabel(t *testing.T) {
	acc := NewAccumulator()
	at := time.Date(2024, 3, 1, 14, 5, 9, 0, time.Local)
	series := acc.Append([]domain.Quote{quote("AAA", f(1), f(0.5))}, at)
	if series.Labels[0] != "14:05:09" {
		t.Errorf("期望标签 14:05:09，得到 %s", series.Labels[0])
	}

	// 返回的是副本
	series.Legend[0] = "changed"
	if acc.Series().Legend[0] != "AAA" {
		t.Error("修改返回值不应该影响内部状态")
	}
}

// TestAccelerationCalculator 三条记录计算每分钟涨幅变化
func TestAccelerationCalculator(t *testing.T) {
	c := NewAccelerationCalculator(0)
	t0 := time.Unix(1700000000, 0)
	price := decimal.NewFromInt(100)

	if got := c.UpdateAt("AAPL", price, decimal.RequireFromString("1.0"), t0); !got.IsZero() {
		t.Errorf("单条记录加速度应该为 0，得到 %s", got)
	}
	if got := c.UpdateAt("AAPL", price, decimal.RequireFromString("1.5"), t0.Add(10*time.Second)); !got.IsZero() {
		t.Errorf("两条记录加速度应该为 0，得到 %s", got)
	}
	got := c.UpdateAt("AAPL", price, decimal.RequireFromString("2.0"), t0.Add(20*time.Second))
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("期望加速度 3，得到 %s", got)
	}

	// 时间没有推进时为 0
	c.UpdateAt("MSFT", price, decimal.NewFromInt(1), t0)
	c.UpdateAt("MSFT", price, decimal.NewFromInt(2), t0)
	if got := c.UpdateAt("MSFT", price, decimal.NewFromInt(3), t0); !got.IsZero() {
		t.Errorf("零时间差加速度应该为 0，得到 %s", got)
	}

	top := c.TopAccelerating(1)
	if len(top) != 1 || top[0].Symbol != "AAPL" {
		t.Errorf("加速度最高应该是 AAPL，得到 %+v", top)
	}
}

// TestAccelerationCalculator_HistoryCap 历史记录长度受限
func TestAccelerationCalculator_HistoryCap(t *testing.T) {
	c := NewAccelerationCalculator(5)
	t0 := time.Unix(1700000000, 0)
	for i := 0; i < 12; i++ {
		c.UpdateAt("NIO", decimal.NewFromInt(5), decimal.NewFromInt(int64(i)), t0.Add(time.Duration(i)*time.Second))
	}
	if n := c.HistoryLen("NIO"); n != 5 {
		t.Errorf("期望保留 5 条记录，得到 %d", n)
	}
	// 最近三条 9,10,11 间隔 2 秒 -> 2/2*60 = 60
	if got := c.Acceleration("NIO"); !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("期望加速度 60，得到 %s", got)
	}
}
