package marketdata

import (
	"sync"
	"time"

	"github.com/betbot/accelboard/internal/domain"
)

// ChartLabelLayout 图表横轴时间标签格式
const ChartLabelLayout = "15:04:05"

// AppendSeries 用本轮行情整体替换图表数据
//
// 图例和线条只包含本轮有价格的标的（按归一化顺序，同一标的只取第一次出现），
// 每条线只有一个点 (label, acceleration)，横轴只有 label。
// 这是"快照图"而不是累积的时间序列；本轮没有任何有价格的行情时保持 prev 不变。
func AppendSeries(prev domain.ChartSeries, quotes []domain.Quote, label string) domain.ChartSeries {
	seen := make(map[string]struct{}, len(quotes))
	legend := make([]string, 0, len(quotes))
	lines := make([]domain.ChartLine, 0, len(quotes))

	for _, q := range quotes {
		if !q.HasPrice() {
			continue
		}
		if _, dup := seen[q.Symbol]; dup {
			continue
		}
		seen[q.Symbol] = struct{}{}
		legend = append(legend, q.Symbol)
		lines = append(lines, domain.ChartLine{
			Symbol: q.Symbol,
			Points: []domain.ChartPoint{{Label: label, Acceleration: q.AccelerationFloat()}},
		})
	}

	if len(lines) == 0 {
		return prev
	}
	return domain.ChartSeries{
		Labels: []string{label},
		Legend: legend,
		Lines:  lines,
	}
}

// Accumulator 持有当前图表数据，只由刷新流程写入
type Accumulator struct {
	mu     sync.RWMutex
	series domain.ChartSeries
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append 以 at 的本地时间作为标签替换图表数据
func (a *Accumulator) Append(quotes []domain.Quote, at time.Time) domain.ChartSeries {
	return a.AppendWithLabel(quotes, at.Format(ChartLabelLayout))
}

func (a *Accumulator) AppendWithLabel(quotes []domain.Quote, label string) domain.ChartSeries {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.series = AppendSeries(a.series, quotes, label)
	return cloneSeries(a.series)
}

// Series 返回当前图表数据的副本
func (a *Accumulator) Series() domain.ChartSeries {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneSeries(a.series)
}

// Restore 用持久化的数据恢复图表（启动预热）
func (a *Accumulator) Restore(series domain.ChartSeries) {
	a.mu.Lock()
	a.series = cloneSeries(series)
	a.mu.Unlock()
}

func cloneSeries(s domain.ChartSeries) domain.ChartSeries {
	out := domain.ChartSeries{
		Labels: append([]string(nil), s.Labels...),
		Legend: append([]string(nil), s.Legend...),
		Lines:  make([]domain.ChartLine, len(s.Lines)),
	}
	for i, l := range s.Lines {
		out.Lines[i] = domain.ChartLine{
			Symbol: l.Symbol,
			Points: append([]domain.ChartPoint(nil), l.Points...),
		}
	}
	return out
}
