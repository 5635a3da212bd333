package domain

// LeaderboardEntry 加速度排行榜中的一项，Rank 从 1 开始
type LeaderboardEntry struct {
	Rank  int
	Quote Quote
}

// ChartPoint 图表上的一个采样点
type ChartPoint struct {
	Label        string
	Acceleration *float64
}

// ChartLine 单个标的的一条线
type ChartLine struct {
	Symbol string
	Points []ChartPoint
}

// ChartSeries 加速度图表（图例 + 横轴 + 每个标的一条线）
type ChartSeries struct {
	Labels []string
	Legend []string
	Lines  []ChartLine
}

// Line 按标的查找对应的线
func (c ChartSeries) Line(symbol string) (ChartLine, bool) {
	for _, l := range c.Lines {
		if l.Symbol == symbol {
			return l, true
		}
	}
	return ChartLine{}, false
}
