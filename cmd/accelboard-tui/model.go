package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
)

const (
	maxNotices   = 5
	sparkPoints  = 30
	sparkSymbols = 5
)

// 条数选择框的可选值
var topNOptions = []int{5, 10, 15, 20, 30, 50}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")) // 绿色

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type (
	boardMsg  refresh.View
	noticeMsg refresh.Notice
	tradeMsg  domain.TradeEvent
	streamMsg bool
	tickMsg   time.Time
	// refreshDoneMsg 手动刷新结束（错误已经通过 notice 展示）
	refreshDoneMsg struct{ err error }
)

type model struct {
	ctx      context.Context
	sched     *refresh.Scheduler
	upstream  string
	connected func() bool

	view      refresh.View
	notices   []refresh.Notice
	streaming bool
	loading   bool
	now       time.Time
}

// connected 返回推送通道当前是否在线，每秒轮询一次
func newModel(ctx context.Context, sched *refresh.Scheduler, upstream string, connected func() bool) model {
	return model{
		ctx:       ctx,
		sched:     sched,
		upstream:  upstream,
		connected: connected,
		view:      sched.Board().View(),
		now:       time.Now(),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.sched.RefreshNow(m.ctx, "manual")
		return refreshDoneMsg{err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.refreshCmd()
		case "+", "=":
			m.view = m.sched.SetTopN(nextTopN(m.view.TopN, 1))
		case "-", "_":
			m.view = m.sched.SetTopN(nextTopN(m.view.TopN, -1))
		}
		return m, nil

	case boardMsg:
		m.view = refresh.View(msg)
		return m, nil

	case noticeMsg:
		m.notices = append(m.notices, refresh.Notice(msg))
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
		return m, nil

	case tradeMsg:
		// 成交通知由调度器以 notice 形式推送，这里只用来确认推送通道可用
		m.streaming = true
		return m, nil

	case streamMsg:
		m.streaming = bool(msg)
		return m, nil

	case refreshDoneMsg:
		m.loading = false
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.connected != nil {
			m.streaming = m.connected()
		}
		return m, tickCmd()
	}
	return m, nil
}

// nextTopN 在可选值之间切换；当前值不在列表中时取相邻的可选值
func nextTopN(current, dir int) int {
	if dir > 0 {
		for _, n := range topNOptions {
			if n > current {
				return n
			}
		}
		return topNOptions[len(topNOptions)-1]
	}
	for i := len(topNOptions) - 1; i >= 0; i-- {
		if topNOptions[i] < current {
			return topNOptions[i]
		}
	}
	return topNOptions[0]
}

func (m model) View() string {
	var s strings.Builder

	status := "推送: 未连接"
	if m.streaming {
		status = "推送: 已连接"
	}
	updated := "等待数据..."
	if !m.view.UpdatedAt.IsZero() {
		updated = fmt.Sprintf("更新于 %s (%v前)", m.view.UpdatedAt.Format("15:04:05"), m.now.Sub(m.view.UpdatedAt).Round(time.Second))
	}
	if m.loading {
		updated = "刷新中..."
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("加速度排行 Top %d | %s | %s | %s", m.view.TopN, m.upstream, status, updated)))
	s.WriteString("\n\n")

	table := renderLeaderboard(m.view.Leaderboard)
	chart := renderChart(m.view.Chart)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, table, "  ", chart))
	s.WriteString("\n")

	for _, n := range m.notices {
		line := n.At.Format("15:04:05") + " " + n.Message
		if n.Level == refresh.NoticeError {
			s.WriteString(downStyle.Render(line))
		} else {
			s.WriteString(dimStyle.Render(line))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("r 刷新 | +/- 调整条数 | q 退出"))
	return s.String()
}

func renderLeaderboard(entries []domain.LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%-4s %-10s %10s %9s %10s", "#", "代码", "价格", "涨跌幅", "加速度")))
	b.WriteString("\n")
	if len(entries) == 0 {
		b.WriteString(dimStyle.Render("暂无数据"))
	}
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		q := e.Quote
		line := fmt.Sprintf("%-4d %-10s %10s %9s %10s", e.Rank, q.Symbol,
			formatDecimal(q.Price, 2, ""), formatDecimal(q.ChangePct, 2, "%"), formatDecimal(q.Acceleration, 4, ""))
		switch {
		case q.Acceleration == nil:
			b.WriteString(dimStyle.Render(line))
		case q.Acceleration.IsNegative():
			b.WriteString(downStyle.Render(line))
		default:
			b.WriteString(upStyle.Render(line))
		}
	}
	return borderStyle.Render(b.String())
}

func renderChart(c domain.ChartSeries) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("加速度走势"))
	if len(c.Labels) > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %s ~ %s", c.Labels[0], c.Labels[len(c.Labels)-1])))
	}
	for i, line := range c.Lines {
		if i >= sparkSymbols {
			break
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%-10s %s", line.Symbol, sparkline(line.Points, sparkPoints)))
	}
	return borderStyle.Render(b.String())
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline 取最后 width 个点；缺失的点显示为空格
func sparkline(points []domain.ChartPoint, width int) string {
	if len(points) > width {
		points = points[len(points)-width:]
	}
	lo, hi, seen := 0.0, 0.0, false
	for _, p := range points {
		if p.Acceleration == nil {
			continue
		}
		v := *p.Acceleration
		if !seen || v < lo {
			lo = v
		}
		if !seen || v > hi {
			hi = v
		}
		seen = true
	}

	out := make([]rune, len(points))
	for i, p := range points {
		if p.Acceleration == nil {
			out[i] = ' '
			continue
		}
		idx := 0
		if hi > lo {
			idx = int((*p.Acceleration - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		out[i] = sparkBlocks[idx]
	}
	return string(out)
}

func formatDecimal(d *decimal.Decimal, places int32, suffix string) string {
	if d == nil {
		return "--"
	}
	return d.StringFixed(places) + suffix
}
