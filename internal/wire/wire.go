// Package wire 对外 JSON 格式（HTTP / SSE / websocket / Redis / 持久化共用），字段统一 snake_case。
package wire

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
)

// 推送事件名
const (
	EventConnected = "connected"
	EventBoard     = "board"
	EventTrade     = "trade"
	EventNotice    = "notice"
)

type Quote struct {
	Symbol       string     `json:"symbol"`
	Name         string     `json:"name,omitempty"`
	StockType    string     `json:"stock_type,omitempty"`
	Price        *float64   `json:"price"`
	ChangePct    *float64   `json:"change_pct"`
	Acceleration *float64   `json:"acceleration"`
	Volume       *int64     `json:"volume"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

type LeaderboardEntry struct {
	Rank int `json:"rank"`
	Quote
}

type ChartLine struct {
	Name string     `json:"name"`
	Data []*float64 `json:"data"`
}

// Chart 与前端图表库的 option 结构对应：xAxis=labels, legend, series
type Chart struct {
	Labels []string    `json:"labels"`
	Legend []string    `json:"legend"`
	Series []ChartLine `json:"series"`
}

type View struct {
	Seq         uint64             `json:"seq"`
	Source      string             `json:"source,omitempty"`
	Shape       string             `json:"shape,omitempty"`
	TopN        int                `json:"top_n"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Quotes      []Quote            `json:"quotes"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Chart       Chart              `json:"chart"`
}

type Trade struct {
	Type       string    `json:"type"`
	Symbol     string    `json:"symbol"`
	Quantity   string    `json:"quantity"`
	Price      *float64  `json:"price"`
	Summary    string    `json:"summary"`
	ReceivedAt time.Time `json:"received_at"`
}

type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Event websocket 消息
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func FromQuote(q domain.Quote) Quote {
	return Quote{
		Symbol:       q.Symbol,
		Name:         q.Name,
		StockType:    q.StockType,
		Price:        q.PriceFloat(),
		ChangePct:    q.ChangePctFloat(),
		Acceleration: q.AccelerationFloat(),
		Volume:       q.Volume,
		Timestamp:    q.Timestamp,
	}
}

func ToQuote(q Quote) domain.Quote {
	return domain.Quote{
		Symbol:       q.Symbol,
		Name:         q.Name,
		StockType:    q.StockType,
		Price:        floatDecimal(q.Price),
		ChangePct:    floatDecimal(q.ChangePct),
		Acceleration: floatDecimal(q.Acceleration),
		Volume:       q.Volume,
		Timestamp:    q.Timestamp,
	}
}

func FromQuotes(quotes []domain.Quote) []Quote {
	out := make([]Quote, len(quotes))
	for i, q := range quotes {
		out[i] = FromQuote(q)
	}
	return out
}

func FromLeaderboard(entries []domain.LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntry{Rank: e.Rank, Quote: FromQuote(e.Quote)}
	}
	return out
}

func FromChart(c domain.ChartSeries) Chart {
	out := Chart{
		Labels: append([]string{}, c.Labels...),
		Legend: append([]string{}, c.Legend...),
		Series: make([]ChartLine, len(c.Lines)),
	}
	for i, l := range c.Lines {
		data := make([]*float64, len(l.Points))
		for j, p := range l.Points {
			data[j] = p.Acceleration
		}
		out.Series[i] = ChartLine{Name: l.Symbol, Data: data}
	}
	return out
}

// ToChart 反向转换；点的标签按位置取 Labels
func ToChart(c Chart) domain.ChartSeries {
	out := domain.ChartSeries{
		Labels: append([]string(nil), c.Labels...),
		Legend: append([]string(nil), c.Legend...),
		Lines:  make([]domain.ChartLine, len(c.Series)),
	}
	for i, s := range c.Series {
		points := make([]domain.ChartPoint, len(s.Data))
		for j, v := range s.Data {
			label := ""
			if j < len(c.Labels) {
				label = c.Labels[j]
			}
			points[j] = domain.ChartPoint{Label: label, Acceleration: v}
		}
		out.Lines[i] = domain.ChartLine{Symbol: s.Name, Points: points}
	}
	return out
}

func FromView(v refresh.View) View {
	return View{
		Seq:         v.Seq,
		Source:      v.Source,
		Shape:       v.Shape,
		TopN:        v.TopN,
		UpdatedAt:   v.UpdatedAt,
		Quotes:      FromQuotes(v.Quotes),
		Leaderboard: FromLeaderboard(v.Leaderboard),
		Chart:       FromChart(v.Chart),
	}
}

// ToView 用于启动预热，排行榜由 Board 重新计算
func ToView(v View) refresh.View {
	quotes := make([]domain.Quote, len(v.Quotes))
	for i, q := range v.Quotes {
		quotes[i] = ToQuote(q)
	}
	return refresh.View{
		Seq:       v.Seq,
		Source:    v.Source,
		Shape:     v.Shape,
		TopN:      v.TopN,
		UpdatedAt: v.UpdatedAt,
		Quotes:    quotes,
		Chart:     ToChart(v.Chart),
	}
}

func FromTrade(ev domain.TradeEvent) Trade {
	var price *float64
	if ev.Price != nil {
		f := ev.Price.InexactFloat64()
		price = &f
	}
	return Trade{
		Type:       string(ev.Side),
		Symbol:     ev.Symbol,
		Quantity:   ev.Quantity.String(),
		Price:      price,
		Summary:    ev.Summary(),
		ReceivedAt: ev.ReceivedAt,
	}
}

func ToTrade(t Trade) domain.TradeEvent {
	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		qty = decimal.Zero
	}
	return domain.TradeEvent{
		Side:       domain.TradeSide(t.Type),
		Symbol:     t.Symbol,
		Quantity:   qty,
		Price:      floatDecimal(t.Price),
		ReceivedAt: t.ReceivedAt,
	}
}

func FromNotice(n refresh.Notice) Notice {
	return Notice{Level: string(n.Level), Message: n.Message, At: n.At}
}

func floatDecimal(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	return domain.DecimalPtr(*f)
}
