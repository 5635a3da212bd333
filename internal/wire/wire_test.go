package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
)

func TestFromView_SnakeCaseAndNulls(t *testing.T) {
	accel := 1.5
	v := refresh.View{
		Seq:  3,
		TopN: 10,
		Quotes: []domain.Quote{
			{Symbol: "AAA", StockType: "US", Price: domain.DecimalPtr(10), ChangePct: domain.DecimalPtr(2.5), Acceleration: domain.DecimalPtr(accel)},
			{Symbol: "BBB"},
		},
		Leaderboard: []domain.LeaderboardEntry{
			{Rank: 1, Quote: domain.Quote{Symbol: "AAA", Price: domain.DecimalPtr(10), Acceleration: domain.DecimalPtr(accel)}},
		},
		Chart: domain.ChartSeries{
			Labels: []string{"09:30:00"},
			Legend: []string{"AAA"},
			Lines:  []domain.ChartLine{{Symbol: "AAA", Points: []domain.ChartPoint{{Label: "09:30:00", Acceleration: &accel}}}},
		},
	}

	b, err := json.Marshal(FromView(v))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.EqualValues(t, 10, got["top_n"])

	quotes := got["quotes"].([]any)
	first := quotes[0].(map[string]any)
	assert.Equal(t, "US", first["stock_type"])
	assert.EqualValues(t, 2.5, first["change_pct"])
	second := quotes[1].(map[string]any)
	assert.Nil(t, second["price"])
	assert.Contains(t, second, "price")

	board := got["leaderboard"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 1, board["rank"])
	assert.Equal(t, "AAA", board["symbol"])

	chart := got["chart"].(map[string]any)
	series := chart["series"].([]any)[0].(map[string]any)
	assert.Equal(t, "AAA", series["name"])
	assert.Equal(t, []any{1.5}, series["data"])
}

func TestToView_RestoresChartLabels(t *testing.T) {
	a := 0.25
	in := View{
		TopN:   5,
		Quotes: []Quote{{Symbol: "AAA", Price: &a}},
		Chart: Chart{
			Labels: []string{"10:00:00"},
			Legend: []string{"AAA"},
			Series: []ChartLine{{Name: "AAA", Data: []*float64{&a}}},
		},
	}
	out := ToView(in)
	require.Len(t, out.Quotes, 1)
	assert.Equal(t, "0.25", out.Quotes[0].Price.String())
	line, ok := out.Chart.Line("AAA")
	require.True(t, ok)
	assert.Equal(t, "10:00:00", line.Points[0].Label)
}

func TestTradeRoundTrip(t *testing.T) {
	ev := domain.TradeEvent{
		Side:       domain.TradeSideSell,
		Symbol:     "TSLA",
		Quantity:   *domain.DecimalPtr(3),
		Price:      domain.DecimalPtr(250.5),
		ReceivedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	w := FromTrade(ev)
	assert.Equal(t, "SELL", w.Type)
	assert.Equal(t, "卖出 TSLA 3股 @ $250.50", w.Summary)

	back := ToTrade(w)
	assert.Equal(t, ev.Side, back.Side)
	assert.True(t, ev.Quantity.Equal(back.Quantity))
	assert.True(t, ev.Price.Equal(*back.Price))
}
