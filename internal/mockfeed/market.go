// Package mockfeed 本地模拟行情后端：/api/market-data 快照和 /api/events 成交推送，用于开发和联调。
package mockfeed

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/accelboard/internal/marketdata"
	"github.com/betbot/accelboard/pkg/config"
)

// stockRow 与真实后端字段一致（snake_case）
type stockRow struct {
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	StockType    string   `json:"stock_type"`
	Price        *float64 `json:"price"`
	ChangePct    *float64 `json:"change_pct"`
	Acceleration *float64 `json:"acceleration"`
	Volume       *int64   `json:"volume"`
	Timestamp    string   `json:"timestamp,omitempty"`
}

type groupRow struct {
	GroupOrder int        `json:"group_order"`
	Stocks     []stockRow `json:"stocks"`
}

type symbolState struct {
	open   decimal.Decimal
	price  decimal.Decimal
	volume int64
	halted bool
}

// Market 按固定种子做随机游走，加速度由 AccelerationCalculator 计算
type Market struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	groups []config.MockGroup
	states map[string]*symbolState
	accel  *marketdata.AccelerationCalculator
	now    func() time.Time
}

func NewMarket(cfg config.MockFeedConfig) *Market {
	groups := append([]config.MockGroup(nil), cfg.Groups...)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Order < groups[j].Order })

	m := &Market{
		rnd:    rand.New(rand.NewSource(cfg.Seed)),
		groups: groups,
		states: make(map[string]*symbolState),
		accel:  marketdata.NewAccelerationCalculator(0),
		now:    time.Now,
	}
	for _, g := range groups {
		halted := make(map[string]bool, len(g.Halted))
		for _, s := range g.Halted {
			halted[s] = true
		}
		for _, s := range g.Symbols {
			open := decimal.NewFromFloat(20 + m.rnd.Float64()*280).Round(2)
			m.states[s] = &symbolState{open: open, price: open, halted: halted[s]}
		}
	}
	return m
}

// Step 所有未停牌标的走一步
func (m *Market) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	for _, g := range m.groups {
		for _, s := range g.Symbols {
			st := m.states[s]
			if st.halted {
				continue
			}
			// 单步涨跌 [-0.5%, +0.5%]
			pct := decimal.NewFromFloat((m.rnd.Float64() - 0.5) / 100)
			st.price = st.price.Mul(decimal.NewFromInt(1).Add(pct)).Round(2)
			if st.price.LessThan(decimal.NewFromFloat(0.01)) {
				st.price = decimal.NewFromFloat(0.01)
			}
			st.volume += int64(m.rnd.Intn(5000) + 100)
			m.accel.UpdateAt(s, st.price, changePct(st), at)
		}
	}
}

func changePct(st *symbolState) decimal.Decimal {
	if st.open.IsZero() {
		return decimal.Zero
	}
	return st.price.Sub(st.open).Div(st.open).Mul(decimal.NewFromInt(100)).Round(4)
}

func (m *Market) row(symbol string) stockRow {
	st := m.states[symbol]
	row := stockRow{Symbol: symbol, Name: symbol, StockType: "US"}
	if st == nil || st.halted {
		return row
	}
	price, _ := st.price.Float64()
	cp, _ := changePct(st).Float64()
	row.Price, row.ChangePct = &price, &cp
	vol := st.volume
	row.Volume = &vol
	// 不足三个点时没有加速度
	if m.accel.HistoryLen(symbol) >= 3 {
		a, _ := m.accel.Acceleration(symbol).Float64()
		row.Acceleration = &a
	}
	row.Timestamp = m.now().Format(time.RFC3339)
	return row
}

// FlatJSON 平铺数组
func (m *Market) FlatJSON() ([]byte, error) {
	m.mu.Lock()
	rows := make([]stockRow, 0, len(m.states))
	for _, g := range m.groups {
		for _, s := range g.Symbols {
			rows = append(rows, m.row(s))
		}
	}
	m.mu.Unlock()
	return json.Marshal(rows)
}

// GroupedJSON 分组对象；键按 Order 顺序写出（encoding/json 会对 map 键排序，这里手动拼接）
func (m *Market) GroupedJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range m.groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.Name)
		if err != nil {
			return nil, err
		}
		gr := groupRow{GroupOrder: g.Order, Stocks: make([]stockRow, 0, len(g.Symbols))}
		for _, s := range g.Symbols {
			gr.Stocks = append(gr.Stocks, m.row(s))
		}
		body, err := json.Marshal(gr)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Trade 生成一笔随机成交（停牌标的不成交）
type Trade struct {
	Type     string  `json:"type"`
	Symbol   string  `json:"symbol"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

func (m *Market) RandomTrade() (Trade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var live []string
	for _, g := range m.groups {
		for _, s := range g.Symbols {
			if !m.states[s].halted {
				live = append(live, s)
			}
		}
	}
	if len(live) == 0 {
		return Trade{}, false
	}
	symbol := live[m.rnd.Intn(len(live))]
	side := "BUY"
	if m.rnd.Intn(2) == 1 {
		side = "SELL"
	}
	price, _ := m.states[symbol].price.Float64()
	return Trade{Type: side, Symbol: symbol, Quantity: (m.rnd.Intn(20) + 1) * 10, Price: price}, true
}
