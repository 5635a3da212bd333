package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/accelboard/internal/common"
	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/metrics"
	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/logger"
	sdkhttp "github.com/betbot/accelboard/pkg/sdk/http"
)

const (
	defaultReconnectDelay = 3 * time.Second
	maxEventSize          = 1 << 20
)

// StreamHandlers 事件回调（均可为 nil）
type StreamHandlers struct {
	OnConnected func()
	OnTrade     func(domain.TradeEvent)
}

// EventStream 后端 SSE 推送通道
// 连接出错后固定延迟重连，错误只记录日志，不向上层抛出
type EventStream struct {
	http           *sdkhttp.Client
	path           string
	token          string
	reconnectDelay time.Duration
	handlers       StreamHandlers

	loop      common.Loop
	connected atomic.Bool
	attempts  atomic.Int64
}

func NewEventStream(cfg config.UpstreamConfig, handlers StreamHandlers) *EventStream {
	path := cfg.EventsPath
	if path == "" {
		path = "/api/events"
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &EventStream{
		// 长连接不能设置整体超时，也不重试（由重连循环负责）
		http:           sdkhttp.NewClient(cfg.BaseURL, sdkhttp.Options{Token: cfg.Token}),
		path:           path,
		token:          cfg.Token,
		reconnectDelay: delay,
		handlers:       handlers,
	}
}

// Connected 当前是否处于连接状态
func (s *EventStream) Connected() bool {
	return s.connected.Load()
}

// Attempts 累计连接次数（含首次）
func (s *EventStream) Attempts() int64 {
	return s.attempts.Load()
}

// Start 在后台运行重连循环（只生效一次）
func (s *EventStream) Start(ctx context.Context) {
	s.loop.Start(ctx, 0, func(loopCtx context.Context, _ <-chan time.Time) {
		s.Run(loopCtx)
	})
}

// Stop 停止后台循环并等待退出
func (s *EventStream) Stop() {
	if !s.loop.Stop(5 * time.Second) {
		logger.Warnf("[SSE] 关闭超时")
	}
}

// Run 阻塞运行，直到 ctx 结束
func (s *EventStream) Run(ctx context.Context) {
	for {
		err := s.runOnce(ctx)
		s.connected.Store(false)
		if ctx.Err() != nil {
			logger.Infof("[SSE] 已停止")
			return
		}

		metrics.StreamReconnects.Add(1)
		logger.Warnf("[SSE] 连接断开，%v 后重连: %v", s.reconnectDelay, err)

		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("[SSE] 已停止")
			return
		case <-timer.C:
		}
	}
}

func (s *EventStream) runOnce(ctx context.Context) error {
	s.attempts.Add(1)

	var params map[string]any
	if s.token != "" {
		params = map[string]any{"token": s.token}
	}
	resp, err := s.http.DoRequest(ctx, http.MethodGet, s.path, &sdkhttp.RequestOptions{
		Headers: map[string]string{
			"Accept":        "text/event-stream",
			"Cache-Control": "no-cache",
		},
		Params: params,
		Stream: true,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "连接事件流失败")
	}
	body := resp.RawBody()
	if body == nil {
		return errors.New("事件流响应体为空")
	}
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return errors.Errorf("事件流返回 http %d", resp.StatusCode())
	}

	s.connected.Store(true)
	logger.Debugf("[SSE] 已建立连接: %s", s.path)
	return s.readEvents(body)
}

// readEvents 按 SSE 格式读取：event:/data: 行，空行结束一个事件，冒号开头为注释
func (s *EventStream) readEvents(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var (
		name string
		data []string
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if len(data) > 0 || name != "" {
				s.dispatch(name, strings.Join(data, "\n"))
			}
			name, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "读取事件流失败")
	}
	return io.EOF
}

func (s *EventStream) dispatch(name, data string) {
	switch name {
	case "connected":
		s.onConnected()
	case "trade":
		s.onTradePayload([]byte(data))
	case "", "message":
		// {"type": "trade", "data": {...}} / {"type": "heartbeat"}
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			logger.Debugf("[SSE] 忽略无法解析的消息: %s", data)
			return
		}
		switch strings.ToLower(msg.Type) {
		case "heartbeat":
		case "connected":
			s.onConnected()
		case "trade":
			payload := []byte(msg.Data)
			if len(payload) == 0 {
				payload = []byte(data)
			}
			s.onTradePayload(payload)
		default:
			logger.Debugf("[SSE] 忽略消息类型 %q", msg.Type)
		}
	default:
		logger.Debugf("[SSE] 忽略事件 %q", name)
	}
}

func (s *EventStream) onConnected() {
	logger.Infof("[SSE] 已连接")
	if s.handlers.OnConnected != nil {
		s.handlers.OnConnected()
	}
}

func (s *EventStream) onTradePayload(payload []byte) {
	ev, err := ParseTradeEvent(payload)
	if err != nil {
		logger.Warnf("[SSE] 成交事件解析失败: %v", err)
		return
	}
	metrics.TradeEvents.Add(1)
	logger.WithFields(map[string]interface{}{
		"symbol": ev.Symbol,
		"side":   ev.Side,
	}).Infof("[SSE] 收到交易事件: %s", ev.Summary())
	if s.handlers.OnTrade != nil {
		s.handlers.OnTrade(ev)
	}
}

// ParseTradeEvent 解析 {type: BUY|SELL, symbol, quantity, price}
func ParseTradeEvent(payload []byte) (domain.TradeEvent, error) {
	var p struct {
		Type     string       `json:"type"`
		Side     string       `json:"side"`
		Symbol   string       `json:"symbol"`
		Quantity json.Number  `json:"quantity"`
		Price    *json.Number `json:"price"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.TradeEvent{}, errors.Wrap(err, "成交事件不是合法 JSON")
	}

	side := domain.TradeSide(strings.ToUpper(strings.TrimSpace(p.Type)))
	if !side.Valid() {
		side = domain.TradeSide(strings.ToUpper(strings.TrimSpace(p.Side)))
	}
	if !side.Valid() {
		return domain.TradeEvent{}, errors.Errorf("未知的交易方向: %q", p.Type)
	}
	symbol := strings.TrimSpace(p.Symbol)
	if symbol == "" {
		return domain.TradeEvent{}, errors.New("成交事件缺少 symbol")
	}

	ev := domain.TradeEvent{
		Side:       side,
		Symbol:     symbol,
		Quantity:   decimal.Zero,
		ReceivedAt: time.Now(),
	}
	if p.Quantity != "" {
		q, err := decimal.NewFromString(p.Quantity.String())
		if err != nil {
			return domain.TradeEvent{}, errors.Wrap(err, "成交数量格式错误")
		}
		ev.Quantity = q
	}
	if p.Price != nil && *p.Price != "" {
		if price, err := decimal.NewFromString(p.Price.String()); err == nil {
			ev.Price = &price
		}
	}
	return ev, nil
}
