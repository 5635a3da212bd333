package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/metrics"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/wire"
	"github.com/betbot/accelboard/pkg/logger"
)

var (
	_ refresh.Listener      = (*Hub)(nil)
	_ refresh.TradeListener = (*Hub)(nil)
)

// message 已序列化好的推送事件，SSE 和 websocket 共用
type message struct {
	Event string
	Data  json.RawMessage
}

// WireJSON websocket 帧：{"event": ..., "data": ...}
func (m message) WireJSON() []byte {
	b, _ := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{m.Event, m.Data})
	return b
}

type subscriber struct {
	id   string
	kind string
	out  chan message
}

// Hub 把刷新结果、通知和成交广播给所有 SSE / websocket 客户端
// 客户端缓冲满时丢弃消息，不阻塞刷新流程
type Hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	bufSize int
	dropped atomic.Int64
}

func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		bufSize: bufSize,
	}
}

func (h *Hub) subscribe(kind string) *subscriber {
	s := &subscriber{id: uuid.NewString(), kind: kind, out: make(chan message, h.bufSize)}
	h.mu.Lock()
	h.clients[s] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.HubClients.Add(1)
	logger.Debugf("[hub] %s 客户端 %s 已连接，当前 %d 个", kind, s.id, n)
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	_, ok := h.clients[s]
	delete(h.clients, s)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.HubClients.Add(-1)
		logger.Debugf("[hub] %s 客户端 %s 已断开，当前 %d 个", s.kind, s.id, n)
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped 因客户端缓冲满而丢弃的消息数
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func encode(event string, data any) (message, bool) {
	b, err := json.Marshal(data)
	if err != nil {
		logger.Warnf("[hub] 序列化 %s 事件失败: %v", event, err)
		return message{}, false
	}
	return message{Event: event, Data: b}, true
}

// Broadcast 广播事件
func (h *Hub) Broadcast(event string, data any) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.clients {
		select {
		case s.out <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) OnBoard(v refresh.View) {
	h.Broadcast(wire.EventBoard, wire.FromView(v))
}

func (h *Hub) OnNotice(n refresh.Notice) {
	h.Broadcast(wire.EventNotice, wire.FromNotice(n))
}

func (h *Hub) OnTrade(ev domain.TradeEvent) {
	h.Broadcast(wire.EventTrade, wire.FromTrade(ev))
}
