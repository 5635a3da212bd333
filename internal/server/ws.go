package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/betbot/accelboard/internal/marketdata"
	"github.com/betbot/accelboard/internal/wire"
	"github.com/betbot/accelboard/pkg/logger"
)

const (
	wsPingInterval = 45 * time.Second
	wsReadTimeout  = 90 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// controlMsg 客户端指令：{"action":"refresh"} / {"action":"top_n","top_n":15}
type controlMsg struct {
	Action string `json:"action"`
	TopN   any    `json:"top_n"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugf("[ws] upgrade 失败: %v", err)
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe("ws")
	defer s.hub.unsubscribe(sub)

	stop := make(chan struct{})
	defer close(stop)

	// writer
	go func() {
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case msg := <-sub.out:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg.WireJSON()); err != nil {
					_ = conn.Close()
					return
				}
			case <-ping.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			case <-s.done:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-stop:
				return
			}
		}
	}()

	s.greet(sub)

	// reader
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ctrl controlMsg
		if err := json.Unmarshal(data, &ctrl); err != nil {
			continue
		}
		switch strings.ToLower(ctrl.Action) {
		case "refresh":
			s.sched.Trigger("ws")
		case "top_n", "topn":
			s.sched.SetTopN(marketdata.TopNFrom(ctrl.TopN))
			s.SaveState()
		case "ping":
			s.send(sub, "pong", map[string]any{"at": time.Now()})
		}
	}
}

// greet 新连接先收到 connected 和当前看板
func (s *Server) greet(sub *subscriber) {
	s.send(sub, wire.EventConnected, map[string]any{"id": sub.id})
	s.send(sub, wire.EventBoard, wire.FromView(s.sched.Board().View()))
}

func (s *Server) send(sub *subscriber, event string, data any) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}
	select {
	case sub.out <- msg:
	default:
		s.hub.dropped.Add(1)
	}
}
