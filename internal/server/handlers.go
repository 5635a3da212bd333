package server

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/marketdata"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/upstream"
	"github.com/betbot/accelboard/internal/wire"
	"github.com/betbot/accelboard/pkg/logger"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	streaming := false
	if s.streamConnected != nil {
		streaming = s.streamConnected()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"state":        s.sched.State().String(),
		"seq":          s.sched.Board().LastSeq(),
		"stream":       streaming,
		"clients":      s.hub.Clients(),
		"hub_dropped":  s.hub.Dropped(),
		"rate_buckets": s.limiter.Size(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.FromView(s.sched.Board().View()))
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	v := s.sched.Board().View()
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":        v.Seq,
		"shape":      v.Shape,
		"updated_at": v.UpdatedAt,
		"quotes":     wire.FromQuotes(v.Quotes),
	})
}

// handleLeaderboard ?topN= 只影响本次返回，不修改服务端设置
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board := s.sched.Board()
	v := board.View()

	raw := r.URL.Query().Get("topN")
	if raw == "" {
		raw = r.URL.Query().Get("top_n")
	}
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"seq":         v.Seq,
			"top_n":       v.TopN,
			"leaderboard": wire.FromLeaderboard(v.Leaderboard),
		})
		return
	}

	topN := marketdata.ClampTopN(marketdata.ParseTopN(raw), board.MaxTopN())
	entries, _ := s.boards.GetOrLoad(leaderboardKey{seq: v.Seq, topN: topN}, func() ([]domain.LeaderboardEntry, error) {
		return marketdata.Rank(v.Quotes, topN), nil
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":         v.Seq,
		"top_n":       topN,
		"leaderboard": wire.FromLeaderboard(entries),
	})
}

// handleSetTopN 请求体 {"topN": 15} 或 {"topN": "15条"}，无法解析时回退默认值
func (s *Server) handleSetTopN(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求格式错误")
		return
	}
	value, ok := req["topN"]
	if !ok {
		value = req["top_n"]
	}

	view := s.sched.SetTopN(marketdata.TopNFrom(value))
	s.SaveState()
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":         view.Seq,
		"top_n":       view.TopN,
		"leaderboard": wire.FromLeaderboard(view.Leaderboard),
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.FromChart(s.sched.Board().View().Chart))
}

// handleRefresh 手动刷新：按客户端 IP 限流
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	lim := s.limiter.Get(clientIP(r))
	if !lim.Allow() {
		retry := int(math.Ceil(lim.RetryAfter().Seconds()))
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusTooManyRequests, "刷新过于频繁，请稍后再试")
		return
	}

	view, err := s.sched.RefreshNow(r.Context(), "manual")
	switch {
	case err == nil, errors.Is(err, refresh.ErrStaleResponse):
		writeJSON(w, http.StatusOK, wire.FromView(view))
	case errors.Is(err, refresh.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, "刷新进行中")
	case upstream.IsTransport(err) || upstream.IsAPI(err):
		writeError(w, http.StatusBadGateway, upstream.NoticeText(err))
	default:
		logger.Warnf("[server] 手动刷新失败: %v", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.RecentRefreshes(r.Context(), queryLimit(r))
	if err != nil {
		logger.Errorf("[server] 查询刷新历史失败: %v", err)
		writeError(w, http.StatusInternalServerError, "查询刷新历史失败")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.RecentTrades(r.Context(), queryLimit(r))
	if err != nil {
		logger.Errorf("[server] 查询成交记录失败: %v", err)
		writeError(w, http.StatusInternalServerError, "查询成交记录失败")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleEvents SSE：先推 connected 和当前看板，然后转发 hub 消息
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.hub.subscribe("sse")
	defer s.hub.unsubscribe(sub)

	s.greet(sub)
	flusher.Flush()

	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case msg := <-sub.out:
			if err := writeSSE(w, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, msg message) error {
	_, err := io.WriteString(w, "event: "+msg.Event+"\ndata: "+string(msg.Data)+"\n\n")
	return err
}
