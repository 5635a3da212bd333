package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/marketdata"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/store"
	"github.com/betbot/accelboard/internal/upstream"
	"github.com/betbot/accelboard/internal/wire"
	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/persistence"
)

const flatPayload = `[
	{"symbol":"AAA","price":10,"acceleration":0.5},
	{"symbol":"BBB","price":20,"acceleration":2.5},
	{"symbol":"CCC","price":null,"acceleration":9}
]`

type stubFetcher struct {
	mu  sync.Mutex
	raw any
	err error
}

func (f *stubFetcher) FetchMarketData(context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw, f.err
}

func (f *stubFetcher) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type envelopeResp struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T, opts Options) (*Server, *stubFetcher) {
	t.Helper()
	raw, err := marketdata.DecodeRaw([]byte(flatPayload))
	require.NoError(t, err)
	f := &stubFetcher{raw: raw}

	sched := refresh.NewScheduler(f, refresh.NewBoard(10, 50), config.RefreshConfig{Interval: time.Hour, Serialize: true})
	opts.Scheduler = sched
	if opts.Hub == nil {
		opts.Hub = NewHub(16)
	}
	sched.AddListener(opts.Hub)

	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, f
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelopeResp) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelopeResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestRefreshAndView(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Router()

	rec, env := do(t, h, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	_, env = do(t, h, http.MethodGet, "/api/view", "")
	var view struct {
		Seq         uint64 `json:"seq"`
		Shape       string `json:"shape"`
		Leaderboard []struct {
			Rank   int    `json:"rank"`
			Symbol string `json:"symbol"`
		} `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, uint64(1), view.Seq)
	assert.Equal(t, "flat", view.Shape)
	require.Len(t, view.Leaderboard, 2)
	assert.Equal(t, "BBB", view.Leaderboard[0].Symbol)
	assert.Equal(t, 2, view.Leaderboard[1].Rank)

	_, env = do(t, h, http.MethodGet, "/api/chart", "")
	var chart struct {
		Legend []string `json:"legend"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chart))
	assert.Equal(t, []string{"AAA", "BBB"}, chart.Legend)
}

func TestLeaderboardQueryDoesNotChangeSetting(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Router()
	_, err := s.sched.RefreshNow(context.Background(), "test")
	require.NoError(t, err)

	_, env := do(t, h, http.MethodGet, "/api/leaderboard?topN="+url.QueryEscape("1条"), "")
	var lb struct {
		TopN        int               `json:"top_n"`
		Leaderboard []json.RawMessage `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lb))
	assert.Equal(t, 1, lb.TopN)
	assert.Len(t, lb.Leaderboard, 1)
	assert.Equal(t, 10, s.sched.Board().TopN())

	_, env = do(t, h, http.MethodGet, "/api/leaderboard?topN=abc", "")
	require.NoError(t, json.Unmarshal(env.Data, &lb))
	assert.Equal(t, marketdata.DefaultTopN, lb.TopN)
}

func TestSetTopN_PersistsAndRestores(t *testing.T) {
	svc := persistence.NewJSONFileService(t.TempDir())
	s, _ := newTestServer(t, Options{State: svc})
	h := s.Router()
	_, err := s.sched.RefreshNow(context.Background(), "test")
	require.NoError(t, err)

	rec, env := do(t, h, http.MethodPut, "/api/leaderboard/top-n", `{"topN":"1条"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var lb struct {
		TopN int `json:"top_n"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lb))
	assert.Equal(t, 1, lb.TopN)

	rec, _ = do(t, h, http.MethodPut, "/api/leaderboard/top-n", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 新实例从同一目录预热
	restored, _ := newTestServer(t, Options{State: svc})
	ok, err := restored.LoadState()
	require.NoError(t, err)
	assert.True(t, ok)
	v := restored.sched.Board().View()
	assert.Equal(t, 1, v.TopN)
	assert.Equal(t, uint64(0), v.Seq)
	require.Len(t, v.Leaderboard, 1)
	assert.Equal(t, "BBB", v.Leaderboard[0].Quote.Symbol)
	assert.Equal(t, []string{"AAA", "BBB"}, v.Chart.Legend)
}

func TestRestoreView_KeepsTopN(t *testing.T) {
	src, _ := newTestServer(t, Options{})
	_, err := src.sched.RefreshNow(context.Background(), "test")
	require.NoError(t, err)
	snapshot := wire.FromView(src.sched.Board().View())

	// 没有状态文件时不算恢复
	s, _ := newTestServer(t, Options{})
	ok, err := s.LoadState()
	require.NoError(t, err)
	assert.False(t, ok)

	s.sched.SetTopN(1)
	s.RestoreView(snapshot)
	v := s.sched.Board().View()
	assert.Equal(t, 1, v.TopN)
	assert.Equal(t, "restore", v.Source)
	require.Len(t, v.Leaderboard, 1)
	assert.Equal(t, "BBB", v.Leaderboard[0].Quote.Symbol)
	assert.Len(t, v.Quotes, 3)
}

func TestRefresh_RateLimited(t *testing.T) {
	s, _ := newTestServer(t, Options{Config: config.ServerConfig{RefreshBurst: 1, RefreshPerSec: 1}})
	h := s.Router()

	rec, _ := do(t, h, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, h, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRefresh_UpstreamError(t *testing.T) {
	s, f := newTestServer(t, Options{})
	h := s.Router()
	f.fail(&upstream.APIError{Code: 401, HasCode: true, Message: "Invalid token"})

	rec, env := do(t, h, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "加载市场数据失败: Invalid token", env.Message)
}

func TestHistoryAndTrades(t *testing.T) {
	db, err := store.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, _ := newTestServer(t, Options{Store: db})
	h := s.Router()

	view, err := s.sched.RefreshNow(context.Background(), "test")
	require.NoError(t, err)
	require.NoError(t, db.SaveRefresh(context.Background(), store.NewRefreshRecord(view)))
	require.NoError(t, db.SaveTrade(context.Background(), store.NewTradeRecord(domain.TradeEvent{
		Side: domain.TradeSideBuy, Symbol: "AAA", Quantity: *domain.DecimalPtr(5), ReceivedAt: time.Now(),
	})))

	_, env := do(t, h, http.MethodGet, "/api/history?limit=5", "")
	var history []store.RefreshRecord
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, uint64(1), history[0].Seq)

	_, env = do(t, h, http.MethodGet, "/api/trades", "")
	var trades []store.TradeRecord
	require.NoError(t, json.Unmarshal(env.Data, &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "AAA", trades[0].Symbol)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, Options{StreamConnected: func() bool { return true }})
	_, env := do(t, s.Router(), http.MethodGet, "/healthz", "")
	var health map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, true, health["ok"])
	assert.Equal(t, true, health["stream"])
	assert.Equal(t, "idle", health["state"])
}

// readSSEEvent 读取下一个事件（跳过注释行）
func readSSEEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsSSE(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	ev, _ := readSSEEvent(t, r)
	assert.Equal(t, "connected", ev)
	ev, _ = readSSEEvent(t, r)
	assert.Equal(t, "board", ev)

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	_, err = s.sched.RefreshNow(context.Background(), "test")
	require.NoError(t, err)

	ev, data := readSSEEvent(t, r)
	assert.Equal(t, "board", ev)
	assert.Contains(t, data, `"seq":1`)
}

func TestWebsocket(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() (string, json.RawMessage) {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		return frame.Event, frame.Data
	}

	ev, _ := read()
	assert.Equal(t, "connected", ev)
	ev, _ = read()
	assert.Equal(t, "board", ev)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "top_n", "top_n": 3}))
	ev, data := read()
	assert.Equal(t, "board", ev)
	assert.Contains(t, string(data), `"top_n":3`)
	assert.Equal(t, 3, s.sched.Board().TopN())
}
