package mockfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/logger"
)

type Feed struct {
	cfg    config.MockFeedConfig
	token  string
	market *Market

	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
}

// New token 为空时不校验
func New(cfg config.MockFeedConfig, token string) *Feed {
	if cfg.TradeInterval <= 0 {
		cfg.TradeInterval = 20 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	return &Feed{
		cfg:    cfg,
		token:  token,
		market: NewMarket(cfg),
		done:   make(chan struct{}),
	}
}

func (f *Feed) Market() *Market { return f.market }

func (f *Feed) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/market-data", f.handleMarketData)
	r.GET("/api/events", f.handleEvents)
	return r
}

func (f *Feed) ListenAndServe() error {
	f.httpServer = &http.Server{
		Addr:              f.cfg.Listen,
		Handler:           f.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("[mockfeed] 模拟行情后端监听 %s", f.cfg.Listen)
	err := f.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (f *Feed) Shutdown(ctx context.Context) error {
	f.closeOnce.Do(func() { close(f.done) })
	if f.httpServer == nil {
		return nil
	}
	return f.httpServer.Shutdown(ctx)
}

func (f *Feed) authorized(c *gin.Context) bool {
	if f.token == "" {
		return true
	}
	if strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ") == f.token {
		return true
	}
	return c.Query("token") == f.token
}

// respond 真实后端在业务错误时也返回 200，错误放在 code 里
func respond(c *gin.Context, code int, data json.RawMessage, message string) {
	if data == nil {
		data = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "data": data, "message": message})
}

// handleMarketData 每次请求行情走一步；?shape=flat 返回平铺数组，?empty=1 返回 data:null
func (f *Feed) handleMarketData(c *gin.Context) {
	if !f.authorized(c) {
		respond(c, 401, nil, "Invalid token")
		return
	}
	if c.Query("empty") != "" {
		respond(c, 0, nil, "ok")
		return
	}

	f.market.Step()
	var (
		body []byte
		err  error
	)
	if c.Query("shape") == "flat" {
		body, err = f.market.FlatJSON()
	} else {
		body, err = f.market.GroupedJSON()
	}
	if err != nil {
		logger.Errorf("[mockfeed] 序列化行情失败: %v", err)
		respond(c, 500, nil, "internal error")
		return
	}
	respond(c, 0, body, "ok")
}

func (f *Feed) handleEvents(c *gin.Context) {
	if !f.authorized(c) {
		c.String(http.StatusUnauthorized, "Invalid token")
		return
	}
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "event: connected\ndata: {\"type\":\"connected\"}\n\n")
	w.Flush()

	trades := time.NewTicker(f.cfg.TradeInterval)
	defer trades.Stop()
	heartbeat := time.NewTicker(f.cfg.Heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-trades.C:
			t, ok := f.market.RandomTrade()
			if !ok {
				continue
			}
			b, _ := json.Marshal(t)
			if _, err := fmt.Fprintf(w, "event: trade\ndata: %s\n\n", b); err != nil {
				return
			}
			w.Flush()
			logger.Debugf("[mockfeed] 推送成交 %s %s x%d", t.Type, t.Symbol, t.Quantity)
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, "data: {\"type\":\"heartbeat\"}\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}
