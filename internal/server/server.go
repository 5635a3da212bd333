// Package server 对外 HTTP 接口（gin）：排行榜、图表、手动刷新、历史记录以及 SSE / websocket 推送。
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/store"
	"github.com/betbot/accelboard/pkg/cache"
	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/logger"
	"github.com/betbot/accelboard/pkg/persistence"
	"github.com/betbot/accelboard/pkg/ratelimit"
)

// Options 服务依赖
type Options struct {
	Config    config.ServerConfig
	Scheduler *refresh.Scheduler
	Store     store.Store // 为 nil 时历史接口返回空列表
	Hub       *Hub
	// State 为 nil 时不保存偏好设置
	State persistence.Service
	// StreamConnected 上游推送通道状态（healthz 使用，可为 nil）
	StreamConnected func() bool
}

type leaderboardKey struct {
	seq  uint64
	topN int
}

type Server struct {
	cfg             config.ServerConfig
	sched           *refresh.Scheduler
	store           store.Store
	hub             *Hub
	state           persistence.Service
	streamConnected func() bool

	limiter *ratelimit.KeyedLimiter
	boards  *cache.InMemoryCache[leaderboardKey, []domain.LeaderboardEntry]

	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
}

func New(opts Options) (*Server, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(0)
	}
	if opts.Store == nil {
		opts.Store = store.Nop{}
	}
	cfg := opts.Config
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	if cfg.LeaderboardTTL <= 0 {
		cfg.LeaderboardTTL = 2 * time.Second
	}
	burst, perSec := cfg.RefreshBurst, cfg.RefreshPerSec
	if burst <= 0 {
		burst = 5
	}
	if perSec <= 0 {
		perSec = 1
	}

	return &Server{
		cfg:             cfg,
		sched:           opts.Scheduler,
		store:           opts.Store,
		hub:             opts.Hub,
		state:           opts.State,
		streamConnected: opts.StreamConnected,
		limiter: ratelimit.NewKeyedLimiter(func() ratelimit.RateLimiter {
			return ratelimit.NewTokenBucket(burst, perSec)
		}, 10*time.Minute),
		boards: cache.NewInMemoryCache[leaderboardKey, []domain.LeaderboardEntry](cfg.LeaderboardTTL, time.Minute),
		done:   make(chan struct{}),
	}, nil
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())

	r.GET("/healthz", s.wrap(s.handleHealthz))
	r.GET("/ws", s.wrap(s.handleWebsocket))

	api := r.Group("/api")
	api.GET("/view", s.wrap(s.handleView))
	api.GET("/quotes", s.wrap(s.handleQuotes))
	api.GET("/leaderboard", s.wrap(s.handleLeaderboard))
	api.PUT("/leaderboard/top-n", s.wrap(s.handleSetTopN))
	api.GET("/chart", s.wrap(s.handleChart))
	api.POST("/refresh", s.wrap(s.handleRefresh))
	api.GET("/history", s.wrap(s.handleHistory))
	api.GET("/trades", s.wrap(s.handleTrades))
	api.GET("/events", s.wrap(s.handleEvents))

	return r
}

// ListenAndServe 阻塞运行，直到 Shutdown
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.cfg.Listen
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("HTTP 服务监听 %s", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 先断开 SSE/websocket 长连接，再关闭 HTTP 服务
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.boards.Close()
	})
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// wrap 把 net/http handler 适配为 gin handler（路由都没有路径参数，只转发 Writer 和 Request）
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		h(c.Writer, c.Request)
	}
}

// envelope 统一返回结构，与上游接口保持一致
type envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: 0, Data: data, Message: "ok"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: status, Data: nil, Message: msg})
}

func queryLimit(r *http.Request) int {
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const requestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]interface{}{
			"request_id": c.GetString("request_id"),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		}).Debugf("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}
