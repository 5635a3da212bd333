package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/accelboard/internal/metrics"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/server"
	"github.com/betbot/accelboard/internal/store"
	"github.com/betbot/accelboard/internal/upstream"
	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/logger"
	"github.com/betbot/accelboard/pkg/persistence"
	"github.com/betbot/accelboard/pkg/shutdown"
	"github.com/betbot/accelboard/pkg/syncgroup"
)

func main() {
	// .env 可选，不存在时使用真实环境变量
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	listen := flag.String("listen", "", "HTTP 监听地址（覆盖配置文件）")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}
	if *configPath != "" {
		logrus.Infof("使用配置文件: %s", *configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 两阶段关闭：先停掉产生回调的组件，再关闭写入队列和存储
	shutdowns := shutdown.NewManager()
	sinks := shutdown.NewManager()
	group := syncgroup.NewSyncGroup()

	// 历史存储
	db, err := store.Open(cfg.Store)
	if err != nil {
		logrus.Errorf("打开存储失败: %v", err)
		os.Exit(1)
	}
	recorder := store.NewRecorder(db, cfg.Store.MinInterval, cfg.Store.QueueSize)
	sinks.OnShutdown("store", func(ctx context.Context) error {
		recorder.Close(ctx)
		return db.Close()
	})

	// 刷新调度
	board := refresh.NewBoard(cfg.Refresh.TopN, cfg.Refresh.MaxTopN)
	sched := refresh.NewScheduler(upstream.NewClient(cfg.Upstream), board, cfg.Refresh)
	hub := server.NewHub(0)
	sched.AddListener(hub)
	sched.AddListener(recorder)

	// Redis 发布（可选）
	var publisher *store.RedisPublisher
	if cfg.Redis.Addr != "" {
		client := store.NewRedisClient(cfg.Redis)
		p := store.NewRedisPublisher(client, cfg.Redis.KeyPrefix, cfg.Store.QueueSize)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := p.Ping(pingCtx); err != nil {
			logrus.Warnf("Redis 不可用，跳过发布: %v", err)
			_ = client.Close()
		} else {
			publisher = p
			sched.AddListener(publisher)
			sinks.OnShutdown("redis", publisher.Close)
			logrus.Infof("Redis 发布已启用: %s (prefix=%s)", cfg.Redis.Addr, cfg.Redis.KeyPrefix)
		}
		pingCancel()
	}

	// 上游成交推送：收到成交立即触发刷新
	stream := upstream.NewEventStream(cfg.Upstream, upstream.StreamHandlers{
		OnConnected: func() { logger.Infof("上游推送通道已连接: %s", cfg.Upstream.BaseURL) },
		OnTrade:     sched.HandleTrade,
	})

	var state persistence.Service
	if cfg.StateDir != "" {
		state = persistence.NewJSONFileService(cfg.StateDir)
	}
	srv, err := server.New(server.Options{
		Config:          cfg.Server,
		Scheduler:       sched,
		Store:           db,
		Hub:             hub,
		State:           state,
		StreamConnected: stream.Connected,
	})
	if err != nil {
		logrus.Errorf("初始化 HTTP 服务失败: %v", err)
		os.Exit(1)
	}
	restored, err := srv.LoadState()
	if err != nil {
		logrus.Warnf("恢复看板状态失败: %v", err)
	}
	// 没有本地状态时用 Redis 里最近发布的看板预热
	if !restored && publisher != nil {
		loadCtx, loadCancel := context.WithTimeout(ctx, 3*time.Second)
		if v, ok, err := publisher.LoadView(loadCtx); err != nil {
			logrus.Warnf("读取 Redis 看板失败: %v", err)
		} else if ok {
			srv.RestoreView(v)
		}
		loadCancel()
	}

	if cfg.MetricsAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsAddr); err != nil {
			logrus.Warnf("启动 metrics 服务失败: %v", err)
		} else {
			logrus.Infof("metrics 服务: http://%s/debug/vars", cfg.MetricsAddr)
		}
	}

	sched.Start(ctx)
	stream.Start(ctx)
	group.Add("http", func() {
		if err := srv.ListenAndServe(cfg.Server.Listen); err != nil {
			logrus.Errorf("HTTP 服务异常退出: %v", err)
			cancel()
		}
	})
	group.Run()

	shutdowns.OnShutdown("http", srv.Shutdown)
	shutdowns.OnShutdown("scheduler", func(context.Context) error {
		sched.Stop()
		srv.SaveState()
		return nil
	})
	shutdowns.OnShutdown("stream", func(context.Context) error {
		stream.Stop()
		return nil
	})

	logrus.Infof("accelboard 已启动: 刷新间隔 %v, 排行 %d 条, 上游 %s", cfg.Refresh.Interval, board.TopN(), cfg.Upstream.BaseURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-sigChan:
		logrus.Infof("收到信号 %v，正在关闭...", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if !shutdowns.Shutdown(shutdownCtx) {
		logrus.Warn("部分组件未能在超时前关闭")
	}
	if !sinks.Shutdown(shutdownCtx) {
		logrus.Warn("写入队列未能在超时前清空")
	}
	cancel()
	group.Wait()
	fmt.Println("accelboard stopped")
}
