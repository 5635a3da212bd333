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

	"github.com/betbot/accelboard/internal/mockfeed"
	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（读取 mockfeed 段和 upstream.token）")
	listen := flag.String("listen", "", "监听地址（覆盖配置文件）")
	seed := flag.Int64("seed", 0, "随机种子（0 表示使用配置文件）")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.MockFeed.Listen = *listen
	}
	if *seed != 0 {
		cfg.MockFeed.Seed = *seed
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level}); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}

	feed := mockfeed.New(cfg.MockFeed, cfg.Upstream.Token)
	go func() {
		if err := feed.ListenAndServe(); err != nil {
			logger.Errorf("[mockfeed] HTTP 服务异常退出: %v", err)
			os.Exit(1)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = feed.Shutdown(ctx)

	fmt.Println("mockfeed stopped")
}
