package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/upstream"
	"github.com/betbot/accelboard/pkg/config"
	"github.com/betbot/accelboard/pkg/logger"
)

// programListener 把调度器的回调转成 tea 消息
type programListener struct {
	p *tea.Program
}

func (l programListener) OnBoard(v refresh.View) { l.p.Send(boardMsg(v)) }
func (l programListener) OnNotice(n refresh.Notice) { l.p.Send(noticeMsg(n)) }
func (l programListener) OnTrade(ev domain.TradeEvent) { l.p.Send(tradeMsg(ev)) }

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	logFile := flag.String("log", "logs/accelboard-tui.log", "日志文件")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 终端被 TUI 占用，日志只写文件
	if err := logger.InitFileOnly(cfg.Log.Level, *logFile); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	board := refresh.NewBoard(cfg.Refresh.TopN, cfg.Refresh.MaxTopN)
	sched := refresh.NewScheduler(upstream.NewClient(cfg.Upstream), board, cfg.Refresh)

	var p *tea.Program
	stream := upstream.NewEventStream(cfg.Upstream, upstream.StreamHandlers{
		OnConnected: func() { p.Send(streamMsg(true)) },
		OnTrade:     sched.HandleTrade,
	})

	// 断线没有回调，由 tick 轮询 stream.Connected() 更新状态
	p = tea.NewProgram(newModel(ctx, sched, cfg.Upstream.BaseURL, stream.Connected), tea.WithAltScreen())
	sched.AddListener(programListener{p: p})

	sched.Start(ctx)
	stream.Start(ctx)
	defer func() {
		stream.Stop()
		sched.Stop()
	}()

	if _, err := p.Run(); err != nil {
		log.Fatalf("运行程序失败: %v", err)
	}
}
