package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/pkg/config"
)

func TestNextTopN(t *testing.T) {
	assert.Equal(t, 15, nextTopN(10, 1))
	assert.Equal(t, 5, nextTopN(10, -1))
	assert.Equal(t, 50, nextTopN(50, 1))
	assert.Equal(t, 5, nextTopN(5, -1))
	// 不在可选值中的条数
	assert.Equal(t, 15, nextTopN(12, 1))
	assert.Equal(t, 10, nextTopN(12, -1))
}

func TestSparkline(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	points := []domain.ChartPoint{
		{Acceleration: f(0)},
		{Acceleration: nil},
		{Acceleration: f(1)},
	}
	assert.Equal(t, "▁ █", sparkline(points, 10))
	assert.Equal(t, " █", sparkline(points, 2))

	flat := []domain.ChartPoint{{Acceleration: f(3)}, {Acceleration: f(3)}}
	assert.Equal(t, "▁▁", sparkline(flat, 10))
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "--", formatDecimal(nil, 2, "%"))
	assert.Equal(t, "1.50%", formatDecimal(domain.DecimalPtr(1.5), 2, "%"))
}

func TestTickPollsStreamStatus(t *testing.T) {
	sched := refresh.NewScheduler(nil, refresh.NewBoard(10, 50), config.RefreshConfig{})
	online := true
	m := newModel(context.Background(), sched, "http://upstream", func() bool { return online })

	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(model)
	assert.True(t, m.streaming)

	// 断线后下一次 tick 显示未连接
	online = false
	next, _ = m.Update(tickMsg(time.Now()))
	m = next.(model)
	assert.False(t, m.streaming)
	assert.Contains(t, m.View(), "推送: 未连接")
}
