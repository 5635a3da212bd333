package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/betbot/accelboard/internal/domain"
	"github.com/betbot/accelboard/internal/refresh"
	"github.com/betbot/accelboard/internal/wire"
	"github.com/betbot/accelboard/pkg/config"
)

var (
	_ refresh.Listener      = (*RedisPublisher)(nil)
	_ refresh.TradeListener = (*RedisPublisher)(nil)
)

// RedisPublisher 把最新排行榜发布到 Redis，供其他服务读取
//   - <prefix>:leaderboard  ZSET  member=symbol score=acceleration（没有加速度的不写入）
//   - <prefix>:quotes       HASH  symbol -> quote JSON
//   - <prefix>:view         STRING 完整 View JSON
//   - <prefix>:events       PUBSUB board / trade 事件
type RedisPublisher struct {
	client *redis.Client
	prefix string
	worker *worker
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisPublisher(client *redis.Client, keyPrefix string, queueSize int) *RedisPublisher {
	if keyPrefix == "" {
		keyPrefix = "accelboard"
	}
	return &RedisPublisher{
		client: client,
		prefix: keyPrefix,
		worker: newWorker("redis", queueSize, 3*time.Second),
	}
}

// Ping 检查连接
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) LeaderboardKey() string { return p.key("leaderboard") }
func (p *RedisPublisher) QuotesKey() string      { return p.key("quotes") }
func (p *RedisPublisher) ViewKey() string        { return p.key("view") }
func (p *RedisPublisher) Channel() string        { return p.key("events") }

func (p *RedisPublisher) key(name string) string {
	return fmt.Sprintf("%s:%s", p.prefix, name)
}

// PublishView 用一个事务流水线整体替换排行榜和行情
func (p *RedisPublisher) PublishView(ctx context.Context, v refresh.View) error {
	wv := wire.FromView(v)
	viewJSON, err := json.Marshal(wv)
	if err != nil {
		return errors.Wrap(err, "序列化 view 失败")
	}
	event, err := json.Marshal(wire.Event{Event: wire.EventBoard, Data: wv})
	if err != nil {
		return errors.Wrap(err, "序列化 board 事件失败")
	}

	pipe := p.client.TxPipeline()
	pipe.Del(ctx, p.LeaderboardKey(), p.QuotesKey())

	members := make([]redis.Z, 0, len(wv.Leaderboard))
	for _, e := range wv.Leaderboard {
		if e.Acceleration == nil {
			continue
		}
		members = append(members, redis.Z{Score: *e.Acceleration, Member: e.Symbol})
	}
	if len(members) > 0 {
		pipe.ZAdd(ctx, p.LeaderboardKey(), members...)
	}

	if len(wv.Quotes) > 0 {
		fields := make([]any, 0, len(wv.Quotes)*2)
		for _, q := range wv.Quotes {
			b, err := json.Marshal(q)
			if err != nil {
				return errors.Wrapf(err, "序列化行情 %s 失败", q.Symbol)
			}
			fields = append(fields, q.Symbol, string(b))
		}
		pipe.HSet(ctx, p.QuotesKey(), fields...)
	}

	pipe.Set(ctx, p.ViewKey(), string(viewJSON), 0)
	pipe.Publish(ctx, p.Channel(), string(event))

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "发布排行榜到 redis 失败")
	}
	return nil
}

// PublishTrade 广播成交事件
func (p *RedisPublisher) PublishTrade(ctx context.Context, ev domain.TradeEvent) error {
	b, err := json.Marshal(wire.Event{Event: wire.EventTrade, Data: wire.FromTrade(ev)})
	if err != nil {
		return errors.Wrap(err, "序列化成交事件失败")
	}
	return errors.Wrap(p.client.Publish(ctx, p.Channel(), string(b)).Err(), "发布成交事件失败")
}

// LoadView 读取最近一次发布的 View（没有时返回 false）
func (p *RedisPublisher) LoadView(ctx context.Context) (wire.View, bool, error) {
	s, err := p.client.Get(ctx, p.ViewKey()).Result()
	if errors.Is(err, redis.Nil) {
		return wire.View{}, false, nil
	}
	if err != nil {
		return wire.View{}, false, errors.Wrap(err, "读取 view 失败")
	}
	var v wire.View
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return wire.View{}, false, errors.Wrap(err, "解析 view 失败")
	}
	return v, true, nil
}

func (p *RedisPublisher) OnBoard(v refresh.View) {
	p.worker.submit("发布排行榜", func(ctx context.Context) error {
		return p.PublishView(ctx, v)
	})
}

func (p *RedisPublisher) OnNotice(refresh.Notice) {}

func (p *RedisPublisher) OnTrade(ev domain.TradeEvent) {
	p.worker.submit("发布成交", func(ctx context.Context) error {
		return p.PublishTrade(ctx, ev)
	})
}

// Close 等待队列清空并关闭连接
func (p *RedisPublisher) Close(ctx context.Context) error {
	p.worker.close(ctx)
	return p.client.Close()
}
