// Package ratelimit 令牌桶限流（手动刷新等接口使用）
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
	// RetryAfter 距离下一个可用令牌的时间（有令牌时为 0）
	RetryAfter() time.Duration
}

// TokenBucket 令牌桶：容量 capacity，每秒补充 refillRate 个（按经过时间连续补充）
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return newTokenBucketWithClock(capacity, refillRate, time.Now)
}

func newTokenBucketWithClock(capacity, refillRate int, now func() time.Time) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		now:        now,
	}
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

// Allow 有令牌时消耗一个并返回 true
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到拿到令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}
		wait := tb.RetryAfter()
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

func (tb *TokenBucket) RetryAfter() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		return 0
	}
	if tb.refillRate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
}

// KeyedLimiter 按 key（例如客户端 IP）分别限流
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedEntry
	factory  func() RateLimiter
	idleTTL  time.Duration
}

type keyedEntry struct {
	limiter  RateLimiter
	lastSeen time.Time
}

// NewKeyedLimiter idleTTL 内没有访问的 key 会在下一次访问时被清理
func NewKeyedLimiter(factory func() RateLimiter, idleTTL time.Duration) *KeyedLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		limiters: make(map[string]*keyedEntry),
		factory:  factory,
		idleTTL:  idleTTL,
	}
}

// Get 获取 key 对应的限流器
func (k *KeyedLimiter) Get(key string) RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	for existing, e := range k.limiters {
		if existing != key && now.Sub(e.lastSeen) > k.idleTTL {
			delete(k.limiters, existing)
		}
	}
	e, ok := k.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: k.factory()}
		k.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (k *KeyedLimiter) Allow(key string) bool {
	return k.Get(key).Allow()
}

func (k *KeyedLimiter) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
