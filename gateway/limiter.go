package gateway

import (
	"sync"
	"time"
)

// RateLimiter 控制对交易所的请求速率。
type RateLimiter interface {
	Wait()
}

// TokenBucket 令牌桶限流：rate 为每秒补充的令牌数，burst 为桶容量。
// 公共行情轮询与私有下单接口共用一个桶，交易所按 IP 限流。
type TokenBucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	stamp  time.Time
}

func NewTokenBucket(rate float64, burst int) *TokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		stamp:  time.Now(),
	}
}

// Wait 阻塞直到取得一个令牌。
func (b *TokenBucket) Wait() {
	for {
		b.mu.Lock()
		now := time.Now()
		b.tokens += now.Sub(b.stamp).Seconds() * b.rate
		b.stamp = now
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return
		}
		missing := 1 - b.tokens
		b.mu.Unlock()
		time.Sleep(time.Duration(missing/b.rate*float64(time.Second)) + time.Millisecond)
	}
}

// noLimit 用于测试或不限流场景。
type noLimit struct{}

func (noLimit) Wait() {}
