package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ChatRateLimiter keeps one token bucket per chat of each bot
type ChatRateLimiter struct {
	mu       sync.Mutex
	limiters map[chatKey]*chatLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

type chatLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewChatRateLimiter allows perSecond messages per chat with the given burst.
func NewChatRateLimiter(perSecond float64, burst int) *ChatRateLimiter {
	return &ChatRateLimiter{
		limiters: make(map[chatKey]*chatLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// Allow consumes a token for chatID talking to botID
func (rl *ChatRateLimiter) Allow(botID, chatID int64) bool {
	return rl.allowAt(botID, chatID, time.Now())
}

func (rl *ChatRateLimiter) allowAt(botID, chatID int64, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := chatKey{botID: botID, chatID: chatID}
	cl, ok := rl.limiters[key]
	if !ok {
		cl = &chatLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.lim.AllowN(now, 1)
}

// Cleanup removes buckets idle since before now-idle
func (rl *ChatRateLimiter) Cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.idle {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Run cleans up idle buckets every interval until ctx is done.
func (rl *ChatRateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Cleanup(now)
		}
	}
}

func (rl *ChatRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
