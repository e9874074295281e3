package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatRateLimiterBurst(t *testing.T) {
	rl := NewChatRateLimiter(1, 2)
	now := time.Now()

	assert.True(t, rl.allowAt(1, 10, now))
	assert.True(t, rl.allowAt(1, 10, now))
	assert.False(t, rl.allowAt(1, 10, now), "burst exhausted")

	// other chats have their own bucket
	assert.True(t, rl.allowAt(1, 20, now))

	assert.True(t, rl.allowAt(1, 10, now.Add(1100*time.Millisecond)), "one token refilled")
}

func TestChatRateLimiterPerBot(t *testing.T) {
	rl := NewChatRateLimiter(1, 1)
	now := time.Now()

	assert.True(t, rl.allowAt(1, 10, now))
	assert.False(t, rl.allowAt(1, 10, now))

	// the same user writing to another tenant bot is not throttled
	assert.True(t, rl.allowAt(2, 10, now))
	assert.Equal(t, 2, rl.Len())
}

func TestChatRateLimiterCleanup(t *testing.T) {
	rl := NewChatRateLimiter(1, 1)
	now := time.Now()

	rl.allowAt(1, 10, now)
	rl.allowAt(1, 20, now.Add(9*time.Minute))
	assert.Equal(t, 2, rl.Len())

	removed := rl.Cleanup(now.Add(11 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, rl.Len())
}
