package infrastructure

import (
	"context"
	"sync"
	"time"
)

type chatKey struct {
	botID  int64
	chatID int64
}

// ChatSession tracks an in-flight action for one chat of one bot
type ChatSession struct {
	processing bool
	lastClick  time.Time
	mu         sync.Mutex
}

// ClickGuard debounces inline button presses so that a double tap on
// "buy" does not start two purchases.
type ClickGuard struct {
	sessions map[chatKey]*ChatSession
	window   time.Duration
	mu       sync.Mutex
}

func NewClickGuard(window time.Duration) *ClickGuard {
	return &ClickGuard{
		sessions: make(map[chatKey]*ChatSession),
		window:   window,
	}
}

func (g *ClickGuard) session(botID, chatID int64) *ChatSession {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := chatKey{botID: botID, chatID: chatID}
	s, ok := g.sessions[key]
	if !ok {
		s = &ChatSession{}
		g.sessions[key] = s
	}
	return s
}

// Begin marks the chat busy. It returns false when another action is still
// running or the previous click was inside the debounce window. The returned
// func must be called when the action is done.
func (g *ClickGuard) Begin(botID, chatID int64) (func(), bool) {
	return g.beginAt(botID, chatID, time.Now())
}

func (g *ClickGuard) beginAt(botID, chatID int64, now time.Time) (func(), bool) {
	s := g.session(botID, chatID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing || now.Sub(s.lastClick) < g.window {
		return func() {}, false
	}
	s.lastClick = now
	s.processing = true

	return func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}, true
}

const clickIdle = 10 * time.Minute

// Cleanup drops sessions that are idle and not processing
func (g *ClickGuard) Cleanup(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, s := range g.sessions {
		s.mu.Lock()
		idle := !s.processing && now.Sub(s.lastClick) > clickIdle
		s.mu.Unlock()
		if idle {
			delete(g.sessions, key)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done
func (g *ClickGuard) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.Cleanup(now)
		}
	}
}
