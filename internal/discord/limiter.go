package discord

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiter hands out one token bucket per chat user.
type userLimiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	users map[string]*rate.Limiter
}

func newUserLimiter(every rate.Limit, burst int) *userLimiter {
	return &userLimiter{every: every, burst: burst, users: make(map[string]*rate.Limiter)}
}

func (l *userLimiter) Allow(userID string) bool {
	if l == nil || l.every == rate.Inf {
		return true
	}
	l.mu.Lock()
	lim, ok := l.users[userID]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.users[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
