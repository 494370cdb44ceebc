package relay

import (
	"sync"
	"time"

	"retroboard/internal/clock"
)

// DefaultCommandsPerMinute is the per-connection command budget
const DefaultCommandsPerMinute = 120

// RateLimiter implements per-connection rate limiting over fixed one-minute windows
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clock   clock.Clock
	clients map[string]*ClientLimit
}

// ClientLimit tracks rate limiting for a single connection
type ClientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates a limiter allowing perMinute commands per connection.
// A non-positive perMinute uses DefaultCommandsPerMinute.
func NewRateLimiter(perMinute int, c clock.Clock) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultCommandsPerMinute
	}
	if c == nil {
		c = clock.New()
	}
	return &RateLimiter{
		limit:   perMinute,
		clock:   c,
		clients: make(map[string]*ClientLimit),
	}
}

// Limit returns the number of commands allowed per window
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Allow records one command from connID and reports whether it is within budget
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()

	limit, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &ClientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Forget drops the state of a closed connection
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}

// Cleanup removes entries idle for more than five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, connID)
		}
	}
}

// Tracked returns how many connections currently have limiter state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
