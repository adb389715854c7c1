package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/teamvoice/internal/domain"
)

// JoinRateLimiter bounds how fast one connection may issue join requests.
type JoinRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.ConnectionID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewJoinRateLimiter(perSecond float64, burst int) *JoinRateLimiter {
	return &JoinRateLimiter{
		limiters: make(map[domain.ConnectionID]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *JoinRateLimiter) Allow(id domain.ConnectionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[id] = l
	}
	return l.Allow()
}

func (rl *JoinRateLimiter) Forget(id domain.ConnectionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, id)
}
