package devserver

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	maxFailures = 5
	lockout     = time.Minute
)

// loginRateLimiter locks a username out for a minute after maxFailures
// consecutive failed logins.
type loginRateLimiter struct {
	mu       sync.Mutex
	now      func() time.Time
	failures map[string]int
	locked   map[string]time.Time
}

func newLoginRateLimiter() *loginRateLimiter {
	return &loginRateLimiter{
		now:      time.Now,
		failures: make(map[string]int),
		locked:   make(map[string]time.Time),
	}
}

// check reports whether username is locked out and for how long.
func (rl *loginRateLimiter) check(username string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	until, ok := rl.locked[username]
	if !ok {
		return false, 0
	}
	if wait := until.Sub(rl.now()); wait > 0 {
		return true, wait
	}
	delete(rl.locked, username)
	return false, 0
}

func (rl *loginRateLimiter) recordFailure(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.failures[username]++
	if rl.failures[username] >= maxFailures {
		delete(rl.failures, username)
		rl.locked[username] = rl.now().Add(lockout)
	}
}

func (rl *loginRateLimiter) recordSuccess(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, username)
	delete(rl.locked, username)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := max(int(retryAfter.Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "Too many failed login attempts; try again later")
}
