package devserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("alice")
		blocked, _ := rl.check("alice")
		assert.False(t, blocked, "should not block before reaching maxFailures")
	}
}

func TestRateLimiter_LocksForAMinute(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newLoginRateLimiter()
	rl.now = func() time.Time { return now }
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("alice")
	}

	blocked, retryAfter := rl.check("alice")
	require.True(t, blocked)
	assert.Equal(t, lockout, retryAfter)

	now = now.Add(lockout)
	blocked, _ = rl.check("alice")
	assert.False(t, blocked)
	assert.Empty(t, rl.locked)
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("alice")
	}
	rl.recordSuccess("alice")
	rl.recordFailure("alice")
	blocked, _ := rl.check("alice")
	assert.False(t, blocked)
}

func TestRateLimiter_IsolatesUsers(t *testing.T) {
	rl := newLoginRateLimiter()
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("alice")
	}
	blocked, _ := rl.check("bob")
	assert.False(t, blocked)
}

func TestWriteRateLimited(t *testing.T) {
	w := httptest.NewRecorder()
	writeRateLimited(w, 1500*time.Millisecond)
	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Too many failed login attempts")
}
