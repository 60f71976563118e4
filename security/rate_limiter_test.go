package security

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limiterTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMemoryRateLimiter_AllowsWithinBudget(t *testing.T) {
	limiter := NewMemoryRateLimiter(3, limiterTestLogger())
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.IsAllowed("10.0.0.1", "/v1/session/status"))
		limiter.RecordRequest("10.0.0.1", "/v1/session/status")
	}

	assert.False(t, limiter.IsAllowed("10.0.0.1", "/v1/session/status"))
}

func TestMemoryRateLimiter_ClientsAreIndependent(t *testing.T) {
	limiter := NewMemoryRateLimiter(1, limiterTestLogger())
	defer limiter.Stop()

	assert.True(t, limiter.IsAllowed("10.0.0.1", "/v1/metrics"))
	limiter.RecordRequest("10.0.0.1", "/v1/metrics")
	assert.False(t, limiter.IsAllowed("10.0.0.1", "/v1/metrics"))

	assert.True(t, limiter.IsAllowed("10.0.0.2", "/v1/metrics"))
}

func TestMemoryRateLimiter_OldRequestsAgeOut(t *testing.T) {
	limiter := NewMemoryRateLimiter(1, limiterTestLogger())
	defer limiter.Stop()

	// Inject a request that happened over an hour ago.
	limiter.mutex.Lock()
	limiter.clients["10.0.0.1"] = []time.Time{time.Now().Add(-2 * time.Hour)}
	limiter.mutex.Unlock()

	assert.True(t, limiter.IsAllowed("10.0.0.1", "/v1/metrics"))
}

func TestMemoryRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	limiter := NewMemoryRateLimiter(10, limiterTestLogger())
	defer limiter.Stop()

	limiter.mutex.Lock()
	for i := 0; i < 5; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i)
		limiter.clients[ip] = []time.Time{time.Now().Add(-2 * time.Hour)}
	}
	limiter.clients["10.0.1.1"] = []time.Time{time.Now()}
	limiter.mutex.Unlock()

	limiter.cleanup()

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	assert.Len(t, limiter.clients, 1)
	assert.Contains(t, limiter.clients, "10.0.1.1")
}
