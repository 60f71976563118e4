// ABOUTME: Memory-based sliding-window rate limiting for the ops API
// ABOUTME: Tracks per-client request history with periodic cleanup

package security

import (
	"log/slog"
	"sync"
	"time"
)

// MemoryRateLimiter is an in-memory per-client sliding-window rate limiter.
type MemoryRateLimiter struct {
	maxRequestsPerHour int
	cleanupInterval    time.Duration

	mutex   sync.Mutex
	clients map[string][]time.Time

	logger   *slog.Logger
	stopChan chan struct{}
}

// NewMemoryRateLimiter creates and starts a new in-memory rate limiter.
func NewMemoryRateLimiter(maxRequestsPerHour int, logger *slog.Logger) *MemoryRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := &MemoryRateLimiter{
		maxRequestsPerHour: maxRequestsPerHour,
		cleanupInterval:    5 * time.Minute,
		clients:            make(map[string][]time.Time),
		logger:             logger,
		stopChan:           make(chan struct{}),
	}

	go limiter.cleanupLoop()

	return limiter
}

// IsAllowed checks whether the client is inside its hourly budget.
func (rl *MemoryRateLimiter) IsAllowed(clientIP string, endpoint string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	oneHourAgo := time.Now().Add(-time.Hour)
	requests := pruneOlderThan(rl.clients[clientIP], oneHourAgo)
	rl.clients[clientIP] = requests

	if len(requests) >= rl.maxRequestsPerHour {
		rl.logger.Warn("rate limit exceeded",
			"client_ip", clientIP,
			"endpoint", endpoint,
			"current_requests", len(requests),
			"limit", rl.maxRequestsPerHour)
		return false
	}

	return true
}

// RecordRequest records one request against the client's budget.
func (rl *MemoryRateLimiter) RecordRequest(clientIP string, endpoint string) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.clients[clientIP] = append(rl.clients[clientIP], time.Now())
}

// Stop stops the cleanup loop.
func (rl *MemoryRateLimiter) Stop() {
	close(rl.stopChan)
}

func (rl *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops clients whose entire request history has aged out.
func (rl *MemoryRateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	oneHourAgo := time.Now().Add(-time.Hour)
	for ip, requests := range rl.clients {
		pruned := pruneOlderThan(requests, oneHourAgo)
		if len(pruned) == 0 {
			delete(rl.clients, ip)
		} else {
			rl.clients[ip] = pruned
		}
	}
}

func pruneOlderThan(requests []time.Time, cutoff time.Time) []time.Time {
	pruned := requests[:0]
	for _, ts := range requests {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	return pruned
}
