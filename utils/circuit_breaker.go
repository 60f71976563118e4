package utils

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // Requests pass through
	StateOpen                                // Requests are rejected
	StateHalfOpen                            // Limited probe requests pass through
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitBreakerOpen is returned when the circuit breaker rejects a request
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Half-open successes before closing
	Timeout          time.Duration // Open duration before probing
	MaxRequests      int           // Concurrent probes allowed while half-open

	// IsFailure decides whether an error counts against the breaker.
	// Nil means every error counts. The token endpoint rejecting one
	// particular refresh token says nothing about endpoint health, so the
	// coordinator excludes denials here.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
		MaxRequests:      2,
	}
}

// CircuitBreakerStats holds statistics for monitoring
type CircuitBreakerStats struct {
	State           CircuitBreakerState `json:"state"`
	FailureCount    int                 `json:"failure_count"`
	LastFailureTime time.Time           `json:"last_failure_time"`
	TotalRequests   int64               `json:"total_requests"`
	TotalFailures   int64               `json:"total_failures"`
	TotalRejections int64               `json:"total_rejections"`
}

// CircuitBreaker guards a flaky dependency: after enough consecutive
// failures it rejects requests outright for a cool-down period, then lets a
// few probes through before fully closing again.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
	logger *slog.Logger

	mu               sync.RWMutex
	state            CircuitBreakerState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	nextRetry        time.Time
	halfOpenRequests int

	totalRequests   int64
	totalFailures   int64
	totalRejections int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// Execute runs the operation if the breaker allows it.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		cb.mu.Lock()
		cb.totalRejections++
		cb.mu.Unlock()

		cb.logger.Debug("circuit breaker rejected request",
			"state", cb.GetState().String())
		return ErrCircuitBreakerOpen
	}

	cb.mu.Lock()
	cb.totalRequests++
	cb.mu.Unlock()

	err := operation(ctx)

	if err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err)) {
		cb.onFailure(err)
	} else {
		cb.onSuccess()
	}

	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Now().After(cb.nextRetry) {
			cb.setState(StateHalfOpen)
			cb.halfOpenRequests++
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.MaxRequests {
			cb.halfOpenRequests++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.halfOpenRequests > 0 {
			cb.halfOpenRequests--
		}
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.logger.Info("circuit breaker closing after probe successes",
				"success_count", cb.successCount)
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.logger.Warn("circuit breaker opening",
				"failure_count", cb.failureCount,
				"error", err)
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// Any probe failure re-opens immediately.
		if cb.halfOpenRequests > 0 {
			cb.halfOpenRequests--
		}
		cb.logger.Warn("circuit breaker re-opening from half-open", "error", err)
		cb.setState(StateOpen)
	}
}

// setState changes state; callers hold the lock.
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.halfOpenRequests = 0
	case StateOpen:
		cb.nextRetry = time.Now().Add(cb.config.Timeout)
		cb.successCount = 0
		cb.halfOpenRequests = 0
	case StateHalfOpen:
		cb.successCount = 0
	}

	cb.logger.Info("circuit breaker state transition",
		"from", oldState.String(),
		"to", newState.String())
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current statistics for monitoring
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		LastFailureTime: cb.lastFailureTime,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
	}
}
