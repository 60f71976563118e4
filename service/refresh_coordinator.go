//go:generate mockgen -source=refresh_coordinator.go -destination=../mocks/token_exchanger_mock.go -package=mocks TokenExchanger

// ABOUTME: This file implements the single-flight refresh coordinator
// ABOUTME: Guarantees at most one in-flight token exchange per session key

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"federation-hub/driver"
	"federation-hub/models"
	"federation-hub/repository"
	"federation-hub/utils"

	"golang.org/x/sync/singleflight"
)

// TokenExchanger abstracts the provider's token endpoint.
type TokenExchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*models.TokenExchangeResponse, error)
}

// CoordinatorMetrics tracks refresh operations for monitoring.
type CoordinatorMetrics struct {
	TotalRefreshAttempts   int64         `json:"total_refresh_attempts"`
	SuccessfulRefreshes    int64         `json:"successful_refreshes"`
	FailedRefreshes        int64         `json:"failed_refreshes"`
	DeniedRefreshes        int64         `json:"denied_refreshes"`
	TransientFailures      int64         `json:"transient_failures"`
	SingleFlightJoins      int64         `json:"singleflight_joins"`
	WaiterTimeouts         int64         `json:"waiter_timeouts"`
	DirectorySyncFailures  int64         `json:"directory_sync_failures"`
	LastRefreshTime        time.Time     `json:"last_refresh_time"`
	LastRefreshDuration    time.Duration `json:"last_refresh_duration"`
	AverageRefreshDuration time.Duration `json:"average_refresh_duration"`
}

// RefreshCoordinator ensures at most one concurrent token exchange per
// session key. Concurrent callers join the in-flight operation and share its
// outcome; each waiter has its own bounded wait independent of the leader.
type RefreshCoordinator struct {
	store     *repository.SessionStore
	directory repository.UserDirectoryRepository
	vault     repository.TokenVaultRepository
	exchanger TokenExchanger
	breaker   *utils.CircuitBreaker
	logger    *slog.Logger

	exchangeTimeout time.Duration
	waitTimeout     time.Duration

	refreshGroup singleflight.Group

	// inFlight mirrors the singleflight key set so the sweeper can ask
	// whether a key is currently being refreshed.
	mu       sync.Mutex
	inFlight map[models.SessionKey]struct{}

	metricsMu sync.Mutex
	metrics   CoordinatorMetrics
}

// RefreshCoordinatorConfig holds coordinator tuning knobs.
type RefreshCoordinatorConfig struct {
	ExchangeTimeout time.Duration // Leader's token endpoint timeout
	WaitTimeout     time.Duration // Each waiter's bounded wait on a join
}

// NewRefreshCoordinator creates a refresh coordinator.
func NewRefreshCoordinator(
	store *repository.SessionStore,
	directory repository.UserDirectoryRepository,
	vault repository.TokenVaultRepository,
	exchanger TokenExchanger,
	breaker *utils.CircuitBreaker,
	logger *slog.Logger,
	cfg RefreshCoordinatorConfig,
) *RefreshCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ExchangeTimeout == 0 {
		cfg.ExchangeTimeout = 15 * time.Second
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 10 * time.Second
	}

	return &RefreshCoordinator{
		store:           store,
		directory:       directory,
		vault:           vault,
		exchanger:       exchanger,
		breaker:         breaker,
		logger:          logger,
		exchangeTimeout: cfg.ExchangeTimeout,
		waitTimeout:     cfg.WaitTimeout,
		inFlight:        make(map[models.SessionKey]struct{}),
	}
}

// InFlight reports whether a refresh for the key is currently running.
// The expiry sweeper uses this to skip keys mid-refresh.
func (c *RefreshCoordinator) InFlight(key models.SessionKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, found := c.inFlight[key]
	return found
}

// Refresh performs or joins the single in-flight token exchange for the key.
// Every caller receives the leader's outcome, a wait timeout, or the caller's
// own context cancellation. The coordinator never retries: retry policy
// belongs to the lifecycle manager.
func (c *RefreshCoordinator) Refresh(ctx context.Context, key models.SessionKey, current *models.SessionRecord) (*models.SessionRecord, error) {
	start := time.Now()

	ch := c.refreshGroup.DoChan(key.String(), func() (interface{}, error) {
		c.markInFlight(key)
		defer c.clearInFlight(key)
		return c.lead(key, current)
	})

	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		c.recordOutcome(start, res.Err, res.Shared)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SessionRecord), nil

	case <-timer.C:
		// The leader keeps running for the other waiters.
		c.metricsMu.Lock()
		c.metrics.WaiterTimeouts++
		c.metricsMu.Unlock()
		c.logger.Warn("refresh wait timeout",
			"principal_id", key.PrincipalID,
			"provider", key.Provider,
			"wait_timeout", c.waitTimeout)
		return nil, ErrRefreshWaitTimeout

	case <-ctx.Done():
		return nil, fmt.Errorf("refresh wait cancelled: %w", ctx.Err())
	}
}

// lead runs the leader path: one token exchange under its own timeout,
// detached from any individual caller's context.
func (c *RefreshCoordinator) lead(key models.SessionKey, current *models.SessionRecord) (*models.SessionRecord, error) {
	// Another caller may have completed a refresh between this caller's
	// staleness check and winning the singleflight slot.
	if cached, found := c.store.Get(key); found && cached.Bundle.ExpiresAt.After(current.Bundle.ExpiresAt) {
		c.logger.Info("session already refreshed by another caller",
			"principal_id", key.PrincipalID,
			"provider", key.Provider)
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.exchangeTimeout)
	defer cancel()

	c.logger.Info("executing token exchange",
		"principal_id", key.PrincipalID,
		"provider", key.Provider,
		"expires_at", current.Bundle.ExpiresAt)

	var response *models.TokenExchangeResponse
	exchange := func(ctx context.Context) error {
		resp, err := c.exchanger.Exchange(ctx, current.Bundle.RefreshToken)
		if err != nil {
			return err
		}
		response = resp
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, exchange)
	} else {
		err = exchange(ctx)
	}
	if err != nil {
		return nil, c.classify(key, err)
	}

	bundle := models.NewTokenBundle(*response, current.Bundle.RefreshToken)
	refreshed := current.Refreshed(bundle)
	c.store.Put(refreshed)

	// Best-effort side writes, detached from the response path. Their
	// failures are logged and never become the refresh outcome.
	go c.syncDirectory(refreshed)
	go c.persistBundle(key, bundle)

	c.logger.Info("token exchange completed",
		"principal_id", key.PrincipalID,
		"provider", key.Provider,
		"new_expires_at", bundle.ExpiresAt)

	return refreshed, nil
}

// classify maps exchange failures onto the service error taxonomy.
func (c *RefreshCoordinator) classify(key models.SessionKey, err error) error {
	if driver.IsRefreshDenial(err) {
		c.logger.Error("refresh denied by provider",
			"principal_id", key.PrincipalID,
			"provider", key.Provider,
			"error", err)
		return fmt.Errorf("%w: %s", ErrRefreshDenied, err)
	}

	c.logger.Warn("transient refresh failure",
		"principal_id", key.PrincipalID,
		"provider", key.Provider,
		"error", err)
	return fmt.Errorf("%w: %s", ErrRefreshTransient, err)
}

// syncDirectory pushes non-sensitive freshness metadata to the user
// directory. Failures are counted and logged only.
func (c *RefreshCoordinator) syncDirectory(record *models.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	meta := &models.FederationMetadata{
		PrincipalID:         record.Key.PrincipalID,
		Provider:            record.Key.Provider,
		ProviderIdentityRef: record.ProviderIdentityRef,
		LastSyncAt:          record.LastRefreshedAt,
	}

	if err := c.directory.WriteFederationMetadata(ctx, meta); err != nil {
		c.metricsMu.Lock()
		c.metrics.DirectorySyncFailures++
		c.metricsMu.Unlock()
		c.logger.Warn("directory metadata sync failed",
			"principal_id", record.Key.PrincipalID,
			"provider", record.Key.Provider,
			"error", err)
	}
}

// persistBundle saves the refreshed bundle to the token vault so the session
// survives a restart. Best-effort: the in-memory record is authoritative.
func (c *RefreshCoordinator) persistBundle(key models.SessionKey, bundle models.TokenBundle) {
	if c.vault == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.vault.SaveBundle(ctx, key, bundle); err != nil {
		c.logger.Warn("token vault save failed",
			"principal_id", key.PrincipalID,
			"provider", key.Provider,
			"error", err)
	}
}

func (c *RefreshCoordinator) markInFlight(key models.SessionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[key] = struct{}{}
}

func (c *RefreshCoordinator) clearInFlight(key models.SessionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}

// recordOutcome updates metrics after a Refresh call resolves.
func (c *RefreshCoordinator) recordOutcome(start time.Time, err error, shared bool) {
	duration := time.Since(start)

	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()

	c.metrics.TotalRefreshAttempts++
	c.metrics.LastRefreshTime = start
	c.metrics.LastRefreshDuration = duration
	if c.metrics.AverageRefreshDuration == 0 {
		c.metrics.AverageRefreshDuration = duration
	} else {
		c.metrics.AverageRefreshDuration = (c.metrics.AverageRefreshDuration + duration) / 2
	}

	if shared {
		c.metrics.SingleFlightJoins++
	}

	switch {
	case err == nil:
		c.metrics.SuccessfulRefreshes++
	case errors.Is(err, ErrRefreshDenied):
		c.metrics.FailedRefreshes++
		c.metrics.DeniedRefreshes++
	default:
		c.metrics.FailedRefreshes++
		c.metrics.TransientFailures++
	}
}

// Metrics returns a snapshot of the coordinator metrics.
func (c *RefreshCoordinator) Metrics() CoordinatorMetrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.metrics
}
