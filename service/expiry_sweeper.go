package service

import (
	"log/slog"
	"sync"
	"time"

	"federation-hub/models"
	"federation-hub/repository"
)

// RefreshTracker reports whether a refresh is in flight for a key.
type RefreshTracker interface {
	InFlight(key models.SessionKey) bool
}

// ExpirySweeper periodically reclaims memory held by sessions nobody has
// touched since they expired. It is pure cache hygiene: it never calls the
// token endpoint and never mutates the user directory or the vault.
type ExpirySweeper struct {
	store   *repository.SessionStore
	tracker RefreshTracker
	logger  *slog.Logger

	interval time.Duration
	grace    time.Duration

	mu       sync.Mutex
	ticker   *time.Ticker
	stopChan chan struct{}
	running  bool
}

// SweeperConfig holds sweeper tuning knobs.
type SweeperConfig struct {
	Interval time.Duration // Sweep cadence
	Grace    time.Duration // How long past expiry a record survives a sweep
}

// DefaultSweeperConfig returns the default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 15 * time.Minute,
		Grace:    2 * time.Minute,
	}
}

// NewExpirySweeper creates a sweeper over the given store.
func NewExpirySweeper(store *repository.SessionStore, tracker RefreshTracker, logger *slog.Logger, cfg SweeperConfig) *ExpirySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Minute
	}

	return &ExpirySweeper{
		store:    store,
		tracker:  tracker,
		logger:   logger,
		interval: cfg.Interval,
		grace:    cfg.Grace,
	}
}

// Start starts the sweep loop. The stop channel is created fresh on every
// Start so a stopped sweeper can be started again.
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("expiry sweeper is already running")
		return
	}
	s.running = true
	s.ticker = time.NewTicker(s.interval)
	s.stopChan = make(chan struct{})
	ticker := s.ticker
	stopChan := s.stopChan
	s.mu.Unlock()

	s.logger.Info("starting expiry sweeper",
		"interval", s.interval,
		"grace", s.grace)

	go s.runLoop(ticker, stopChan)
}

// Stop stops the sweep loop.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("stopping expiry sweeper")
	close(s.stopChan)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.running = false
}

// runLoop runs on its own ticker and stop channel so a later restart cannot
// race with a loop still draining from an earlier run.
func (s *ExpirySweeper) runLoop(ticker *time.Ticker, stopChan chan struct{}) {
	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes every record expired for longer than the grace window,
// skipping keys with a refresh in flight.
func (s *ExpirySweeper) Sweep() {
	// ListExpired(now-grace) yields keys whose expiry predates the grace
	// cutoff, i.e. records expired for longer than the grace window.
	cutoff := time.Now().Add(-s.grace)
	expired := s.store.ListExpired(cutoff)
	if len(expired) == 0 {
		return
	}

	removed := 0
	skipped := 0
	for _, key := range expired {
		if s.tracker != nil && s.tracker.InFlight(key) {
			skipped++
			continue
		}
		s.store.Remove(key)
		removed++
	}

	s.logger.Info("expiry sweep completed",
		"expired", len(expired),
		"removed", removed,
		"skipped_in_flight", skipped)
}
