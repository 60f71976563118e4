//go:generate mockgen -source=session_lifecycle_service.go -destination=../mocks/session_refresher_mock.go -package=mocks SessionRefresher

// ABOUTME: This file implements the session lifecycle manager, the public surface
// ABOUTME: Handles create/validate/invalidate with renew-ahead and lazy reconstruction

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"federation-hub/driver"
	"federation-hub/models"
	"federation-hub/repository"
)

// SessionRefresher abstracts the refresh coordinator for the lifecycle manager.
type SessionRefresher interface {
	Refresh(ctx context.Context, key models.SessionKey, current *models.SessionRecord) (*models.SessionRecord, error)
}

// SessionLifecycleConfig holds lifecycle policy knobs.
type SessionLifecycleConfig struct {
	RenewAheadWindow time.Duration // Refresh this long before expiry
	ExpiryGrace      time.Duration // How long past expiry a session may still renew
	MaxStaleServes   int           // Consecutive transient-failure serves before hardening to not-found
}

// SessionLifecycleService is the entry point other subsystems call. It owns
// session creation, validation with transparent renew-ahead refresh, and
// invalidation.
type SessionLifecycleService struct {
	store     *repository.SessionStore
	refresher SessionRefresher
	directory repository.UserDirectoryRepository
	vault     repository.TokenVaultRepository
	logger    *slog.Logger

	renewAhead     time.Duration
	grace          time.Duration
	maxStaleServes int
}

// NewSessionLifecycleService creates the lifecycle manager.
func NewSessionLifecycleService(
	store *repository.SessionStore,
	refresher SessionRefresher,
	directory repository.UserDirectoryRepository,
	vault repository.TokenVaultRepository,
	logger *slog.Logger,
	cfg SessionLifecycleConfig,
) *SessionLifecycleService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RenewAheadWindow == 0 {
		cfg.RenewAheadWindow = 5 * time.Minute
	}
	if cfg.ExpiryGrace == 0 {
		cfg.ExpiryGrace = 2 * time.Minute
	}
	if cfg.MaxStaleServes == 0 {
		cfg.MaxStaleServes = 3
	}

	return &SessionLifecycleService{
		store:          store,
		refresher:      refresher,
		directory:      directory,
		vault:          vault,
		logger:         logger,
		renewAhead:     cfg.RenewAheadWindow,
		grace:          cfg.ExpiryGrace,
		maxStaleServes: cfg.MaxStaleServes,
	}
}

// CreateSession builds and stores a record after a successful federated
// login. When no provider identity ref is supplied it is derived from the ID
// token's subject claim.
func (s *SessionLifecycleService) CreateSession(ctx context.Context, principalID, provider string, bundle models.TokenBundle, providerIdentityRef string) (*models.SessionRecord, error) {
	key := models.SessionKey{PrincipalID: principalID, Provider: provider}

	if providerIdentityRef == "" && bundle.IDToken != "" {
		subject, err := driver.IdentitySubject(bundle.IDToken)
		if err != nil {
			s.logger.Warn("could not derive provider identity ref from ID token",
				"principal_id", principalID,
				"provider", provider,
				"error", err)
		} else {
			providerIdentityRef = subject
		}
	}

	record := models.NewSessionRecord(key, bundle, providerIdentityRef)
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session record: %w", err)
	}

	s.store.Put(record)

	// Best-effort side writes; the in-memory record is already authoritative.
	go s.persistNewSession(record)

	s.logger.Info("session created",
		"principal_id", principalID,
		"provider", provider,
		"expires_at", bundle.ExpiresAt)

	return record, nil
}

// GetValidSession returns a usable session record for the key, transparently
// refreshing it when inside the renew-ahead window. The boolean reports
// whether a refresh happened on this call.
func (s *SessionLifecycleService) GetValidSession(ctx context.Context, principalID, provider string) (*models.SessionRecord, bool, error) {
	key := models.SessionKey{PrincipalID: principalID, Provider: provider}

	record, found := s.store.Get(key)
	reconstructed := false
	if !found {
		rebuilt, err := s.reconstruct(ctx, key)
		if err != nil {
			return nil, false, err
		}
		record = rebuilt
		reconstructed = true
	}

	if !record.Valid {
		s.InvalidateSession(ctx, principalID, provider)
		return nil, false, ErrSessionNotFound
	}

	// A reconstructed record may be long expired yet still renewable with
	// its vault refresh token, so it skips the grace cutoff.
	if !reconstructed && record.IsExpired() && record.ExpiredBeyond(s.grace) {
		s.logger.Info("session expired beyond grace, evicting",
			"principal_id", principalID,
			"provider", provider,
			"expired_at", record.Bundle.ExpiresAt)
		s.InvalidateSession(ctx, principalID, provider)
		return nil, false, ErrSessionNotFound
	}

	if !record.Bundle.NeedsRefresh(s.renewAhead) {
		return record, false, nil
	}

	refreshed, err := s.refresher.Refresh(ctx, key, record)
	if err == nil {
		return refreshed, true, nil
	}

	if errors.Is(err, ErrRefreshDenied) {
		s.InvalidateSession(ctx, principalID, provider)
		return nil, false, err
	}

	// Transient failure (including wait timeouts): serve the current bundle
	// while it is still usable, up to the stale-serve ceiling.
	return s.serveStale(ctx, record, err)
}

// serveStale decides what a transient refresh failure degrades to.
func (s *SessionLifecycleService) serveStale(ctx context.Context, record *models.SessionRecord, refreshErr error) (*models.SessionRecord, bool, error) {
	if record.IsExpired() {
		// Nothing usable to hand out; the record stays for the next attempt.
		s.logger.Warn("transient refresh failure on expired session",
			"principal_id", record.Key.PrincipalID,
			"provider", record.Key.Provider,
			"error", refreshErr)
		return nil, false, fmt.Errorf("%w: bundle already expired", ErrRefreshTransient)
	}

	// The counter lives in the store so concurrent callers each get a
	// distinct count against the ceiling.
	staleServes, found := s.store.IncrementStaleServes(record.Key)
	if !found {
		// Evicted between our read and now (sweep or invalidation).
		return nil, false, ErrSessionNotFound
	}
	record.StaleServes = staleServes

	if staleServes > s.maxStaleServes {
		s.logger.Error("stale-serve ceiling exhausted, evicting session",
			"principal_id", record.Key.PrincipalID,
			"provider", record.Key.Provider,
			"stale_serves", staleServes,
			"ceiling", s.maxStaleServes)
		s.InvalidateSession(ctx, record.Key.PrincipalID, record.Key.Provider)
		return nil, false, fmt.Errorf("%w: stale-serve ceiling exhausted", ErrSessionNotFound)
	}

	s.logger.Warn("serving stale session after transient refresh failure",
		"principal_id", record.Key.PrincipalID,
		"provider", record.Key.Provider,
		"stale_serves", staleServes,
		"expires_at", record.Bundle.ExpiresAt,
		"error", refreshErr)

	return record, false, nil
}

// InvalidateSession removes the session from the store and best-effort
// clears directory metadata and the vault bundle. Removal is what makes the
// session unobservable; snapshots already handed out are not mutated.
// Idempotent.
func (s *SessionLifecycleService) InvalidateSession(ctx context.Context, principalID, provider string) {
	key := models.SessionKey{PrincipalID: principalID, Provider: provider}

	s.store.Remove(key)

	go s.clearPersisted(key)

	s.logger.Info("session invalidated",
		"principal_id", principalID,
		"provider", provider)
}

// reconstruct rebuilds a session from directory metadata plus the vault
// bundle. Without a usable refresh token there is nothing to rebuild.
func (s *SessionLifecycleService) reconstruct(ctx context.Context, key models.SessionKey) (*models.SessionRecord, error) {
	meta, err := s.directory.ReadFederationMetadata(ctx, key.PrincipalID, key.Provider)
	if err != nil {
		if !errors.Is(err, repository.ErrMetadataNotFound) {
			s.logger.Warn("directory lookup failed during reconstruction",
				"principal_id", key.PrincipalID,
				"provider", key.Provider,
				"error", err)
		}
		return nil, ErrSessionNotFound
	}

	if s.vault == nil {
		return nil, ErrSessionNotFound
	}

	bundle, err := s.vault.GetBundle(ctx, key)
	if err != nil || bundle.RefreshToken == "" {
		s.logger.Info("reconstruction found no usable refresh token",
			"principal_id", key.PrincipalID,
			"provider", key.Provider)
		return nil, ErrSessionNotFound
	}

	record := models.NewSessionRecord(key, *bundle, meta.ProviderIdentityRef)
	s.store.Put(record)

	s.logger.Info("session reconstructed from directory and vault",
		"principal_id", key.PrincipalID,
		"provider", key.Provider,
		"expires_at", bundle.ExpiresAt)

	return record, nil
}

// persistNewSession writes the vault bundle and directory metadata for a
// freshly created session. Failures are logged only.
func (s *SessionLifecycleService) persistNewSession(record *models.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.vault != nil {
		if err := s.vault.SaveBundle(ctx, record.Key, record.Bundle); err != nil {
			s.logger.Warn("token vault save failed for new session",
				"principal_id", record.Key.PrincipalID,
				"provider", record.Key.Provider,
				"error", err)
		}
	}

	meta := &models.FederationMetadata{
		PrincipalID:         record.Key.PrincipalID,
		Provider:            record.Key.Provider,
		ProviderIdentityRef: record.ProviderIdentityRef,
		LastSyncAt:          record.CreatedAt,
	}
	if err := s.directory.WriteFederationMetadata(ctx, meta); err != nil {
		s.logger.Warn("directory metadata write failed for new session",
			"principal_id", record.Key.PrincipalID,
			"provider", record.Key.Provider,
			"error", err)
	}
}

// clearPersisted removes directory metadata and the vault bundle after an
// invalidation. Failures are logged only.
func (s *SessionLifecycleService) clearPersisted(key models.SessionKey) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.directory.ClearFederationMetadata(ctx, key.PrincipalID, key.Provider); err != nil {
		s.logger.Warn("directory metadata clear failed",
			"principal_id", key.PrincipalID,
			"provider", key.Provider,
			"error", err)
	}

	if s.vault != nil {
		if err := s.vault.DeleteBundle(ctx, key); err != nil {
			s.logger.Warn("token vault delete failed",
				"principal_id", key.PrincipalID,
				"provider", key.Provider,
				"error", err)
		}
	}
}

// SessionStatus reports the observable state of a session without touching
// the refresh path. Used by the ops API; never exposes token material.
func (s *SessionLifecycleService) SessionStatus(principalID, provider string) models.SessionStatus {
	key := models.SessionKey{PrincipalID: principalID, Provider: provider}

	record, found := s.store.Get(key)
	if !found {
		return models.SessionStatus{Exists: false}
	}

	return models.SessionStatus{
		Exists:              true,
		Valid:               record.Valid,
		ExpiresAt:           record.Bundle.ExpiresAt,
		ExpiresInSeconds:    int64(record.Bundle.TimeUntilExpiry().Seconds()),
		NeedsRefresh:        record.Bundle.NeedsRefresh(s.renewAhead),
		LastRefreshedAt:     record.LastRefreshedAt,
		StaleServes:         record.StaleServes,
		ProviderIdentityRef: record.ProviderIdentityRef,
	}
}
