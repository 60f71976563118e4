// ABOUTME: Tests for the session lifecycle manager
// ABOUTME: Covers renew-ahead, stale serving, invalidation, and lazy reconstruction

package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"federation-hub/mocks"
	"federation-hub/models"
	"federation-hub/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type lifecycleFixture struct {
	store     *repository.SessionStore
	refresher *mocks.MockSessionRefresher
	directory *mocks.MockUserDirectoryRepository
	vault     *mocks.MockTokenVaultRepository
	service   *SessionLifecycleService
}

func newLifecycleFixture(t *testing.T, cfg SessionLifecycleConfig) *lifecycleFixture {
	ctrl := gomock.NewController(t)

	store := repository.NewSessionStore()
	refresher := mocks.NewMockSessionRefresher(ctrl)
	directory := mocks.NewMockUserDirectoryRepository(ctrl)
	vault := mocks.NewMockTokenVaultRepository(ctrl)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// Persistence side writes run on detached goroutines and are best-effort,
	// so tests never depend on their call counts.
	directory.EXPECT().WriteFederationMetadata(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	directory.EXPECT().ClearFederationMetadata(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	vault.EXPECT().SaveBundle(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	vault.EXPECT().DeleteBundle(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	return &lifecycleFixture{
		store:     store,
		refresher: refresher,
		directory: directory,
		vault:     vault,
		service:   NewSessionLifecycleService(store, refresher, directory, vault, logger, cfg),
	}
}

func usableBundle(expiresAt time.Time) models.TokenBundle {
	return models.TokenBundle{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
	}
}

func TestCreateSession(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{})

	record, err := f.service.CreateSession(context.Background(),
		"user-1", "cognito", usableBundle(time.Now().Add(time.Hour)), "sub-explicit")
	require.NoError(t, err)

	assert.Equal(t, "sub-explicit", record.ProviderIdentityRef)
	assert.True(t, record.Valid)

	stored, found := f.store.Get(models.SessionKey{PrincipalID: "user-1", Provider: "cognito"})
	require.True(t, found)
	assert.Equal(t, record.ID, stored.ID)
}

func TestCreateSession_RejectsEmptyAccessToken(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{})

	_, err := f.service.CreateSession(context.Background(),
		"user-1", "cognito", models.TokenBundle{RefreshToken: "refresh"}, "sub")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token")
	assert.Equal(t, 0, f.store.Len())
}

func TestCreateSession_ReplacesExistingSessionForSameKey(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{})
	ctx := context.Background()

	first, err := f.service.CreateSession(ctx, "user-1", "cognito", usableBundle(time.Now().Add(time.Hour)), "sub")
	require.NoError(t, err)
	second, err := f.service.CreateSession(ctx, "user-1", "cognito", usableBundle(time.Now().Add(2*time.Hour)), "sub")
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.Len())
	stored, _ := f.store.Get(first.Key)
	assert.Equal(t, second.ID, stored.ID)
}

func TestGetValidSession_FreshSessionSkipsRefresh(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{RenewAheadWindow: 5 * time.Minute})

	record := models.NewSessionRecord(
		models.SessionKey{PrincipalID: "user-1", Provider: "cognito"},
		usableBundle(time.Now().Add(time.Hour)), "sub")
	f.store.Put(record)

	got, refreshed, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, record.ID, got.ID)
}

func TestGetValidSession_RenewAheadTriggersRefresh(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{RenewAheadWindow: 5 * time.Minute})

	record := models.NewSessionRecord(
		models.SessionKey{PrincipalID: "user-1", Provider: "cognito"},
		usableBundle(time.Now().Add(3*time.Minute)), "sub")
	f.store.Put(record)

	renewed := record.Refreshed(usableBundle(time.Now().Add(time.Hour)))
	f.refresher.EXPECT().
		Refresh(gomock.Any(), record.Key, gomock.Any()).
		Return(renewed, nil)

	got, refreshed, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, renewed.Bundle.ExpiresAt, got.Bundle.ExpiresAt)
}

func TestGetValidSession_RefreshDeniedInvalidatesSession(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{RenewAheadWindow: 5 * time.Minute})

	record := models.NewSessionRecord(
		models.SessionKey{PrincipalID: "user-1", Provider: "cognito"},
		usableBundle(time.Now().Add(time.Minute)), "sub")
	f.store.Put(record)

	f.refresher.EXPECT().
		Refresh(gomock.Any(), record.Key, gomock.Any()).
		Return(nil, ErrRefreshDenied)

	_, _, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRefreshDenied))

	_, found := f.store.Get(record.Key)
	assert.False(t, found, "denied session must be evicted")

	// The next lookup treats the session as gone.
	f.directory.EXPECT().
		ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
		Return(nil, repository.ErrMetadataNotFound)

	_, _, err = f.service.GetValidSession(context.Background(), "user-1", "cognito")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestGetValidSession_TransientFailureServesStale(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{
		RenewAheadWindow: 5 * time.Minute,
		MaxStaleServes:   3,
	})

	record := models.NewSessionRecord(
		models.SessionKey{PrincipalID: "user-1", Provider: "cognito"},
		usableBundle(time.Now().Add(time.Minute)), "sub")
	f.store.Put(record)

	f.refresher.EXPECT().
		Refresh(gomock.Any(), record.Key, gomock.Any()).
		Return(nil, ErrRefreshTransient)

	got, refreshed, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, "access-token", got.Bundle.AccessToken)
	assert.Equal(t, 1, got.StaleServes)
}

func TestGetValidSession_StaleServeCeilingEvicts(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{
		RenewAheadWindow: 5 * time.Minute,
		MaxStaleServes:   2,
	})

	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}
	record := models.NewSessionRecord(key, usableBundle(time.Now().Add(time.Minute)), "sub")
	f.store.Put(record)

	f.refresher.EXPECT().
		Refresh(gomock.Any(), key, gomock.Any()).
		Return(nil, ErrRefreshTransient).
		Times(3)

	// Two stale serves inside the ceiling.
	for i := 1; i <= 2; i++ {
		got, _, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
		require.NoError(t, err)
		assert.Equal(t, i, got.StaleServes)
	}

	// The third exhausts the ceiling.
	_, _, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, found := f.store.Get(key)
	assert.False(t, found)
}

func TestGetValidSession_TransientFailureOnExpiredBundle(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{
		RenewAheadWindow: 5 * time.Minute,
		ExpiryGrace:      2 * time.Minute,
	})

	// Expired but inside the grace window, so renewal is still allowed.
	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}
	record := models.NewSessionRecord(key, usableBundle(time.Now().Add(-30*time.Second)), "sub")
	f.store.Put(record)

	f.refresher.EXPECT().
		Refresh(gomock.Any(), key, gomock.Any()).
		Return(nil, ErrRefreshTransient)

	_, _, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRefreshTransient))

	// The record stays for the next attempt.
	_, found := f.store.Get(key)
	assert.True(t, found)
}

func TestGetValidSession_ExpiredBeyondGraceEvicts(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{
		RenewAheadWindow: 5 * time.Minute,
		ExpiryGrace:      2 * time.Minute,
	})

	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}
	record := models.NewSessionRecord(key, usableBundle(time.Now().Add(-10*time.Minute)), "sub")
	f.store.Put(record)

	_, _, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, found := f.store.Get(key)
	assert.False(t, found)
}

func TestGetValidSession_ReconstructsFromDirectoryAndVault(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{RenewAheadWindow: 5 * time.Minute})
	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}

	f.directory.EXPECT().
		ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
		Return(&models.FederationMetadata{
			PrincipalID:         "user-1",
			Provider:            "cognito",
			ProviderIdentityRef: "sub-from-directory",
			LastSyncAt:          time.Now().Add(-24 * time.Hour),
		}, nil)

	// A long-expired vault bundle still reconstructs: the refresh token is
	// what matters, and the renew-ahead check sends it straight to refresh.
	vaultBundle := usableBundle(time.Now().Add(-6 * time.Hour))
	f.vault.EXPECT().
		GetBundle(gomock.Any(), key).
		Return(&vaultBundle, nil)

	renewed := models.NewSessionRecord(key, usableBundle(time.Now().Add(time.Hour)), "sub-from-directory")
	f.refresher.EXPECT().
		Refresh(gomock.Any(), key, gomock.Any()).
		Return(renewed, nil)

	got, refreshed, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "sub-from-directory", got.ProviderIdentityRef)
}

func TestGetValidSession_ReconstructionFailures(t *testing.T) {
	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}

	tests := map[string]struct {
		setupMocks func(f *lifecycleFixture)
	}{
		"no directory metadata": {
			setupMocks: func(f *lifecycleFixture) {
				f.directory.EXPECT().
					ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
					Return(nil, repository.ErrMetadataNotFound)
			},
		},
		"directory lookup error": {
			setupMocks: func(f *lifecycleFixture) {
				f.directory.EXPECT().
					ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
					Return(nil, errors.New("connection refused"))
			},
		},
		"no vault bundle": {
			setupMocks: func(f *lifecycleFixture) {
				f.directory.EXPECT().
					ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
					Return(&models.FederationMetadata{PrincipalID: "user-1", Provider: "cognito"}, nil)
				f.vault.EXPECT().
					GetBundle(gomock.Any(), key).
					Return(nil, repository.ErrBundleNotFound)
			},
		},
		"vault bundle without refresh token": {
			setupMocks: func(f *lifecycleFixture) {
				f.directory.EXPECT().
					ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
					Return(&models.FederationMetadata{PrincipalID: "user-1", Provider: "cognito"}, nil)
				f.vault.EXPECT().
					GetBundle(gomock.Any(), key).
					Return(&models.TokenBundle{AccessToken: "access"}, nil)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newLifecycleFixture(t, SessionLifecycleConfig{})
			tc.setupMocks(f)

			_, _, err := f.service.GetValidSession(context.Background(), "user-1", "cognito")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSessionNotFound))
		})
	}
}

func TestGetValidSession_ConcurrentStaleServesCountExactly(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{
		RenewAheadWindow: 5 * time.Minute,
		MaxStaleServes:   100,
	})

	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}
	record := models.NewSessionRecord(key, usableBundle(time.Now().Add(time.Minute)), "sub")
	f.store.Put(record)

	f.refresher.EXPECT().
		Refresh(gomock.Any(), key, gomock.Any()).
		Return(nil, ErrRefreshTransient).
		AnyTimes()

	const callers = 8
	results := make([]*models.SessionRecord, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = f.service.GetValidSession(context.Background(), "user-1", "cognito")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
	}

	// Every stale serve is counted exactly once against the ceiling, and
	// callers hold snapshots, never the stored record itself.
	stored, found := f.store.Get(key)
	require.True(t, found)
	assert.Equal(t, callers, stored.StaleServes)

	results[0].StaleServes = 999
	stored, _ = f.store.Get(key)
	assert.Equal(t, callers, stored.StaleServes)
}

func TestSessionLifecycle_EndToEndDenialFlow(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{
		RenewAheadWindow: 5 * time.Minute,
		ExpiryGrace:      2 * time.Minute,
		MaxStaleServes:   3,
	})
	ctx := context.Background()
	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}

	// Federated login establishes the session close to expiry.
	created, err := f.service.CreateSession(ctx, "user-1", "cognito",
		usableBundle(time.Now().Add(3*time.Minute)), "sub")
	require.NoError(t, err)

	// First access lands in the renew-ahead window and refreshes.
	renewed := created.Refreshed(usableBundle(time.Now().Add(time.Hour)))
	f.refresher.EXPECT().
		Refresh(gomock.Any(), key, gomock.Any()).
		Return(renewed, nil)

	got, refreshed, err := f.service.GetValidSession(ctx, "user-1", "cognito")
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, renewed.Bundle.ExpiresAt, got.Bundle.ExpiresAt)

	// The session then sits idle far past expiry; the next access evicts it.
	lapsed := renewed.Refreshed(usableBundle(time.Now().Add(-10 * time.Minute)))
	f.store.Put(lapsed)

	_, _, err = f.service.GetValidSession(ctx, "user-1", "cognito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.Equal(t, 0, f.store.Len())

	// Reconstruction from the vault still works, but the provider has
	// revoked the refresh token by now and denies the exchange.
	f.directory.EXPECT().
		ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
		Return(&models.FederationMetadata{
			PrincipalID:         "user-1",
			Provider:            "cognito",
			ProviderIdentityRef: "sub",
		}, nil)
	vaultBundle := usableBundle(time.Now().Add(-10 * time.Minute))
	f.vault.EXPECT().
		GetBundle(gomock.Any(), key).
		Return(&vaultBundle, nil)
	f.refresher.EXPECT().
		Refresh(gomock.Any(), key, gomock.Any()).
		Return(nil, ErrRefreshDenied)

	_, _, err = f.service.GetValidSession(ctx, "user-1", "cognito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRefreshDenied))
	assert.Equal(t, 0, f.store.Len())

	// With the persisted state cleared, the session is gone for good.
	f.directory.EXPECT().
		ReadFederationMetadata(gomock.Any(), "user-1", "cognito").
		Return(nil, repository.ErrMetadataNotFound)

	_, _, err = f.service.GetValidSession(ctx, "user-1", "cognito")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestInvalidateSession_Idempotent(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{})
	key := models.SessionKey{PrincipalID: "user-1", Provider: "cognito"}

	record := models.NewSessionRecord(key, usableBundle(time.Now().Add(time.Hour)), "sub")
	f.store.Put(record)

	f.service.InvalidateSession(context.Background(), "user-1", "cognito")
	_, found := f.store.Get(key)
	assert.False(t, found)

	// Second invalidation of a missing session is a no-op.
	f.service.InvalidateSession(context.Background(), "user-1", "cognito")
}

func TestSessionStatus(t *testing.T) {
	f := newLifecycleFixture(t, SessionLifecycleConfig{RenewAheadWindow: 5 * time.Minute})

	status := f.service.SessionStatus("user-1", "cognito")
	assert.False(t, status.Exists)

	record := models.NewSessionRecord(
		models.SessionKey{PrincipalID: "user-1", Provider: "cognito"},
		usableBundle(time.Now().Add(3*time.Minute)), "sub")
	f.store.Put(record)

	status = f.service.SessionStatus("user-1", "cognito")
	assert.True(t, status.Exists)
	assert.True(t, status.Valid)
	assert.True(t, status.NeedsRefresh)
	assert.Equal(t, "sub", status.ProviderIdentityRef)
	assert.Greater(t, status.ExpiresInSeconds, int64(0))
}
