package service

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"federation-hub/models"
	"federation-hub/repository"

	"github.com/stretchr/testify/assert"
)

// staticTracker reports a fixed set of keys as in flight.
type staticTracker struct {
	inFlight map[models.SessionKey]bool
}

func (t *staticTracker) InFlight(key models.SessionKey) bool {
	return t.inFlight[key]
}

func sweeperTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func putSweeperRecord(store *repository.SessionStore, principalID string, expiresAt time.Time) models.SessionKey {
	record := models.NewSessionRecord(
		models.SessionKey{PrincipalID: principalID, Provider: "cognito"},
		models.TokenBundle{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    expiresAt,
		}, "sub")
	store.Put(record)
	return record.Key
}

func TestSweep_RemovesOnlyRecordsPastGrace(t *testing.T) {
	store := repository.NewSessionStore()
	sweeper := NewExpirySweeper(store, nil, sweeperTestLogger(), SweeperConfig{
		Interval: time.Hour,
		Grace:    2 * time.Minute,
	})

	active := putSweeperRecord(store, "active", time.Now().Add(time.Hour))
	inGrace := putSweeperRecord(store, "in-grace", time.Now().Add(-time.Minute))
	pastGrace := putSweeperRecord(store, "past-grace", time.Now().Add(-time.Hour))

	sweeper.Sweep()

	_, found := store.Get(active)
	assert.True(t, found)
	_, found = store.Get(inGrace)
	assert.True(t, found, "records inside the grace window survive a sweep")
	_, found = store.Get(pastGrace)
	assert.False(t, found)
}

func TestSweep_SkipsKeysWithRefreshInFlight(t *testing.T) {
	store := repository.NewSessionStore()

	busy := putSweeperRecord(store, "busy", time.Now().Add(-time.Hour))
	idle := putSweeperRecord(store, "idle", time.Now().Add(-time.Hour))

	tracker := &staticTracker{inFlight: map[models.SessionKey]bool{busy: true}}
	sweeper := NewExpirySweeper(store, tracker, sweeperTestLogger(), SweeperConfig{
		Interval: time.Hour,
		Grace:    2 * time.Minute,
	})

	sweeper.Sweep()

	_, found := store.Get(busy)
	assert.True(t, found, "in-flight keys must survive a sweep")
	_, found = store.Get(idle)
	assert.False(t, found)
}

func TestSweep_EmptyStoreIsNoOp(t *testing.T) {
	store := repository.NewSessionStore()
	sweeper := NewExpirySweeper(store, nil, sweeperTestLogger(), SweeperConfig{Interval: time.Hour})

	sweeper.Sweep()
	assert.Equal(t, 0, store.Len())
}

func TestSweeper_StartStop(t *testing.T) {
	store := repository.NewSessionStore()
	sweeper := NewExpirySweeper(store, nil, sweeperTestLogger(), SweeperConfig{
		Interval: 20 * time.Millisecond,
		Grace:    0,
	})

	putSweeperRecord(store, "expired", time.Now().Add(-time.Hour))

	sweeper.Start()
	// Double start is a no-op.
	sweeper.Start()

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond)

	sweeper.Stop()
	// Double stop is a no-op.
	sweeper.Stop()
}

func TestSweeper_RestartAfterStop(t *testing.T) {
	store := repository.NewSessionStore()
	sweeper := NewExpirySweeper(store, nil, sweeperTestLogger(), SweeperConfig{
		Interval: 20 * time.Millisecond,
		Grace:    0,
	})

	sweeper.Start()
	sweeper.Stop()

	// A restarted sweeper must keep sweeping.
	putSweeperRecord(store, "expired", time.Now().Add(-time.Hour))
	sweeper.Start()
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, time.Second, 10*time.Millisecond)
}
