package repository

import (
	"context"
	"sync"

	"federation-hub/models"
)

// InMemoryUserDirectoryRepository is a map-backed UserDirectoryRepository for
// tests and single-node deployments without a directory database.
type InMemoryUserDirectoryRepository struct {
	mu      sync.RWMutex
	entries map[models.SessionKey]models.FederationMetadata
}

// NewInMemoryUserDirectoryRepository creates an empty in-memory directory.
func NewInMemoryUserDirectoryRepository() *InMemoryUserDirectoryRepository {
	return &InMemoryUserDirectoryRepository{
		entries: make(map[models.SessionKey]models.FederationMetadata),
	}
}

func (r *InMemoryUserDirectoryRepository) ReadFederationMetadata(_ context.Context, principalID, provider string) (*models.FederationMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, found := r.entries[models.SessionKey{PrincipalID: principalID, Provider: provider}]
	if !found {
		return nil, ErrMetadataNotFound
	}
	copied := meta
	return &copied, nil
}

func (r *InMemoryUserDirectoryRepository) WriteFederationMetadata(_ context.Context, meta *models.FederationMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[models.SessionKey{PrincipalID: meta.PrincipalID, Provider: meta.Provider}] = *meta
	return nil
}

func (r *InMemoryUserDirectoryRepository) ClearFederationMetadata(_ context.Context, principalID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, models.SessionKey{PrincipalID: principalID, Provider: provider})
	return nil
}

// InMemoryTokenVaultRepository is a map-backed TokenVaultRepository for tests
// and deployments without a Kubernetes secret store.
type InMemoryTokenVaultRepository struct {
	mu      sync.RWMutex
	bundles map[models.SessionKey]models.TokenBundle
}

// NewInMemoryTokenVaultRepository creates an empty in-memory vault.
func NewInMemoryTokenVaultRepository() *InMemoryTokenVaultRepository {
	return &InMemoryTokenVaultRepository{
		bundles: make(map[models.SessionKey]models.TokenBundle),
	}
}

func (r *InMemoryTokenVaultRepository) GetBundle(_ context.Context, key models.SessionKey) (*models.TokenBundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bundle, found := r.bundles[key]
	if !found {
		return nil, ErrBundleNotFound
	}
	copied := bundle
	return &copied, nil
}

func (r *InMemoryTokenVaultRepository) SaveBundle(_ context.Context, key models.SessionKey, bundle models.TokenBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bundles[key] = bundle
	return nil
}

func (r *InMemoryTokenVaultRepository) DeleteBundle(_ context.Context, key models.SessionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bundles, key)
	return nil
}
