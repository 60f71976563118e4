//go:generate mockgen -source=interfaces.go -destination=../mocks/repository_mocks.go -package=mocks UserDirectoryRepository,TokenVaultRepository

// ABOUTME: Repository layer common interfaces for clean architecture
// ABOUTME: Defines contracts for user directory and token vault access

package repository

import (
	"context"
	"fmt"

	"federation-hub/models"
)

// Repository error definitions
var (
	ErrMetadataNotFound = fmt.Errorf("federation metadata not found in user directory")
	ErrBundleNotFound   = fmt.Errorf("token bundle not found in vault")
)

// UserDirectoryRepository persists non-sensitive per-principal federation
// metadata. It never sees refresh tokens; writes are best-effort from the
// caller's point of view.
type UserDirectoryRepository interface {
	// ReadFederationMetadata retrieves the metadata for one (principal, provider)
	// pair, or ErrMetadataNotFound.
	ReadFederationMetadata(ctx context.Context, principalID, provider string) (*models.FederationMetadata, error)

	// WriteFederationMetadata upserts the metadata row.
	WriteFederationMetadata(ctx context.Context, meta *models.FederationMetadata) error

	// ClearFederationMetadata removes the metadata row. Idempotent.
	ClearFederationMetadata(ctx context.Context, principalID, provider string) error
}

// TokenVaultRepository persists token bundles outside the user directory so
// sessions can be reconstructed lazily after a process restart.
type TokenVaultRepository interface {
	// GetBundle retrieves the stored bundle for a session key, or ErrBundleNotFound.
	GetBundle(ctx context.Context, key models.SessionKey) (*models.TokenBundle, error)

	// SaveBundle upserts the bundle for a session key.
	SaveBundle(ctx context.Context, key models.SessionKey, bundle models.TokenBundle) error

	// DeleteBundle removes the bundle for a session key. Idempotent.
	DeleteBundle(ctx context.Context, key models.SessionKey) error
}
