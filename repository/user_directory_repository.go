// ABOUTME: PostgreSQL implementation of UserDirectoryRepository
// ABOUTME: Manages non-sensitive federation freshness metadata per principal

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"federation-hub/models"

	"github.com/google/uuid"
)

// PostgreSQLUserDirectoryRepository implements UserDirectoryRepository using
// the user directory database. Refresh tokens never pass through this layer.
type PostgreSQLUserDirectoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgreSQLUserDirectoryRepository creates a new PostgreSQL user directory repository
func NewPostgreSQLUserDirectoryRepository(db *sql.DB, logger *slog.Logger) UserDirectoryRepository {
	return &PostgreSQLUserDirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// ReadFederationMetadata retrieves metadata for one (principal, provider) pair
func (r *PostgreSQLUserDirectoryRepository) ReadFederationMetadata(ctx context.Context, principalID, provider string) (*models.FederationMetadata, error) {
	query := `
		SELECT principal_id, provider, provider_identity_ref, last_sync_at
		FROM user_federation_metadata
		WHERE principal_id = $1 AND provider = $2`

	var meta models.FederationMetadata
	var identityRef sql.NullString
	err := r.db.QueryRowContext(ctx, query, principalID, provider).Scan(
		&meta.PrincipalID,
		&meta.Provider,
		&identityRef,
		&meta.LastSyncAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMetadataNotFound
		}
		return nil, fmt.Errorf("failed to read federation metadata: %w", err)
	}

	meta.ProviderIdentityRef = identityRef.String
	return &meta, nil
}

// WriteFederationMetadata upserts the metadata row for a principal
func (r *PostgreSQLUserDirectoryRepository) WriteFederationMetadata(ctx context.Context, meta *models.FederationMetadata) error {
	query := `
		INSERT INTO user_federation_metadata (id, principal_id, provider, provider_identity_ref, last_sync_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (principal_id, provider)
		DO UPDATE SET provider_identity_ref = $4, last_sync_at = $5, updated_at = $6`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		uuid.New(),
		meta.PrincipalID,
		meta.Provider,
		meta.ProviderIdentityRef,
		meta.LastSyncAt,
		now,
	)

	if err != nil {
		r.logger.Error("Failed to write federation metadata",
			"principal_id", meta.PrincipalID,
			"provider", meta.Provider,
			"error", err)
		return fmt.Errorf("failed to write federation metadata: %w", err)
	}

	r.logger.Debug("Wrote federation metadata",
		"principal_id", meta.PrincipalID,
		"provider", meta.Provider,
		"has_identity_ref", meta.ProviderIdentityRef != "")

	return nil
}

// ClearFederationMetadata removes the metadata row for a principal. Idempotent.
func (r *PostgreSQLUserDirectoryRepository) ClearFederationMetadata(ctx context.Context, principalID, provider string) error {
	query := `
		DELETE FROM user_federation_metadata
		WHERE principal_id = $1 AND provider = $2`

	result, err := r.db.ExecContext(ctx, query, principalID, provider)
	if err != nil {
		return fmt.Errorf("failed to clear federation metadata: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil {
		r.logger.Debug("Cleared federation metadata",
			"principal_id", principalID,
			"provider", provider,
			"rows_affected", rows)
	}

	return nil
}
