// ABOUTME: This file defines domain models for federated session management
// ABOUTME: Handles token bundles, session records, and expiry/renew-ahead logic

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionKey identifies one federated session: a principal may hold at most
// one active session per identity provider.
type SessionKey struct {
	PrincipalID string `json:"principal_id"`
	Provider    string `json:"provider"`
}

// String renders the key in a stable form usable for singleflight grouping
// and as a secret data key.
func (k SessionKey) String() string {
	return k.PrincipalID + "/" + k.Provider
}

// TokenBundle represents the provider-issued token set with expiry metadata.
// RefreshToken is sensitive and must never reach the user directory.
type TokenBundle struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresIn    int       `json:"expires_in"` // Seconds until expiration as declared by the provider
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"` // IssuedAt + ExpiresIn, advanced only by a successful refresh
}

// TokenExchangeResponse represents the token endpoint response payload.
// Anything the provider adds beyond these fields is treated as opaque.
type TokenExchangeResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"` // Present only when the provider rotates it
	Scope        string `json:"scope,omitempty"`
}

// NewTokenBundle builds a TokenBundle from a token endpoint response.
// When the response carries no refresh token the existing one is kept,
// since most providers rotate refresh tokens only occasionally.
func NewTokenBundle(response TokenExchangeResponse, existingRefreshToken string) TokenBundle {
	now := time.Now()

	refreshToken := response.RefreshToken
	if refreshToken == "" {
		refreshToken = existingRefreshToken
	}

	return TokenBundle{
		AccessToken:  response.AccessToken,
		IDToken:      response.IDToken,
		RefreshToken: refreshToken,
		TokenType:    response.TokenType,
		Scope:        response.Scope,
		ExpiresIn:    response.ExpiresIn,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Duration(response.ExpiresIn) * time.Second),
	}
}

// IsExpired checks if the bundle is past its declared expiry.
func (b TokenBundle) IsExpired() bool {
	return time.Now().After(b.ExpiresAt)
}

// NeedsRefresh checks whether the bundle is inside the renew-ahead window.
func (b TokenBundle) NeedsRefresh(window time.Duration) bool {
	return time.Now().Add(window).After(b.ExpiresAt)
}

// TimeUntilExpiry returns the duration until bundle expiry.
func (b TokenBundle) TimeUntilExpiry() time.Duration {
	return time.Until(b.ExpiresAt)
}

// IsUsable checks that the bundle carries an access token and is not expired.
func (b TokenBundle) IsUsable() bool {
	return b.AccessToken != "" && !b.IsExpired()
}

// SessionRecord is the unit held by the session store.
type SessionRecord struct {
	ID                  uuid.UUID   `json:"id"`
	Key                 SessionKey  `json:"key"`
	Bundle              TokenBundle `json:"bundle"`
	ProviderIdentityRef string      `json:"provider_identity_ref,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	LastRefreshedAt     time.Time   `json:"last_refreshed_at"`
	Valid               bool        `json:"valid"`

	// StaleServes counts consecutive times this record was handed out after a
	// transient refresh failure. Reset by a successful refresh.
	StaleServes int `json:"stale_serves,omitempty"`
}

// NewSessionRecord creates an active record for a freshly established session.
func NewSessionRecord(key SessionKey, bundle TokenBundle, providerIdentityRef string) *SessionRecord {
	now := time.Now()
	return &SessionRecord{
		ID:                  uuid.New(),
		Key:                 key,
		Bundle:              bundle,
		ProviderIdentityRef: providerIdentityRef,
		CreatedAt:           now,
		LastRefreshedAt:     now,
		Valid:               true,
	}
}

// Refreshed returns a copy of the record carrying a renewed bundle.
// Identity fields are immutable across refreshes.
func (r *SessionRecord) Refreshed(bundle TokenBundle) *SessionRecord {
	next := *r
	next.Bundle = bundle
	next.LastRefreshedAt = time.Now()
	next.Valid = true
	next.StaleServes = 0
	return &next
}

// IsExpired reports whether the record's bundle is past expiry.
func (r *SessionRecord) IsExpired() bool {
	return r.Bundle.IsExpired()
}

// ExpiredBeyond reports whether the record has been expired for longer than
// the grace window.
func (r *SessionRecord) ExpiredBeyond(graceWindow time.Duration) bool {
	return time.Now().After(r.Bundle.ExpiresAt.Add(graceWindow))
}

// Validate checks structural integrity before the record enters the store.
func (r *SessionRecord) Validate() error {
	if r.Key.PrincipalID == "" {
		return fmt.Errorf("session record requires a principal ID")
	}
	if r.Key.Provider == "" {
		return fmt.Errorf("session record requires a federation provider key")
	}
	if r.Bundle.AccessToken == "" {
		return fmt.Errorf("session record requires an access token")
	}
	return nil
}

// FederationMetadata is the non-sensitive per-principal view synced to the
// user directory. It never carries token material.
type FederationMetadata struct {
	PrincipalID         string    `json:"principal_id"`
	Provider            string    `json:"provider"`
	ProviderIdentityRef string    `json:"provider_identity_ref,omitempty"`
	LastSyncAt          time.Time `json:"last_sync_at"`
}
