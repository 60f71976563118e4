// ABOUTME: Request/response payloads for the internal ops API
// ABOUTME: Session status never carries token material

package models

import "time"

// SessionStatus is the observable state of one session, safe for the ops API.
type SessionStatus struct {
	Exists              bool      `json:"exists"`
	Valid               bool      `json:"valid,omitempty"`
	ExpiresAt           time.Time `json:"expires_at,omitempty"`
	ExpiresInSeconds    int64     `json:"expires_in_seconds,omitempty"`
	NeedsRefresh        bool      `json:"needs_refresh,omitempty"`
	LastRefreshedAt     time.Time `json:"last_refreshed_at,omitempty"`
	StaleServes         int       `json:"stale_serves,omitempty"`
	ProviderIdentityRef string    `json:"provider_identity_ref,omitempty"`
}

// InvalidateSessionRequest asks the ops API to invalidate one session.
type InvalidateSessionRequest struct {
	PrincipalID string `json:"principal_id"`
	Provider    string `json:"provider"`
}

// ErrorResponse is the ops API error envelope.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse wraps a session status with an envelope timestamp.
type StatusResponse struct {
	Status    string        `json:"status"`
	Session   SessionStatus `json:"session"`
	Timestamp time.Time     `json:"timestamp"`
}
