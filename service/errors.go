package service

import "errors"

// Session lifecycle errors surfaced to callers.
var (
	// ErrSessionNotFound means no session exists and none could be
	// reconstructed; the caller must redirect to full re-authentication.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRefreshDenied means the provider explicitly rejected the refresh
	// token; the session has been invalidated and cannot be renewed.
	ErrRefreshDenied = errors.New("session refresh denied by provider")

	// ErrRefreshTransient means the refresh failed for a retryable reason
	// (timeout, 5xx, rate limit). The session record is retained and the
	// next access attempts the refresh again.
	ErrRefreshTransient = errors.New("transient session refresh failure")

	// ErrRefreshWaitTimeout means a caller's bounded wait on an in-flight
	// refresh elapsed. The in-flight operation keeps running for others.
	ErrRefreshWaitTimeout = errors.New("timed out waiting for in-flight refresh")
)
