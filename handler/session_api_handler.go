// ABOUTME: Internal ops API handler - session status, invalidation, metrics
// ABOUTME: Never exposes token material; provider errors never leave as-is

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"federation-hub/models"
	"federation-hub/service"
)

// SessionManager is the lifecycle surface the ops API needs.
type SessionManager interface {
	SessionStatus(principalID, provider string) models.SessionStatus
	InvalidateSession(ctx context.Context, principalID, provider string)
}

// MetricsSource provides refresh coordinator metrics.
type MetricsSource interface {
	Metrics() service.CoordinatorMetrics
}

// RateLimiter guards the ops endpoints.
type RateLimiter interface {
	IsAllowed(clientIP string, endpoint string) bool
	RecordRequest(clientIP string, endpoint string)
}

// SessionAPIHandler serves the internal ops endpoints.
type SessionAPIHandler struct {
	sessions    SessionManager
	metrics     MetricsSource
	rateLimiter RateLimiter
	logger      *slog.Logger
}

// NewSessionAPIHandler creates the ops API handler.
func NewSessionAPIHandler(sessions SessionManager, metrics MetricsSource, rateLimiter RateLimiter, logger *slog.Logger) *SessionAPIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionAPIHandler{
		sessions:    sessions,
		metrics:     metrics,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// Routes builds the ops API mux.
func (h *SessionAPIHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.HandleHealth)
	mux.HandleFunc("/v1/session/status", h.HandleSessionStatus)
	mux.HandleFunc("/v1/session/invalidate", h.HandleInvalidateSession)
	mux.HandleFunc("/v1/metrics", h.HandleMetrics)
	return mux
}

// HandleHealth serves liveness checks.
func (h *SessionAPIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.setSecurityHeaders(w)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleSessionStatus reports the observable state of one session.
func (h *SessionAPIHandler) HandleSessionStatus(w http.ResponseWriter, r *http.Request) {
	h.setSecurityHeaders(w)

	if r.Method != http.MethodGet {
		h.respondWithError(w, "METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.allow(w, r, "/v1/session/status") {
		return
	}

	principalID := r.URL.Query().Get("principal_id")
	provider := r.URL.Query().Get("provider")
	if principalID == "" || provider == "" {
		h.respondWithError(w, "INVALID_REQUEST", "principal_id and provider are required", http.StatusBadRequest)
		return
	}

	status := h.sessions.SessionStatus(principalID, provider)
	h.respondWithJSON(w, http.StatusOK, models.StatusResponse{
		Status:    "ok",
		Session:   status,
		Timestamp: time.Now().UTC(),
	})
}

// HandleInvalidateSession explicitly invalidates one session.
func (h *SessionAPIHandler) HandleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	h.setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		h.respondWithError(w, "METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.allow(w, r, "/v1/session/invalidate") {
		return
	}

	var req models.InvalidateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, "INVALID_REQUEST", "Malformed request body", http.StatusBadRequest)
		return
	}
	if req.PrincipalID == "" || req.Provider == "" {
		h.respondWithError(w, "INVALID_REQUEST", "principal_id and provider are required", http.StatusBadRequest)
		return
	}

	h.sessions.InvalidateSession(r.Context(), req.PrincipalID, req.Provider)

	h.logger.Info("session invalidated via ops API",
		"principal_id", req.PrincipalID,
		"provider", req.Provider,
		"client_ip", getClientIP(r))

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// HandleMetrics exposes refresh coordinator metrics.
func (h *SessionAPIHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.setSecurityHeaders(w)

	if r.Method != http.MethodGet {
		h.respondWithError(w, "METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"metrics":   h.metrics.Metrics(),
		"timestamp": time.Now().UTC(),
	})
}

// allow applies rate limiting, writing the 429 response on rejection.
func (h *SessionAPIHandler) allow(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if h.rateLimiter == nil {
		return true
	}

	clientIP := getClientIP(r)
	if !h.rateLimiter.IsAllowed(clientIP, endpoint) {
		h.respondWithError(w, "RATE_LIMITED", "Too many requests", http.StatusTooManyRequests)
		return false
	}
	h.rateLimiter.RecordRequest(clientIP, endpoint)
	return true
}

func (h *SessionAPIHandler) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Cache-Control", "no-store")
}

func (h *SessionAPIHandler) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *SessionAPIHandler) respondWithError(w http.ResponseWriter, code, message string, status int) {
	h.respondWithJSON(w, status, models.ErrorResponse{
		Status:    "error",
		ErrorCode: code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// getClientIP extracts the client address, honoring forwarding headers set
// by the in-cluster proxy.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
