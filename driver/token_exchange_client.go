package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"federation-hub/models"
)

// Token exchange error types for caller-side classification. The first three
// mean the refresh token itself is unusable; the last two are transient.
var (
	ErrInvalidRefreshToken = errors.New("refresh token is invalid or expired")
	ErrTokenRevoked        = errors.New("refresh token has been revoked")
	ErrInvalidGrant        = errors.New("invalid grant type or parameters")
	ErrRateLimited         = errors.New("token endpoint rate limit exceeded")
	ErrTemporaryFailure    = errors.New("temporary token endpoint failure")
)

// IsRefreshDenial reports whether err means the provider explicitly rejected
// the refresh token, i.e. the session cannot be renewed with it.
func IsRefreshDenial(err error) bool {
	return errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrInvalidGrant)
}

// tokenErrorResponse represents an RFC 6749 error payload from the provider.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

// TokenExchangeClient exchanges a refresh token against the federation
// provider's token endpoint for a fresh token bundle.
type TokenExchangeClient struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewTokenExchangeClient creates a client for the provider's token endpoint.
func NewTokenExchangeClient(clientID, clientSecret, tokenURL string, logger *slog.Logger) *TokenExchangeClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenExchangeClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		logger:       logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   2,
			},
		},
	}
}

// Exchange performs a refresh_token grant and returns the provider's response.
func (c *TokenExchangeClient) Exchange(ctx context.Context, refreshToken string) (*models.TokenExchangeResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token exchange request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "federation-hub/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemporaryFailure, err)
	}
	defer resp.Body.Close()

	// Check for HTTP errors before parsing JSON.
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, c.classifyFailure(resp, body)
	}

	var tokenResponse models.TokenExchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	c.logger.Info("token exchange successful",
		"expires_in_seconds", tokenResponse.ExpiresIn,
		"has_rotated_refresh_token", tokenResponse.RefreshToken != "")

	return &tokenResponse, nil
}

// classifyFailure maps a non-200 token endpoint response to a sentinel error.
// Provider error text is logged here and never forwarded verbatim, since it
// may leak configuration details.
func (c *TokenExchangeClient) classifyFailure(resp *http.Response, body []byte) error {
	var oauthErr tokenErrorResponse
	parsed := json.Unmarshal(body, &oauthErr) == nil

	c.logger.Error("token exchange failed",
		"status_code", resp.StatusCode,
		"oauth2_error", oauthErr.Error,
		"description", oauthErr.ErrorDescription)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if parsed && oauthErr.Error == "invalid_grant" {
			return ErrInvalidRefreshToken
		}
		return fmt.Errorf("%w: HTTP %d", ErrInvalidRefreshToken, resp.StatusCode)

	case http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrTokenRevoked, resp.StatusCode)

	case http.StatusBadRequest:
		if parsed && oauthErr.Error == "invalid_grant" {
			return ErrInvalidRefreshToken
		}
		return fmt.Errorf("%w: HTTP %d", ErrInvalidGrant, resp.StatusCode)

	case http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		c.logger.Warn("token endpoint rate limited", "retry_after", retryAfter)
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, retryAfter)

	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrTemporaryFailure, resp.StatusCode)

	default:
		return fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}
}

// SetHTTPClient allows injecting a custom HTTP client (useful for testing).
func (c *TokenExchangeClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetTimeout sets the HTTP client timeout.
func (c *TokenExchangeClient) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}
