package driver

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// identityClaims is the subset of ID token claims the coordinator cares about.
type identityClaims struct {
	jwt.RegisteredClaims
}

// IdentitySubject extracts the subject claim from a provider-issued ID token.
// The token arrives over a channel the provider already authenticated, so the
// signature is not re-verified here; this is claim extraction, not validation.
func IdentitySubject(idToken string) (string, error) {
	parser := jwt.NewParser()

	claims := &identityClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return "", fmt.Errorf("failed to parse ID token: %w", err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("ID token carries no subject claim")
	}

	return claims.Subject, nil
}

// IdentityIssuer extracts the issuer claim from a provider-issued ID token.
// Used for sanity-checking that a bundle belongs to the configured provider.
func IdentityIssuer(idToken string) (string, error) {
	parser := jwt.NewParser()

	claims := &identityClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return "", fmt.Errorf("failed to parse ID token: %w", err)
	}

	return claims.Issuer, nil
}
