// ABOUTME: This file handles configuration management for federation-hub
// ABOUTME: Loads environment variables and validates provider/directory settings

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the federation-hub service
type Config struct {
	// Service configuration
	ServiceName string
	LogLevel    string
	HTTPAddr    string

	// User directory database configuration
	Database DatabaseConfig

	// Federation provider configuration
	Provider ProviderConfig

	// Session lifecycle configuration
	Session SessionConfig

	// Kubernetes token vault configuration
	Kubernetes KubernetesConfig
}

// DatabaseConfig holds user directory connection settings
type DatabaseConfig struct {
	Backend  string // "postgres" or "memory"
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// ProviderConfig holds federation provider token endpoint settings
type ProviderConfig struct {
	Key          string // Federation provider key sessions bind to
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// SessionConfig holds session lifecycle policy settings
type SessionConfig struct {
	RenewAheadWindow time.Duration
	ExpiryGrace      time.Duration
	MaxStaleServes   int
	SweepInterval    time.Duration
	RefreshWait      time.Duration
	ExchangeTimeout  time.Duration
}

// KubernetesConfig holds token vault Secret settings
type KubernetesConfig struct {
	Enabled         bool
	Namespace       string
	VaultSecretName string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnvOrDefault("SERVICE_NAME", "federation-hub"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPAddr:    getEnvOrDefault("HTTP_ADDR", ":8080"),

		Database: DatabaseConfig{
			Backend:  getEnvOrDefault("USER_DIRECTORY_BACKEND", "postgres"),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			Name:     getEnvOrDefault("DB_NAME", "userdir"),
			User:     getEnvOrDefault("FEDERATION_HUB_DB_USER", "federation_hub_user"),
			Password: os.Getenv("FEDERATION_HUB_DB_PASSWORD"), // Required from secret
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},

		Provider: ProviderConfig{
			Key:          getEnvOrDefault("FEDERATION_PROVIDER_KEY", "cognito"),
			TokenURL:     os.Getenv("PROVIDER_TOKEN_URL"),     // Required
			ClientID:     os.Getenv("PROVIDER_CLIENT_ID"),     // Required from secret
			ClientSecret: os.Getenv("PROVIDER_CLIENT_SECRET"), // Required from secret
		},

		Kubernetes: KubernetesConfig{
			Enabled:         getEnvOrDefault("KUBERNETES_VAULT_ENABLED", "false") == "true",
			Namespace:       getEnvOrDefault("KUBERNETES_NAMESPACE", "default"),
			VaultSecretName: getEnvOrDefault("TOKEN_VAULT_SECRET_NAME", "federation-hub-token-vault"),
		},
	}

	cfg.Session = SessionConfig{
		RenewAheadWindow: getEnvDuration("SESSION_RENEW_AHEAD_SECONDS", 5*time.Minute),
		ExpiryGrace:      getEnvDuration("SESSION_EXPIRY_GRACE_SECONDS", 2*time.Minute),
		SweepInterval:    getEnvDuration("SESSION_SWEEP_INTERVAL_SECONDS", 15*time.Minute),
		RefreshWait:      getEnvDuration("REFRESH_WAIT_TIMEOUT_SECONDS", 10*time.Second),
		ExchangeTimeout:  getEnvDuration("EXCHANGE_TIMEOUT_SECONDS", 15*time.Second),
		MaxStaleServes:   getEnvInt("SESSION_MAX_STALE_SERVES", 3),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Provider.TokenURL == "" {
		return fmt.Errorf("PROVIDER_TOKEN_URL is required")
	}

	if c.Provider.ClientID == "" {
		return fmt.Errorf("PROVIDER_CLIENT_ID is required")
	}

	if c.Provider.ClientSecret == "" {
		return fmt.Errorf("PROVIDER_CLIENT_SECRET is required")
	}

	switch c.Database.Backend {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("FEDERATION_HUB_DB_PASSWORD is required for the postgres directory backend")
		}
	case "memory":
		// No directory credentials needed.
	default:
		return fmt.Errorf("unknown user directory backend: %s", c.Database.Backend)
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses a seconds-valued environment variable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getEnvInt parses an integer-valued environment variable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
