package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"federation-hub/config"
	"federation-hub/driver"
	"federation-hub/handler"
	"federation-hub/repository"
	"federation-hub/security"
	"federation-hub/service"
	"federation-hub/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Setup structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("Federation hub starting",
		"service", cfg.ServiceName,
		"provider", cfg.Provider.Key,
		"renew_ahead", cfg.Session.RenewAheadWindow,
		"sweep_interval", cfg.Session.SweepInterval)

	if err := run(cfg, logger); err != nil {
		logger.Error("Federation hub terminated", "error", err)
		os.Exit(1)
	}

	logger.Info("Federation hub stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	directory, closeDirectory, err := buildDirectory(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDirectory()

	vault, err := buildVault(cfg, logger)
	if err != nil {
		return err
	}

	store := repository.NewSessionStore()

	exchanger := driver.NewTokenExchangeClient(
		cfg.Provider.ClientID,
		cfg.Provider.ClientSecret,
		cfg.Provider.TokenURL,
		logger)

	// Refresh denials say nothing about token endpoint health, so they are
	// excluded from the breaker's failure count.
	breakerCfg := utils.DefaultCircuitBreakerConfig()
	breakerCfg.IsFailure = func(err error) bool {
		return !driver.IsRefreshDenial(err)
	}
	breaker := utils.NewCircuitBreaker(breakerCfg, logger)

	coordinator := service.NewRefreshCoordinator(
		store, directory, vault, exchanger, breaker, logger,
		service.RefreshCoordinatorConfig{
			ExchangeTimeout: cfg.Session.ExchangeTimeout,
			WaitTimeout:     cfg.Session.RefreshWait,
		})

	lifecycle := service.NewSessionLifecycleService(
		store, coordinator, directory, vault, logger,
		service.SessionLifecycleConfig{
			RenewAheadWindow: cfg.Session.RenewAheadWindow,
			ExpiryGrace:      cfg.Session.ExpiryGrace,
			MaxStaleServes:   cfg.Session.MaxStaleServes,
		})

	sweeper := service.NewExpirySweeper(store, coordinator, logger, service.SweeperConfig{
		Interval: cfg.Session.SweepInterval,
		Grace:    cfg.Session.ExpiryGrace,
	})
	sweeper.Start()
	defer sweeper.Stop()

	rateLimiter := security.NewMemoryRateLimiter(1000, logger)
	defer rateLimiter.Stop()

	apiHandler := handler.NewSessionAPIHandler(lifecycle, coordinator, rateLimiter, logger)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiHandler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Ops API listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return nil
}

// buildDirectory selects the user directory backend from configuration.
func buildDirectory(cfg *config.Config, logger *slog.Logger) (repository.UserDirectoryRepository, func(), error) {
	switch cfg.Database.Backend {
	case "memory":
		logger.Warn("Using in-memory user directory, metadata will not survive restarts")
		return repository.NewInMemoryUserDirectoryRepository(), func() {}, nil

	default:
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}

		logger.Info("Connected to user directory database",
			"host", cfg.Database.Host,
			"database", cfg.Database.Name)

		return repository.NewPostgreSQLUserDirectoryRepository(db, logger), func() { db.Close() }, nil
	}
}

// buildVault selects the token vault backend. With the Kubernetes vault
// disabled, bundles live in process memory and sessions cannot be
// reconstructed after a restart.
func buildVault(cfg *config.Config, logger *slog.Logger) (repository.TokenVaultRepository, error) {
	if !cfg.Kubernetes.Enabled {
		logger.Warn("Kubernetes token vault disabled, sessions will not survive restarts")
		return repository.NewInMemoryTokenVaultRepository(), nil
	}

	vault, err := repository.NewKubernetesVaultRepository(
		cfg.Kubernetes.Namespace,
		cfg.Kubernetes.VaultSecretName,
		logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Kubernetes token vault initialized",
		"namespace", cfg.Kubernetes.Namespace,
		"secret_name", cfg.Kubernetes.VaultSecretName)

	return vault, nil
}
