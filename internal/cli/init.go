// Package cli provides common initialization shared by the billingsync
// commands.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/joho/godotenv"

	"billingsync/internal/config"
	"billingsync/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads configuration from path (or the default locations) and
// validates it.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger initializes structured logging from the configuration and
// installs it as the default logger.
func SetupLogger(cfg *config.Config) *log.Logger {
	return log.Setup(cfg.LogLevel, cfg.LogFormat)
}

// RunUntilDone runs fn until it returns or ctx is cancelled. On cancellation
// stop is called with a context bounded by timeout, and fn's result is
// awaited. Errors equal to ignore are not reported.
func RunUntilDone(ctx context.Context, logger *log.Logger, timeout time.Duration, fn func() error, stop func(context.Context) error, ignore error) error {
	errc := make(chan error, 1)
	go func() { errc <- fn() }()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, ignore) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stop(stopCtx); err != nil {
		logger.Warn("Shutdown did not complete cleanly", "error", err)
	}

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, ignore) && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("Shutdown complete")
	case <-stopCtx.Done():
		logger.Warn("Shutdown timeout reached")
	}
	return nil
}
