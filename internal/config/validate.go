package config

import (
	"fmt"
	"time"
)

// Validate enforces configuration validation rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateServer(cfg); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := validateGeoloc(cfg); err != nil {
		return fmt.Errorf("geoloc validation failed: %w", err)
	}

	if err := validateSync(cfg); err != nil {
		return fmt.Errorf("sync validation failed: %w", err)
	}

	if err := validateTelemetry(cfg); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}

	if err := validateAuth(cfg); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	return nil
}

// validateServer validates HTTP server parameters.
func validateServer(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if cfg.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Server.IdleTimeout <= 0 {
		return fmt.Errorf("server idle timeout must be positive, got %v", cfg.Server.IdleTimeout)
	}

	return nil
}

// validateGeoloc validates location acquisition parameters.
func validateGeoloc(cfg *Config) error {
	if cfg.Geoloc.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", cfg.Geoloc.PollInterval)
	}
	if cfg.Geoloc.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll interval %v is below the 100ms floor", cfg.Geoloc.PollInterval)
	}
	if cfg.Geoloc.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire timeout must be positive, got %v", cfg.Geoloc.AcquireTimeout)
	}
	if cfg.Geoloc.MaximumAge < 0 {
		return fmt.Errorf("maximum age must be non-negative, got %v", cfg.Geoloc.MaximumAge)
	}
	if cfg.Geoloc.MinDistanceM < 0 {
		return fmt.Errorf("min distance must be non-negative, got %v", cfg.Geoloc.MinDistanceM)
	}

	return nil
}

// validateSync validates source synchronization parameters.
func validateSync(cfg *Config) error {
	if cfg.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.Attempts < 1 {
		return fmt.Errorf("sync attempts must be >= 1, got %d", cfg.Sync.Attempts)
	}
	if cfg.Sync.HTTPTimeout <= 0 {
		return fmt.Errorf("sync http timeout must be positive, got %v", cfg.Sync.HTTPTimeout)
	}
	for _, source := range cfg.Sync.Sources {
		if source == "" {
			return fmt.Errorf("sync sources must not contain empty names")
		}
	}

	return nil
}

// validateTelemetry validates event stream parameters.
func validateTelemetry(cfg *Config) error {
	if cfg.Telemetry.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", cfg.Telemetry.EventBufferSize)
	}
	if cfg.Telemetry.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", cfg.Telemetry.HeartbeatInterval)
	}

	// Jitter must be non-negative and ≤ 50% of interval
	maxJitter := cfg.Telemetry.HeartbeatInterval / 2
	if cfg.Telemetry.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", cfg.Telemetry.HeartbeatJitter)
	}
	if cfg.Telemetry.HeartbeatJitter > maxJitter {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", cfg.Telemetry.HeartbeatJitter, cfg.Telemetry.HeartbeatInterval)
	}

	return nil
}

// validateAuth validates JWT verification parameters.
func validateAuth(cfg *Config) error {
	if !cfg.Auth.Enabled {
		return nil
	}

	switch cfg.Auth.Algorithm {
	case "HS256":
		if cfg.Auth.SecretKey == "" {
			return fmt.Errorf("HS256 requires a secret key")
		}
	case "RS256":
		if cfg.Auth.PublicKeyPEM == "" && cfg.Auth.JWKSURL == "" {
			return fmt.Errorf("RS256 requires a public key PEM or a JWKS URL")
		}
	default:
		return fmt.Errorf("unsupported auth algorithm: %s", cfg.Auth.Algorithm)
	}

	return nil
}
