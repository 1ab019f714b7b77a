// Package config loads each deployable's configuration from environment
// variables into typed structs.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Common holds the settings every deployable shares.
type Common struct {
	// NATSURL is the broker address.
	NATSURL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	// OTLPEndpoint is the OpenTelemetry collector address. Empty disables
	// tracing setup.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
}

// Gateway configures the HTTP gateway.
type Gateway struct {
	Common

	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
}

// SagaService configures the saga orchestrator.
type SagaService struct {
	Common

	// SQLitePath is the saga instance database. Empty selects the
	// in-memory store, which loses in-flight instances on restart.
	SQLitePath string `env:"SAGA_DB_PATH" envDefault:""`
}

// Worker configures the auth, user, url, and mail services, which need
// nothing beyond the shared settings.
type Worker struct {
	Common
}

// Load parses environment variables into cfg.
func Load[T any](cfg *T) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	return nil
}
