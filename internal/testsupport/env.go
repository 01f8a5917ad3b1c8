package testsupport

import (
	"testing"

	"github.com/kelseyhightower/envconfig"

	"rwaledger/internal/adapters/config"
)

// Integration tests read the same variables as the service. Each loader skips
// the test when its backend is not configured.

func PostgresConfigFromEnv(t *testing.T) config.PostgresConfig {
	t.Helper()
	var cfg config.PostgresConfig
	if err := envconfig.Process("", &cfg); err != nil {
		t.Skipf("postgres integration disabled: %v", err)
	}
	cfg.MaxConns = 4
	cfg.ConnectRetries = 0
	return cfg
}

func RedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	var cfg config.RedisConfig
	if err := envconfig.Process("", &cfg); err != nil || !cfg.Enabled() {
		t.Skip("redis integration disabled: set REDIS_HOST")
	}
	return cfg
}

func ClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	var cfg config.ClickHouseConfig
	if err := envconfig.Process("", &cfg); err != nil || !cfg.Enabled() {
		t.Skip("clickhouse integration disabled: set CLICKHOUSE_HOST")
	}
	return cfg
}
