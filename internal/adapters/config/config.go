package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"rwaledger/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ClickHouse    ClickHouseConfig
	Solana        SolanaConfig
	Ledger        LedgerConfig
	Access        AccessConfig
	Auth          AuthConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"rwaledger"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type HTTPConfig struct {
	Addr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
	Migrate  bool   `envconfig:"POSTGRES_MIGRATE" default:"true"`

	ConnectRetries int `envconfig:"POSTGRES_CONNECT_RETRIES" default:"5"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig is optional; an empty host falls back to in-process locks and no stats cache.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Prefix   string `envconfig:"REDIS_KEY_PREFIX" default:"rwaledger:"` // shared instances keep deployments apart
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"rwaledger"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"ledger"`
}

func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// SolanaConfig configures the settlement network. An empty RPC URL selects the
// simulated adapter (development only).
type SolanaConfig struct {
	RPCURL            string `envconfig:"SOLANA_RPC_URL"`
	TreasuryKey       string `envconfig:"SOLANA_TREASURY_PRIVATE_KEY"` // base58, pays fees and holds unissued supply
	KeyEncryptionKey  string `envconfig:"SOLANA_KEY_ENCRYPTION_KEY"`   // when set, TreasuryKey is sealed with pkg/crypto
	CurrencyMint      string `envconfig:"SOLANA_CURRENCY_MINT"`        // SPL mint used for dividend payouts
	CurrencyDecimals  uint8  `envconfig:"SOLANA_CURRENCY_DECIMALS" default:"6"`
	TokenDecimals     uint8  `envconfig:"SOLANA_TOKEN_DECIMALS" default:"0"`
	RequestsPerMinute int    `envconfig:"SOLANA_REQUESTS_PER_MINUTE" default:"600"`
}

func (c SolanaConfig) Enabled() bool {
	return c.RPCURL != ""
}

type LedgerConfig struct {
	SettlementTimeout     time.Duration `envconfig:"LEDGER_SETTLEMENT_TIMEOUT" default:"20s"`
	SettlementMaxAttempts int           `envconfig:"LEDGER_SETTLEMENT_MAX_ATTEMPTS" default:"5"`
	CurrencyScale         int32         `envconfig:"LEDGER_CURRENCY_SCALE" default:"6"` // decimal places of the payout currency
	ConflictRetries       int           `envconfig:"LEDGER_CONFLICT_RETRIES" default:"5"`
	ExecuteParallelism    int           `envconfig:"LEDGER_EXECUTE_PARALLELISM" default:"8"`
	StatsCacheTTL         time.Duration `envconfig:"LEDGER_STATS_CACHE_TTL" default:"30s"`
	LaunchLockTTL         time.Duration `envconfig:"LEDGER_LAUNCH_LOCK_TTL" default:"2m"`
}

// AccessConfig lists the actors holding elevated roles.
type AccessConfig struct {
	SuperAdmins    []string `envconfig:"ACCESS_SUPER_ADMINS"`
	PlatformAdmins []string `envconfig:"ACCESS_PLATFORM_ADMINS"`
	PoolAdmins     []string `envconfig:"ACCESS_POOL_ADMINS"`
	Admins         []string `envconfig:"ACCESS_ADMINS"`
}

// AuthConfig enables bearer token authentication of API actors. Without a
// secret the API trusts the X-Actor-ID header set by the gateway.
type AuthConfig struct {
	JWTSecret   string        `envconfig:"AUTH_JWT_SECRET"`
	JWTIssuer   string        `envconfig:"AUTH_JWT_ISSUER" default:"rwaledger"`
	JWTDuration time.Duration `envconfig:"AUTH_JWT_DURATION" default:"24h"`
}

func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

type TelegramConfig struct {
	BotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	AlertChatID int64  `envconfig:"TELEGRAM_ALERT_CHAT_ID"`
}

func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.AlertChatID != 0
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	ReconcileInterval   time.Duration `envconfig:"WORKER_RECONCILE_INTERVAL" default:"1m"`
	ReconcileStaleAfter time.Duration `envconfig:"WORKER_RECONCILE_STALE_AFTER" default:"2m"` // pending rows older than this are retried
	ReconcileBatchSize  int           `envconfig:"WORKER_RECONCILE_BATCH_SIZE" default:"100"`
	RevalueInterval     time.Duration `envconfig:"WORKER_REVALUE_INTERVAL" default:"15m"`
	ReconcileEnabled    bool          `envconfig:"WORKER_RECONCILE_ENABLED" default:"true"`
	RevalueEnabled      bool          `envconfig:"WORKER_REVALUE_ENABLED" default:"true"`
	MaxFailures         int           `envconfig:"WORKER_MAX_CONSECUTIVE_FAILURES" default:"5"` // readiness fails past this
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
