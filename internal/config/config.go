package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	NodeEnv    string `envconfig:"NODE_ENV" default:"development"`
	InstanceID string `envconfig:"INSTANCE_ID" default:"colocacion-local"`

	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Odoo       OdooConfig
	Sync       SyncConfig
	Cache      CacheConfig
	Queue      QueueConfig
	Printer    PrinterConfig
	Optimistic OptimisticConfig
	Kafka      KafkaConfig
	Log        LogConfig
	JWT        JWTConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"3210"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database configuration.
// Host=localhost with an empty password selects embedded PostgreSQL.
type DatabaseConfig struct {
	Host     string `envconfig:"PG_HOST" default:"localhost"`
	Port     string `envconfig:"PG_PORT" default:"5432"`
	Username string `envconfig:"PG_USERNAME" default:"postgres"`
	Password string `envconfig:"PG_PASSWORD"`
	Database string `envconfig:"PG_DATABASE" default:"colocacion"`
	Quiet    bool   `envconfig:"DB_QUIET" default:"false"`

	EmbeddedDataPath string `envconfig:"PG_EMBEDDED_DATA" default:"./db_data"`
	EmbeddedPort     uint32 `envconfig:"PG_EMBEDDED_PORT" default:"5433"`
	MaxOpenConns     int    `envconfig:"PG_MAX_OPEN_CONNS" default:"50"`
}

// Embedded reports whether Connect should start its own PostgreSQL
func (c DatabaseConfig) Embedded() bool {
	return c.Host == "localhost" && c.Password == ""
}

// RedisConfig holds the ephemeral store connection
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// OdooConfig holds ERP connection settings
type OdooConfig struct {
	URL           string        `envconfig:"ODOO_URL"`
	Database      string        `envconfig:"ODOO_DB"`
	Username      string        `envconfig:"ODOO_USERNAME"`
	Password      string        `envconfig:"ODOO_PASSWORD"`
	LocationField string        `envconfig:"ODOO_LOCATION_FIELD" default:"x_location"`
	SessionTTL    time.Duration `envconfig:"ODOO_SESSION_TTL" default:"1h"`
	Timeout       time.Duration `envconfig:"ODOO_TIMEOUT" default:"30s"`
}

// CacheConfig holds adaptive product cache tuning
type CacheConfig struct {
	BaseTTL            time.Duration `envconfig:"CACHE_BASE_TTL" default:"5m"`
	FrequentTTL        time.Duration `envconfig:"CACHE_FREQUENT_TTL" default:"30m"`
	FrequencyWindow    time.Duration `envconfig:"CACHE_FREQUENCY_WINDOW" default:"24h"`
	FrequencyThreshold int64         `envconfig:"CACHE_FREQUENCY_THRESHOLD" default:"5"`
}

// QueueConfig holds print queue tuning
type QueueConfig struct {
	LeaseDuration   time.Duration `envconfig:"PRINT_LEASE" default:"5m"`
	LeaseGrace      time.Duration `envconfig:"PRINT_LEASE_GRACE" default:"60s"`
	MaxRetries      int           `envconfig:"PRINT_MAX_RETRIES" default:"3"`
	JobRetention    time.Duration `envconfig:"PRINT_JOB_RETENTION" default:"24h"`
	PollInterval    time.Duration `envconfig:"PRINT_POLL_INTERVAL" default:"2s"`
	WorkerEnabled   bool          `envconfig:"PRINT_WORKER_ENABLED" default:"true"`
	LabelRetainDays int           `envconfig:"LABEL_RETENTION_DAYS" default:"30"`
}

// PrinterConfig selects the printer sink
type PrinterConfig struct {
	Mode     string `envconfig:"PRINTER_MODE" default:"spool"` // spool, raw
	SpoolDir string `envconfig:"PRINTER_SPOOL_DIR" default:"./spool"`
	Address  string `envconfig:"PRINTER_ADDRESS"` // host:9100 for raw mode
}

// OptimisticConfig holds optimistic update tuning
type OptimisticConfig struct {
	StageTTL     time.Duration `envconfig:"OPTIMISTIC_STAGE_TTL" default:"5m"`
	HistoryTTL   time.Duration `envconfig:"UNDO_HISTORY_TTL" default:"1h"`
	HistoryLimit int           `envconfig:"UNDO_HISTORY_LIMIT" default:"10"`
	LockTTL      time.Duration `envconfig:"PRODUCT_LOCK_TTL" default:"30s"`
	ReapInterval time.Duration `envconfig:"REAP_INTERVAL" default:"30s"`
}

// KafkaConfig enables location change events when brokers are set
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"colocacion.location_changed"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// JWTConfig holds token validation settings
type JWTConfig struct {
	Secret string `envconfig:"JWT_SECRET" required:"true"`
}

// IsDevelopment reports whether the node runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.NodeEnv == "development"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Sync.applyFile(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewTestConfig returns defaults suitable for unit tests
func NewTestConfig() Config {
	return Config{
		NodeEnv:    "test",
		InstanceID: "test-instance",
		Cache: CacheConfig{
			BaseTTL:            5 * time.Minute,
			FrequentTTL:        30 * time.Minute,
			FrequencyWindow:    24 * time.Hour,
			FrequencyThreshold: 5,
		},
		Queue: QueueConfig{
			LeaseDuration:   5 * time.Minute,
			LeaseGrace:      60 * time.Second,
			MaxRetries:      3,
			JobRetention:    24 * time.Hour,
			PollInterval:    10 * time.Millisecond,
			LabelRetainDays: 30,
		},
		Optimistic: OptimisticConfig{
			StageTTL:     5 * time.Minute,
			HistoryTTL:   time.Hour,
			HistoryLimit: 10,
			LockTTL:      30 * time.Second,
			ReapInterval: 30 * time.Second,
		},
		Sync: SyncConfig{
			DefaultStrategy: "timestamp",
			Interval:        15 * time.Minute,
			MaxItems:        100,
			Freshness:       time.Hour,
			ItemDelay:       0,
			LockTTL:         30 * time.Second,
			ConflictTTL:     24 * time.Hour,
			DecisionTTL:     720 * time.Hour,
		},
		JWT: JWTConfig{Secret: "test-secret"},
	}
}
