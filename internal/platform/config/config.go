package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Detection modes.
const (
	DetectionSync  = "sync"
	DetectionAsync = "async"
)

// Config is the full process configuration, parsed from the environment.
type Config struct {
	Server    Server          `envPrefix:"LEDGER_"`
	Log       LogConfig       `envPrefix:"LEDGER_LOG_"`
	Auth      AuthConfig      `envPrefix:"LEDGER_JWT_"`
	Storage   StorageConfig   `envPrefix:"LEDGER_"`
	Detection DetectionConfig `envPrefix:"LEDGER_DETECTION_"`
	Expiry    ExpiryConfig    `envPrefix:"LEDGER_EXPIRY_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Cache     CacheConfig     `envPrefix:"LEDGER_CACHE_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Outbox    OutboxConfig    `envPrefix:"OUTBOX_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type AuthConfig struct {
	// Use the default for development only; override in production.
	SigningKey string `env:"SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string `env:"ISSUER" envDefault:"rightsledger"`
	Audience   string `env:"AUDIENCE" envDefault:"rightsledger-api"`
}

type StorageConfig struct {
	Driver      string        `env:"STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"rightsledger.db"`
	DatabaseURL string        `env:"DATABASE_URL"`
	TxTimeout   time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"2s"`
	MaxOpenConn int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
}

type DetectionConfig struct {
	Mode          string        `env:"MODE" envDefault:"sync"`
	Workers       int           `env:"WORKERS" envDefault:"2"`
	QueueSize     int           `env:"QUEUE_SIZE" envDefault:"256"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"15m"`
	MarkDisputed  bool          `env:"MARK_DISPUTED" envDefault:"false"`
}

type ExpiryConfig struct {
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"500"`
}

// RedisConfig configures the optional read cache connection.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

type CacheConfig struct {
	TTL             time.Duration `env:"TTL" envDefault:"5m"`
	BreakerFailures int           `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"BREAKER_COOLDOWN" envDefault:"10s"`
}

type KafkaConfig struct {
	Brokers           []string `env:"BROKERS" envSeparator:","`
	Topic             string   `env:"TOPIC" envDefault:"ownership-events"`
	Partitions        int32    `env:"PARTITIONS" envDefault:"6"`
	ReplicationFactor int16    `env:"REPLICATION_FACTOR" envDefault:"1"`
}

type OutboxConfig struct {
	RelayInterval time.Duration `env:"RELAY_INTERVAL" envDefault:"1s"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"100"`
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the process cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("LEDGER_DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Detection.Mode {
	case DetectionSync, DetectionAsync:
	default:
		return fmt.Errorf("unknown detection mode %q", c.Detection.Mode)
	}
	if c.Storage.TxTimeout <= 0 {
		return fmt.Errorf("LEDGER_TX_TIMEOUT must be positive")
	}
	return nil
}
