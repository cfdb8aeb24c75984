package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `env:", prefix=SERVER_"`
	MySQL     MySQLConfig     `env:", prefix=MYSQL_"`
	Redis     RedisConfig     `env:", prefix=REDIS_"`
	NATS      NATSConfig      `env:", prefix=NATS_"`
	Providers ProvidersConfig `env:", prefix=PROVIDER_"`
	Updater   UpdaterConfig   `env:", prefix=UPDATER_"`
	Security  SecurityConfig  `env:", prefix=SECURITY_"`
	Logging   LoggingConfig   `env:", prefix=LOG_"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// MySQLConfig holds MySQL configuration.
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=commodities"`
	User            string        `env:"USER, default=commodities"`
	Password        string        `env:"PASSWORD, default=commodities123"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=5"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
	LatestTTL    time.Duration `env:"LATEST_TTL, default=15m"`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
	DrainTimeout  time.Duration `env:"DRAIN_TIMEOUT, default=30s"`
}

// ProvidersConfig holds external data provider credentials and endpoints.
type ProvidersConfig struct {
	AlphaVantage AlphaVantageConfig `env:", prefix=ALPHA_VANTAGE_"`
	FRED         FREDConfig         `env:", prefix=FRED_"`
	HTTPTimeout  time.Duration      `env:"HTTP_TIMEOUT, default=30s"`
}

// AlphaVantageConfig holds Alpha Vantage specific settings.
type AlphaVantageConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL, default=https://www.alphavantage.co"`
}

// FREDConfig holds FRED specific settings.
type FREDConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL, default=https://api.stlouisfed.org/fred"`
}

// UpdaterConfig holds ingestion pipeline configuration.
type UpdaterConfig struct {
	Concurrency     int    `env:"CONCURRENCY, default=4"`
	InsertBatchSize int    `env:"INSERT_BATCH_SIZE, default=500"`
	Schedule        string `env:"SCHEDULE, default=@every 1h"`
	ScheduleEnabled bool   `env:"SCHEDULE_ENABLED, default=true"`
	OutputSize      string `env:"OUTPUT_SIZE, default=compact"`
}

// SecurityConfig holds CORS configuration for the HTTP boundary.
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
	CORSMethods []string `env:"CORS_METHODS, default=GET,POST,OPTIONS"`
	CORSHeaders []string `env:"CORS_HEADERS, default=*"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// DSN builds the MySQL data source name.
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Addr returns the host:port address for Redis.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
