package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the jobsync server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// QueueConfig selects and configures the job queue adapter.
type QueueConfig struct {
	Driver      string
	Servers     []string
	Timeout     time.Duration
	RedisPrefix string
}

// ReconcileConfig controls batch sizes and the background refresh loop.
type ReconcileConfig struct {
	Interval     time.Duration
	BatchSize    int
	PageSize     int
	Workers      int
	LookupWindow int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

var validDatabaseDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
}

var validQueueDrivers = map[string]bool{
	"gearman": true,
	"redis":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; it never
// overrides variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("JOBSYNC_PORT", 8080),
			Env:  envString("JOBSYNC_ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:          envString("DATABASE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Driver:      envString("QUEUE_DRIVER", "gearman"),
			Servers:     envList("QUEUE_SERVERS", []string{"127.0.0.1:4730"}),
			Timeout:     envDuration("QUEUE_TIMEOUT", 5*time.Second),
			RedisPrefix: envString("QUEUE_REDIS_PREFIX", "queue:status"),
		},
		Reconcile: ReconcileConfig{
			Interval:     envDuration("RECONCILE_INTERVAL", 30*time.Second),
			BatchSize:    envInt("RECONCILE_BATCH_SIZE", 100),
			PageSize:     envInt("RECONCILE_PAGE_SIZE", 25),
			Workers:      envInt("RECONCILE_WORKERS", 4),
			LookupWindow: envInt("RECONCILE_LOOKUP_WINDOW", 100),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDatabaseDrivers[c.Database.Driver] {
		return fmt.Errorf("DATABASE_DRIVER must be one of postgres, sqlite; got %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validQueueDrivers[c.Queue.Driver] {
		return fmt.Errorf("QUEUE_DRIVER must be one of gearman, redis; got %q", c.Queue.Driver)
	}
	if c.Queue.Driver == "gearman" && len(c.Queue.Servers) == 0 {
		return fmt.Errorf("QUEUE_SERVERS is required when QUEUE_DRIVER is gearman")
	}
	if c.Queue.Timeout <= 0 {
		return fmt.Errorf("QUEUE_TIMEOUT must be positive, got %s", c.Queue.Timeout)
	}

	if c.Reconcile.Interval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative, got %s", c.Reconcile.Interval)
	}
	if c.Reconcile.BatchSize <= 0 {
		return fmt.Errorf("RECONCILE_BATCH_SIZE must be positive, got %d", c.Reconcile.BatchSize)
	}
	if c.Reconcile.PageSize <= 0 {
		return fmt.Errorf("RECONCILE_PAGE_SIZE must be positive, got %d", c.Reconcile.PageSize)
	}
	if c.Reconcile.Workers <= 0 {
		return fmt.Errorf("RECONCILE_WORKERS must be positive, got %d", c.Reconcile.Workers)
	}
	if c.Reconcile.LookupWindow <= 0 {
		return fmt.Errorf("RECONCILE_LOOKUP_WINDOW must be positive, got %d", c.Reconcile.LookupWindow)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
