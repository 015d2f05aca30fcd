// Package config loads all process configuration from environment
// variables (with .env support handled by the caller) into an immutable
// Config. Everything is read once at startup; nothing here is mutated at
// runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable for the daemon.
type Config struct {
	NATS       NATSConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Tasks      TaskConfig
	Thresholds Thresholds
	Monitoring MonitoringConfig
}

// NATSConfig holds queue transport settings.
type NATSConfig struct {
	URL string
}

// DatabaseConfig holds PostgreSQL connection parameters for the run store.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds cache layer connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TaskConfig holds per-task execution tuning shared by all scheduled tasks.
type TaskConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	BatchSize     int
	SoftTimeLimit time.Duration // handler context is cancelled at this point
	HardTimeLimit time.Duration // executor abandons the handler and records failure
	RecycleAfter  int           // completed tasks before a worker recycles its subscriptions
	TickInterval  time.Duration // scheduler evaluation tick
}

// MonitoringConfig names alert channels and the dispatch cooldown. Dispatch
// itself is external; the daemon only carries the configuration.
type MonitoringConfig struct {
	AlertCooldown time.Duration
	AlertChannels []string
}

// Load reads configuration from the environment. Numeric variables that
// fail to parse are startup errors, not defaults.
func Load() (*Config, error) {
	dbPort, err := envInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	batchSize, err := envInt("TASK_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}
	maxRetries, err := envInt("TASK_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	retryDelay, err := envSeconds("TASK_RETRY_DELAY", 60)
	if err != nil {
		return nil, err
	}
	softLimit, err := envSeconds("TASK_SOFT_TIME_LIMIT", 300)
	if err != nil {
		return nil, err
	}
	hardLimit, err := envSeconds("TASK_HARD_TIME_LIMIT", 600)
	if err != nil {
		return nil, err
	}
	recycleAfter, err := envInt("WORKER_RECYCLE_AFTER", 1000)
	if err != nil {
		return nil, err
	}
	tick, err := envSeconds("SCHEDULER_TICK_INTERVAL", 60)
	if err != nil {
		return nil, err
	}
	if hardLimit < softLimit {
		return nil, fmt.Errorf("TASK_HARD_TIME_LIMIT (%v) must not be below TASK_SOFT_TIME_LIMIT (%v)", hardLimit, softLimit)
	}

	cfg := &Config{
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "opspulse"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Tasks: TaskConfig{
			MaxRetries:    maxRetries,
			RetryDelay:    retryDelay,
			BatchSize:     batchSize,
			SoftTimeLimit: softLimit,
			HardTimeLimit: hardLimit,
			RecycleAfter:  recycleAfter,
			TickInterval:  tick,
		},
		Thresholds: DefaultThresholds(),
		Monitoring: MonitoringConfig{
			AlertCooldown: 5 * time.Minute,
			AlertChannels: []string{"email", "log"},
		},
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envSeconds(key string, defaultSeconds int) (time.Duration, error) {
	v, err := envInt(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}
