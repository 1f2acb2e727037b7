// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SchedulerConfig struct {
	PollInterval        time.Duration
	BatchSize           int
	WorkerCount         int
	LockKey             string
	LockTTL             time.Duration
	MaxLookaheadDays    int
	MarkRemainderMissed bool
}

type Config struct {
	Debug     bool
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
}

// Load reads the environment, applies defaults and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Debug: envBool("SCHEDULER_DEBUG", false),
		Server: ServerConfig{
			Host: envString("SERVER_HOST", "0.0.0.0"),
			Port: envInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     envString("DB_HOST", "localhost"),
			Port:     envInt("DB_PORT", 5432),
			User:     envString("DB_USER", "scheduler"),
			Password: envString("DB_PASSWORD", ""),
			Name:     envString("DB_NAME", "scheduler"),
			SSLMode:  envString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", "localhost:6379"),
			Password: envString("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Scheduler: SchedulerConfig{
			PollInterval:        envDuration("SCHEDULER_POLL_INTERVAL", 10*time.Second),
			BatchSize:           envInt("SCHEDULER_BATCH_SIZE", 10),
			WorkerCount:         envInt("SCHEDULER_WORKER_COUNT", 10),
			LockKey:             envString("SCHEDULER_LOCK_KEY", "scheduler:poll-lock"),
			LockTTL:             envDuration("SCHEDULER_LOCK_TTL", 30*time.Second),
			MaxLookaheadDays:    envInt("SCHEDULER_MAX_LOOKAHEAD_DAYS", 366),
			MarkRemainderMissed: envBool("SCHEDULER_MARK_REMAINDER_MISSED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Scheduler.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Scheduler.LockTTL < c.Scheduler.PollInterval {
		return fmt.Errorf("lock ttl (%s) must not be shorter than the poll interval (%s)",
			c.Scheduler.LockTTL, c.Scheduler.PollInterval)
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
