package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config se arma solo desde variables de entorno.
type Config struct {
	Port     string
	LogLevel string
	APIBase  string
	APIKey   string
	Database string
	RedisURL string
	QueueDir string

	MaxAttempts    int
	FlushAttempts  int
	RequestTimeout time.Duration
	BackoffBase    time.Duration
	FlushInterval  time.Duration
	StartOffline   bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		APIBase:  os.Getenv("SYNC_API_BASE_URL"),
		APIKey:   os.Getenv("SYNC_API_KEY"),
		Database: os.Getenv("DATABASE_URL"),
		RedisURL: os.Getenv("REDIS_URL"),
		QueueDir: getEnv("QUEUE_DIR", "./data"),
	}

	if cfg.APIBase == "" {
		return nil, errors.New("SYNC_API_BASE_URL is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	var err error
	if cfg.MaxAttempts, err = getInt("SYNC_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.FlushAttempts, err = getInt("SYNC_FLUSH_ATTEMPTS", 2); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("SYNC_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.BackoffBase, err = getDuration("SYNC_BACKOFF_BASE", time.Second); err != nil {
		return nil, err
	}
	if cfg.FlushInterval, err = getDuration("SYNC_FLUSH_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.StartOffline, err = getBool("SYNC_START_OFFLINE", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
