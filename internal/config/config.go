package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmarchetti/streamrec/internal/params"
)

// Config contains all runtime settings for the recording service.
type Config struct {
	BindAddr           string
	ShutdownTimeout    time.Duration
	SessionIdleTimeout time.Duration
	JanitorInterval    time.Duration
	MetricsNamespace   string

	AllowAnyOrigin bool

	RecordingsDir string
	DatabaseURL   string

	DefaultParams params.Parameters
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "streamrec"),
		AllowAnyOrigin:     false,
		RecordingsDir:      envOrDefault("RECORDINGS_DIR", "uploads"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ShutdownTimeout:    15 * time.Second,
		SessionIdleTimeout: 2 * time.Minute,
		JanitorInterval:    5 * time.Second,
		DefaultParams: params.Parameters{
			FPS:        30,
			BatchSize:  64,
			SampleRate: 44100,
			Channels:   1,
		},
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("APP_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.DefaultParams.FPS, err = intFromEnv("REC_DEFAULT_FPS", cfg.DefaultParams.FPS)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultParams.BatchSize, err = intFromEnv("REC_DEFAULT_BATCH_SIZE", cfg.DefaultParams.BatchSize)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultParams.SampleRate, err = intFromEnv("REC_DEFAULT_SAMPLE_RATE", cfg.DefaultParams.SampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultParams.Channels, err = intFromEnv("REC_DEFAULT_CHANNELS", cfg.DefaultParams.Channels)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.JanitorInterval <= 0 {
		return Config{}, fmt.Errorf("APP_JANITOR_INTERVAL must be positive")
	}
	if err := cfg.DefaultParams.Validate(); err != nil {
		return Config{}, fmt.Errorf("default parameters: %w", err)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
