package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the simulation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  slog.Level
	LogFormat string

	DataDir    string
	RosterPath string

	OracleMode        string
	OracleCLIPath     string
	OracleOllamaURL   string
	OracleOllamaModel string
	OracleTimeout     time.Duration

	IntentParallelism int
	SerializeTurns    bool
	DefaultTurnDelay  time.Duration

	DatabaseURL string
	JournalPath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	dataDir := envOrDefault("THICKET_DATA_DIR", "data")
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":3000"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "thicket"),
		LogFormat:         strings.ToLower(envOrDefault("APP_LOG_FORMAT", "text")),
		DataDir:           dataDir,
		RosterPath:        envOrDefault("THICKET_ROSTER_PATH", filepath.Join(dataDir, "roster.yaml")),
		OracleMode:        strings.ToLower(envOrDefault("ORACLE_MODE", "auto")),
		OracleCLIPath:     envOrDefault("ORACLE_CLI_PATH", "claude"),
		OracleOllamaURL:   envOrDefault("ORACLE_OLLAMA_URL", "http://localhost:11434"),
		OracleOllamaModel: envOrDefault("ORACLE_OLLAMA_MODEL", "llama3.1"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		JournalPath:       envOrDefault("JOURNAL_PATH", filepath.Join(dataDir, "journal.db")),
		ShutdownTimeout:   5 * time.Second,
		OracleTimeout:     60 * time.Second,
		SerializeTurns:    true,
		DefaultTurnDelay:  time.Second,
	}

	var err error
	cfg.LogLevel, err = levelFromEnv("APP_LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OracleTimeout, err = durationFromEnv("ORACLE_TIMEOUT", cfg.OracleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultTurnDelay, err = durationFromEnv("TURN_DEFAULT_DELAY", cfg.DefaultTurnDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.IntentParallelism, err = intFromEnv("TURN_INTENT_PARALLELISM", cfg.IntentParallelism)
	if err != nil {
		return Config{}, err
	}
	cfg.SerializeTurns, err = boolFromEnv("TURN_SERIALIZE", cfg.SerializeTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false)
	if err != nil {
		return Config{}, err
	}

	if cfg.OracleTimeout <= 0 {
		return Config{}, fmt.Errorf("ORACLE_TIMEOUT must be positive")
	}
	if cfg.IntentParallelism < 0 {
		return Config{}, fmt.Errorf("TURN_INTENT_PARALLELISM must be >= 0")
	}
	if cfg.DefaultTurnDelay < 0 {
		return Config{}, fmt.Errorf("TURN_DEFAULT_DELAY must be >= 0")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("APP_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// JournalEnabled reports whether the sqlite turn journal should be opened.
func (c Config) JournalEnabled() bool {
	p := strings.ToLower(strings.TrimSpace(c.JournalPath))
	return p != "" && p != "off"
}

// NewLogger builds the process logger from the configured level and format.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
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
	v := strings.ToLower(stringsTrimSpace(key))
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

func levelFromEnv(key string, fallback slog.Level) (slog.Level, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback, fmt.Errorf("%s parse error: %w", key, err)
	}
	return lvl, nil
}
