// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	SessionBackend string
	SessionTTL     time.Duration
	CurriculumPath string
	GRPCPort       string // empty disables the gRPC health server
	MetricsEnabled bool
	LogLevel       slog.Level
	Redis          RedisConfig
	LLM            LLMConfig
	Interview      InterviewConfig
	RateLimit      RateLimitConfig
	Transcript     TranscriptConfig
}

// RedisConfig locates the Redis session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// LLMConfig configures the chat-completions endpoint.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	RouterModel string
	Timeout     time.Duration
	MaxRetries  int
}

// InterviewConfig holds defaults for new sessions and turn behaviour.
type InterviewConfig struct {
	Track        string
	Topic        string
	Difficulty   string
	MaxQuestions int
	BatchSize    int
	AutoAdvance  bool
}

// RateLimitConfig bounds turns per user.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// TranscriptConfig controls NDJSON conversation transcripts.
type TranscriptConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/interview.db"),
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", BackendSQLite)),
		SessionTTL:     getEnvDuration("SESSION_TTL", 72*time.Hour),
		CurriculumPath: getEnv("CURRICULUM_PATH", ""),
		GRPCPort:       getEnv("GRPC_PORT", ""),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		LogLevel:       parseLevel(getEnv("LOG_LEVEL", "info")),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "techtree"),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o"),
			RouterModel: getEnv("LLM_ROUTER_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:  getEnvInt("LLM_MAX_RETRIES", 2),
		},
		Interview: InterviewConfig{
			Track:        getEnv("INTERVIEW_TRACK", "Python"),
			Topic:        getEnv("INTERVIEW_TOPIC", "General"),
			Difficulty:   getEnv("INTERVIEW_DIFFICULTY", "Intermediate"),
			MaxQuestions: getEnvInt("INTERVIEW_MAX_QUESTIONS", 5),
			BatchSize:    getEnvInt("INTERVIEW_BATCH_SIZE", 1),
			AutoAdvance:  getEnvBool("INTERVIEW_AUTO_ADVANCE", true),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 1),
			Burst: getEnvInt("RATE_LIMIT_BURST", 5),
		},
		Transcript: TranscriptConfig{
			Enabled:       getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:           getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_GLOBAL_PATH", "./data/transcripts/all.ndjson"),
			QueueSize:     getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.SessionBackend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty with the redis backend")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	// Users and skill progress live in SQLite for every backend but memory.
	if c.SessionBackend != BackendMemory && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Interview.MaxQuestions < 1 {
		return fmt.Errorf("INTERVIEW_MAX_QUESTIONS must be >= 1")
	}
	if c.Interview.BatchSize < 1 {
		return fmt.Errorf("INTERVIEW_BATCH_SIZE must be >= 1")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS cannot be negative")
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
