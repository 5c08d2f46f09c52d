package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for both processes.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Completion   CompletionConfig
	Retrieval    RetrievalConfig
	Worker       WorkerConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	CacheTTLSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// CompletionConfig points at the draft/rephrase completion service.
type CompletionConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// RetrievalConfig points at the similarity-search service.
type RetrievalConfig struct {
	BaseURL         string
	APIKey          string
	TimeoutSeconds  int
	PolicyK         int
	PreviousRecordK int
}

// WorkerConfig controls the drafting worker loop.
type WorkerConfig struct {
	Count               int
	PollIntervalSeconds int
	MaxBackoffSeconds   int
	CallTimeoutSeconds  int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-copilot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			CacheTTLSeconds: getEnvAsInt("REDIS_CACHE_TTL_SECONDS", 300),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Completion: CompletionConfig{
			BaseURL:        getEnv("COMPLETION_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:         os.Getenv("COMPLETION_API_KEY"),
			Model:          getEnv("COMPLETION_MODEL", "openai/gpt-4o-mini"),
			TimeoutSeconds: getEnvAsInt("COMPLETION_TIMEOUT_SECONDS", 60),
		},
		Retrieval: RetrievalConfig{
			BaseURL:         getEnv("RETRIEVAL_BASE_URL", "http://127.0.0.1:8090"),
			APIKey:          os.Getenv("RETRIEVAL_API_KEY"),
			TimeoutSeconds:  getEnvAsInt("RETRIEVAL_TIMEOUT_SECONDS", 15),
			PolicyK:         getEnvAsInt("RETRIEVAL_POLICY_K", 3),
			PreviousRecordK: getEnvAsInt("RETRIEVAL_PREVIOUS_RECORD_K", 5),
		},
		Worker: WorkerConfig{
			Count:               getEnvAsInt("WORKER_COUNT", 1),
			PollIntervalSeconds: getEnvAsInt("WORKER_POLL_INTERVAL_SECONDS", 5),
			MaxBackoffSeconds:   getEnvAsInt("WORKER_MAX_BACKOFF_SECONDS", 60),
			CallTimeoutSeconds:  getEnvAsInt("WORKER_CALL_TIMEOUT_SECONDS", 30),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns the retrieval cache entry lifetime.
func (r RedisConfig) CacheTTL() time.Duration {
	if r.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

// Timeout returns the completion call deadline.
func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the retrieval call deadline.
func (r RetrievalConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// PollInterval returns the queue poll sleep.
func (w WorkerConfig) PollInterval() time.Duration {
	if w.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// MaxBackoff caps the empty/error backoff.
func (w WorkerConfig) MaxBackoff() time.Duration {
	if w.MaxBackoffSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(w.MaxBackoffSeconds) * time.Second
}

// CallTimeout bounds each external call made by the worker.
func (w WorkerConfig) CallTimeout() time.Duration {
	if w.CallTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.CallTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
