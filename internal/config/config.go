package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/tutor-bot/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Telegram   TelegramConfig
	Completion CompletionConfig
	Quota      QuotaConfig
	Catalog    CatalogConfig
	Broadcast  BroadcastConfig
	Upgrade    UpgradeConfig
	RateLimit  RateLimitConfig
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

// SQLiteConfig is used when no Postgres DSN is configured.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" or "console".
	Format  string
	Service string
}

// AuthConfig defines admin API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TelegramConfig configures the Bot API adapter.
type TelegramConfig struct {
	BotToken      string
	APIBaseURL    string
	Mode          string
	WebhookURL    string
	WebhookSecret string
	PollTimeout   int
}

// CompletionConfig selects and tunes the language-model provider.
type CompletionConfig struct {
	Provider       string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	TimeoutSeconds int
	MaxTokens      int
	Temperature    float64
	Models         ModelTable
}

// QuotaConfig holds the tier limit table and the usage period.
type QuotaConfig struct {
	Limits TierLimits
	Period time.Duration
}

// CatalogConfig locates the prompt catalog.
type CatalogConfig struct {
	Path  string
	Watch bool
}

// BroadcastConfig schedules the daily motivation message.
type BroadcastConfig struct {
	Enabled        bool
	Hour           int
	Minute         int
	Location       *time.Location
	PollInterval   time.Duration
	CatchUpWindow  time.Duration
	Concurrency    int
	RatePerSecond  float64
	MarkerTTLHours int
}

// UpgradeConfig holds the payment links shown in upsell messages.
type UpgradeConfig struct {
	ProMonthlyURL   string
	ProYearlyURL    string
	EliteMonthlyURL string
	EliteYearlyURL  string
}

// RateLimitConfig bounds inbound events per user.
type RateLimitConfig struct {
	PerMinute int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	period, err := time.ParseDuration(getEnv("USAGE_PERIOD", "24h"))
	if err != nil || period <= 0 {
		return nil, fmt.Errorf("invalid USAGE_PERIOD %q", os.Getenv("USAGE_PERIOD"))
	}

	limits, err := loadTierLimits()
	if err != nil {
		return nil, err
	}

	hour, minute, err := ParseTimeOfDay(getEnv("BROADCAST_TIME", "15:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROADCAST_TIME: %w", err)
	}
	loc, err := time.LoadLocation(getEnv("BROADCAST_TIMEZONE", "America/New_York"))
	if err != nil {
		return nil, fmt.Errorf("invalid BROADCAST_TIMEZONE: %w", err)
	}
	pollInterval, err := time.ParseDuration(getEnv("BROADCAST_POLL_INTERVAL", "30s"))
	if err != nil || pollInterval <= 0 {
		return nil, fmt.Errorf("invalid BROADCAST_POLL_INTERVAL %q", os.Getenv("BROADCAST_POLL_INTERVAL"))
	}

	temperature, err := strconv.ParseFloat(getEnv("COMPLETION_TEMPERATURE", "0.8"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid COMPLETION_TEMPERATURE: %w", err)
	}
	ratePerSecond, err := strconv.ParseFloat(getEnv("BROADCAST_RATE_PER_SECOND", "25"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BROADCAST_RATE_PER_SECOND: %w", err)
	}

	provider := strings.ToLower(getEnv("COMPLETION_PROVIDER", "openai"))
	models := DefaultModels(provider)
	for _, tier := range domain.Tiers {
		if model := os.Getenv("MODEL_" + strings.ToUpper(string(tier))); model != "" {
			models[tier] = model
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ai-tutor-pro-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "users.db"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Service: getEnv("APP_NAME", "ai-tutor-pro-bot"),
		},
		Auth: AuthConfig{
			JWTSecret:             os.Getenv("AUTH_JWT_SECRET"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Telegram: TelegramConfig{
			BotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIBaseURL:    getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			Mode:          strings.ToLower(getEnv("TELEGRAM_MODE", "polling")),
			WebhookURL:    os.Getenv("TELEGRAM_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
			PollTimeout:   getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 30),
		},
		Completion: CompletionConfig{
			Provider:       provider,
			OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
			TimeoutSeconds: getEnvAsInt("COMPLETION_TIMEOUT_SECONDS", 30),
			MaxTokens:      getEnvAsInt("COMPLETION_MAX_TOKENS", 500),
			Temperature:    temperature,
			Models:         models,
		},
		Quota: QuotaConfig{
			Limits: limits,
			Period: period,
		},
		Catalog: CatalogConfig{
			Path:  os.Getenv("CATALOG_PATH"),
			Watch: getEnvAsBool("CATALOG_WATCH", true),
		},
		Broadcast: BroadcastConfig{
			Enabled:        getEnvAsBool("BROADCAST_ENABLED", true),
			Hour:           hour,
			Minute:         minute,
			Location:       loc,
			PollInterval:   pollInterval,
			CatchUpWindow:  time.Duration(getEnvAsInt("BROADCAST_CATCHUP_MINUTES", 60)) * time.Minute,
			Concurrency:    getEnvAsInt("BROADCAST_CONCURRENCY", 8),
			RatePerSecond:  ratePerSecond,
			MarkerTTLHours: getEnvAsInt("BROADCAST_MARKER_TTL_HOURS", 48),
		},
		Upgrade: UpgradeConfig{
			ProMonthlyURL:   os.Getenv("UPGRADE_PRO_MONTHLY_URL"),
			ProYearlyURL:    os.Getenv("UPGRADE_PRO_YEARLY_URL"),
			EliteMonthlyURL: os.Getenv("UPGRADE_ELITE_MONTHLY_URL"),
			EliteYearlyURL:  os.Getenv("UPGRADE_ELITE_YEARLY_URL"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
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

// Timeout returns the bounded completion call timeout.
func (c CompletionConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MarkerTTL is how long the cross-process fired marker lives.
func (b BroadcastConfig) MarkerTTL() time.Duration {
	if b.MarkerTTLHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(b.MarkerTTLHours) * time.Hour
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(raw string) (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, err
	}
	return parsed.Hour(), parsed.Minute(), nil
}

func loadTierLimits() (TierLimits, error) {
	limits := DefaultTierLimits()
	for _, tier := range domain.Tiers {
		key := "TIER_LIMIT_" + strings.ToUpper(string(tier))
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		policy, err := ParseTierLimit(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		limits[tier] = policy
	}
	return limits, nil
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
