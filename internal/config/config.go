package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Cache       CacheConfig
	Posts       PostsConfig
	RateLimit   RateLimitConfig
	Realtime    RealtimeConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Environment string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	AutoMigrate    bool
	MigrationsPath string
}

// AuthConfig configures the token gate in front of the /post namespace.
// PublicKey is the base64url-encoded SPKI PEM printed by `server keygen`.
type AuthConfig struct {
	PublicKey    string
	TokenPayload string
}

type CacheConfig struct {
	TTL time.Duration
}

type PostsConfig struct {
	PageSize    int
	MaxPageSize int
}

// RateLimitConfig bounds each socket's event rate and each client address's
// upgrade rate. Zero disables the respective limit.
type RateLimitConfig struct {
	EventsPerMinute      int
	ConnectionsPerMinute int
	TrustedProxyCIDRs    []string
}

type RealtimeConfig struct {
	// NotifyChannel is the PostgreSQL channel used to fan broadcasts out to other instances.
	// Empty disables cross-instance fan-out.
	NotifyChannel       string
	AttachmentRetention time.Duration
	AllowedOrigins      []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

const DefaultTokenPayload = "motortg:post:write"

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "0.0.0.0"),
			Port: getEnvInt("PORT", 3000),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			AutoMigrate:    getEnvBool("DATABASE_AUTO_MIGRATE", true),
			MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", ""),
		},
		Auth: AuthConfig{
			PublicKey:    getEnv("AUTH_PUBLIC_KEY", ""),
			TokenPayload: getEnv("AUTH_TOKEN_PAYLOAD", DefaultTokenPayload),
		},
		Cache: CacheConfig{
			TTL: time.Duration(getEnvInt("CACHE_TTL_SECONDS", 180)) * time.Second,
		},
		Posts: PostsConfig{
			PageSize:    getEnvInt("POSTS_PAGE_SIZE", 10),
			MaxPageSize: getEnvInt("POSTS_MAX_PAGE_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			EventsPerMinute:      getEnvInt("RATE_LIMIT_EVENTS_PER_MINUTE", 600),
			ConnectionsPerMinute: getEnvInt("RATE_LIMIT_CONNECTIONS_PER_MINUTE", 60),
			TrustedProxyCIDRs:    getEnvList("RATE_LIMIT_TRUSTED_PROXY_CIDRS"),
		},
		Realtime: RealtimeConfig{
			NotifyChannel:       getEnv("REALTIME_NOTIFY_CHANNEL", "motortg_realtime"),
			AttachmentRetention: time.Duration(getEnvInt("REALTIME_ATTACHMENT_RETENTION_SECONDS", 30)) * time.Second,
			AllowedOrigins:      getEnvList("REALTIME_ALLOWED_ORIGINS"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "motortg-crud"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("PORT must be between 1 and 65535")
	}
	if cfg.Posts.PageSize <= 0 {
		return Config{}, fmt.Errorf("POSTS_PAGE_SIZE must be positive")
	}
	if cfg.Posts.MaxPageSize < cfg.Posts.PageSize {
		return Config{}, fmt.Errorf("POSTS_MAX_PAGE_SIZE must be >= POSTS_PAGE_SIZE")
	}
	if strings.TrimSpace(cfg.Auth.TokenPayload) == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN_PAYLOAD must not be blank")
	}
	return cfg, nil
}

// IsDevelopment reports whether raw error details may be surfaced in logs at debug level.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
