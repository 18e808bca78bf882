package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
	"github.com/yungbote/course-assistant-backend/internal/data/db"
	"github.com/yungbote/course-assistant-backend/internal/http/middleware"
	"github.com/yungbote/course-assistant-backend/internal/kbsync"
	"github.com/yungbote/course-assistant-backend/internal/observability"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
	"github.com/yungbote/course-assistant-backend/internal/realtime/bus"
	"github.com/yungbote/course-assistant-backend/internal/services"
	"github.com/yungbote/course-assistant-backend/internal/utils"
)

const (
	RealtimePostgres = "postgres"
	RealtimeRedis    = "redis"
	RealtimeLocal    = "local"

	serviceName = "course-assistant"
)

type Config struct {
	Port    string
	LogMode string
	Version string

	StoreDriver     string
	StoreDSN        string
	RealtimeBackend string
	RedisAddr       string
	RedisChannel    string

	GeminiAPIKey     string
	GeminiModel      string
	GeminiTimeout    time.Duration
	GeminiMaxRetries int

	Sync             kbsync.Config
	SessionIdleTTL   time.Duration
	DocumentMaxBytes int64
	AllowedOrigins   []string

	MetricsEnabled bool
	MetricsAddr    string
	Otel           observability.OtelConfig
}

// LoadEnvFiles loads .env and then CONFIG_FILE into the process environment.
// Variables already set win over both files.
func LoadEnvFiles(log *logger.Logger) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("could not read .env", "error", err)
	}
	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return applyYAMLDefaults(raw)
}

// applyYAMLDefaults reads a flat mapping of environment variable names to
// values and sets those not already present.
func applyYAMLDefaults(raw []byte) error {
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	for key, val := range values {
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" || val == nil {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		var s string
		switch v := val.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			s = strings.Join(parts, ",")
		default:
			s = fmt.Sprint(v)
		}
		if err := os.Setenv(key, s); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// LoadConfig reads the environment once. Secrets are read without logging.
func LoadConfig(log *logger.Logger) Config {
	driver := strings.ToLower(utils.GetEnv("STORE_DRIVER", db.DriverPostgres, log))
	dsn := utils.GetEnv("DATABASE_URL", "", nil)
	if dsn == "" && driver == db.DriverPostgres {
		dsn = db.PostgresDSN(
			utils.GetEnv("POSTGRES_HOST", "localhost", log),
			utils.GetEnv("POSTGRES_PORT", "5432", log),
			utils.GetEnv("POSTGRES_USER", "postgres", log),
			utils.GetEnv("POSTGRES_PASSWORD", "", nil),
			utils.GetEnv("POSTGRES_NAME", "postgres", log),
		)
	}
	if dsn == "" {
		dsn = "course-assistant.db"
	}

	defaultRealtime := RealtimeLocal
	if driver == db.DriverPostgres {
		defaultRealtime = RealtimePostgres
	}

	environment := utils.GetEnv("ENVIRONMENT", "development", log)
	version := utils.GetEnv("SERVICE_VERSION", "dev", log)

	return Config{
		Port:    utils.GetEnv("PORT", "8080", log),
		LogMode: utils.GetEnv("LOG_MODE", "development", log),
		Version: version,

		StoreDriver:     driver,
		StoreDSN:        dsn,
		RealtimeBackend: strings.ToLower(utils.GetEnv("REALTIME_BACKEND", defaultRealtime, log)),
		RedisAddr:       utils.GetEnv("REDIS_ADDR", "", log),
		RedisChannel:    utils.GetEnv("REDIS_CHANNEL", bus.DefaultChannel, log),

		GeminiAPIKey:     utils.GetEnv("GEMINI_API_KEY", "", nil),
		GeminiModel:      utils.GetEnv("GEMINI_MODEL", gemini.DefaultModel, log),
		GeminiTimeout:    utils.GetEnvAsDuration("GEMINI_TIMEOUT", 90*time.Second, log),
		GeminiMaxRetries: utils.GetEnvAsInt("GEMINI_MAX_RETRIES", 2, log),

		Sync: kbsync.Config{
			Locale:       utils.GetEnv("SORT_LOCALE", kbsync.DefaultLocale, log),
			StoreTimeout: utils.GetEnvAsDuration("STORE_TIMEOUT", kbsync.DefaultStoreTimeout, log),
		},
		SessionIdleTTL:   utils.GetEnvAsDuration("SESSION_IDLE_TTL", services.DefaultSessionIdleTTL, log),
		DocumentMaxBytes: int64(utils.GetEnvAsInt("DOCUMENT_MAX_BYTES", services.DefaultDocumentMaxBytes, log)),
		AllowedOrigins:   utils.GetEnvAsList("CORS_ALLOWED_ORIGINS", middleware.DefaultAllowedOrigins, log),

		MetricsEnabled: utils.GetEnvAsBool("METRICS_ENABLED", false, log),
		MetricsAddr:    utils.GetEnv("METRICS_ADDR", ":9090", log),
		Otel: observability.OtelConfig{
			Enabled:     utils.GetEnvAsBool("OTEL_ENABLED", false, log),
			ServiceName: utils.GetEnv("OTEL_SERVICE_NAME", serviceName, log),
			Environment: environment,
			Version:     version,
			Endpoint:    utils.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Headers:     observability.ParseHeaders(utils.GetEnv("OTEL_EXPORTER_OTLP_HEADERS", "", nil)),
			Insecure:    utils.GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
			SampleRatio: utils.GetEnvAsFloat("OTEL_SAMPLER_RATIO", 1, log),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}
	switch c.RealtimeBackend {
	case RealtimePostgres:
		if c.StoreDriver != db.DriverPostgres {
			return fmt.Errorf("REALTIME_BACKEND=postgres requires STORE_DRIVER=postgres")
		}
	case RealtimeRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REALTIME_BACKEND=redis requires REDIS_ADDR")
		}
	case RealtimeLocal:
	default:
		return fmt.Errorf("unknown REALTIME_BACKEND %q", c.RealtimeBackend)
	}
	return nil
}
