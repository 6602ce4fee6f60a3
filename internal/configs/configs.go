/*
Package configs is responsible for loading and parsing the application's configuration settings.

All settings come from environment variables. Optional integrations (PostgreSQL, Redis,
Kafka, S3, OTLP tracing) stay disabled unless their variables are set.
*/
package configs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment     string
	Port            int
	LogLevel        string
	ShutdownTimeout time.Duration

	// Security Settings
	AllowedOrigins  []string
	JWTSecret       string
	JWTExpire       time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Realtime Hub Settings
	HubEnforceMembership bool
	RedisAddr            string
	RedisPassword        string

	// Database Settings
	StoreDriver   string
	DatabaseDSN   string
	RunMigrations bool

	// Event Stream Settings
	KafkaBrokers []string
	KafkaTopic   string

	// S3 Storage Settings (optional)
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	// Tracing Settings
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// S3Enabled reports whether profile image uploads are configured.
func (c *AppConfig) S3Enabled() bool {
	return c.S3BucketName != ""
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Environment:      "development",
		Port:             5000,
		ShutdownTimeout:  15 * time.Second,
		JWTExpire:        7 * 24 * time.Hour,
		RateLimitMax:     100,
		RateLimitWindow:  15 * time.Minute,
		RunMigrations:    true,
		KafkaTopic:       "ride-events",
		S3Region:         "auto",
		TraceSampleRatio: 1,
	}
}

// LoadConfig reads and parses the application configuration from environment variables.
// Every invalid value is reported, joined into one error.
func LoadConfig() (*AppConfig, error) {
	cfg := defaultConfig()
	var errs []error

	// --- General Server Settings ---
	setStringFromEnv(&cfg.Environment, "ENVIRONMENT")
	setIntFromEnv(&cfg.Port, "PORT", &errs)
	if cfg.Port < 1024 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port number %d is outside the allowed range (%d-%d)", cfg.Port, 1024, 65535))
	}
	setStringFromEnv(&cfg.LogLevel, "LOG_LEVEL")
	setDurationFromEnv(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", &errs)

	// --- Security Settings ---
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	} else {
		cfg.AllowedOrigins = []string{}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if cfg.IsDevelopment() {
			cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
		} else {
			errs = append(errs, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment))
		}
	}
	setDurationFromEnv(&cfg.JWTExpire, "JWT_EXPIRE", &errs)
	setIntFromEnv(&cfg.RateLimitMax, "RATE_LIMIT_MAX", &errs)
	setDurationFromEnv(&cfg.RateLimitWindow, "RATE_LIMIT_WINDOW", &errs)

	// --- Realtime Hub Settings ---
	setBoolFromEnv(&cfg.HubEnforceMembership, "HUB_ENFORCE_MEMBERSHIP", &errs)
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	// --- Database Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	cfg.StoreDriver = StoreMemory
	if cfg.DatabaseDSN != "" {
		cfg.StoreDriver = StorePostgres
	}
	setStringFromEnv(&cfg.StoreDriver, "STORE_DRIVER")
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)

	switch cfg.StoreDriver {
	case StoreMemory:
		if !cfg.IsDevelopment() {
			errs = append(errs, fmt.Errorf("the %s store is only allowed in development; set DATABASE_URL", StoreMemory))
		}
	case StorePostgres:
		if cfg.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_URL environment variable is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreMemory, StorePostgres))
	}
	setBoolFromEnv(&cfg.RunMigrations, "MIGRATE", &errs)

	// --- Event Stream Settings ---
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	// --- S3 Storage Settings ---
	cfg.S3BucketName = os.Getenv("S3_BUCKET_NAME")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	setStringFromEnv(&cfg.S3Region, "S3_REGION")
	cfg.S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3PublicBaseURL = strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/")
	if cfg.S3Enabled() {
		for key, val := range map[string]string{
			"S3_ENDPOINT":          cfg.S3Endpoint,
			"S3_ACCESS_KEY_ID":     cfg.S3AccessKeyID,
			"S3_SECRET_ACCESS_KEY": cfg.S3SecretAccessKey,
		} {
			if val == "" {
				errs = append(errs, fmt.Errorf("%s environment variable is required when S3_BUCKET_NAME is set", key))
			}
		}
	}

	// --- Tracing Settings ---
	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	setFloatFromEnv(&cfg.TraceSampleRatio, "OTEL_TRACES_SAMPLER_RATIO", &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDuration extends time.ParseDuration with a day suffix, so "7d" means 168h.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q: %w", v, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
