package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	// AdminToken guards the internal and checkout APIs. Empty disables them.
	AdminToken string

	LogLevel          string
	LogFormat         string
	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	// MetricsPushExporter is prometheus_pushgateway or
	// prometheus_remote_write. One-shot CLI jobs push their metrics there
	// because nothing scrapes them.
	MetricsPushExporter string
	MetricsPushEndpoint string
	MetricsPushToken    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBURL             string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// ProcessorConfigSecret is the key material used to seal payment
	// processor credentials at rest.
	ProcessorConfigSecret string
	ProviderMaxRetries    int
	ProviderBaseURL       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	// WebhookRate and WebhookBurst bound webhook deliveries per processor
	// when redis is configured. A zero rate disables the limiter.
	WebhookRate  float64
	WebhookBurst int
	JobLockTTL   time.Duration

	ImportDir           string
	ImportArchiveBucket string
	ImportArchivePrefix string
	S3Region            string
	S3Endpoint          string
	S3AccessKeyID       string
	S3SecretAccessKey   string

	SweepTimeoutHours float64
	SweepInterval     time.Duration
	SettingsPath      string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:               getenv("APP_NAME", "pledgesync"),
		AppVersion:            getenv("APP_VERSION", "0.1.0"),
		Environment:           getenv("ENVIRONMENT", "development"),
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		AdminToken:            strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		LogLevel:              strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:             strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:           getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:          getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:          strings.ToLower(strings.TrimSpace(getenv("OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:     getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		MetricsPushExporter:   strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
		MetricsPushEndpoint:   strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
		MetricsPushToken:      strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
		DBType:                getenv("DB_TYPE", "postgres"),
		DBHost:                getenv("DB_HOST", "localhost"),
		DBPort:                getenv("DB_PORT", "5432"),
		DBName:                getenv("DB_NAME", "pledgesync"),
		DBUser:                getenv("DB_USER", "postgres"),
		DBPassword:            getenv("DB_PASSWORD", ""),
		DBSSLMode:             getenv("DB_SSL_MODE", "disable"),
		DBURL:                 strings.TrimSpace(getenv("DB_URL", "")),
		DBMaxIdleConn:         getenvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:         getenvInt("DB_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:     getenvInt("DB_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime:     getenvInt("DB_CONN_MAX_IDLE_TIME", 300),
		ProcessorConfigSecret: strings.TrimSpace(getenv("PROCESSOR_CONFIG_SECRET", "")),
		ProviderMaxRetries:    getenvInt("PROVIDER_MAX_RETRIES", 0),
		ProviderBaseURL:       strings.TrimSpace(getenv("PROVIDER_BASE_URL", "")),
		RedisAddr:             strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("REDIS_DB", 0),
		WebhookRate:           getenvFloat("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookBurst:          getenvInt("WEBHOOK_BURST", 100),
		JobLockTTL:            getenvDuration("JOB_LOCK_TTL", 6*time.Hour),
		NATSURL:               strings.TrimSpace(getenv("NATS_URL", "")),
		ImportDir:             getenv("IMPORT_DIR", "./imports"),
		ImportArchiveBucket:   strings.TrimSpace(getenv("IMPORT_ARCHIVE_BUCKET", "")),
		ImportArchivePrefix:   strings.Trim(getenv("IMPORT_ARCHIVE_PREFIX", "imports"), "/"),
		S3Region:              getenv("S3_REGION", "us-east-1"),
		S3Endpoint:            strings.TrimSpace(getenv("S3_ENDPOINT_URL", "")),
		S3AccessKeyID:         strings.TrimSpace(getenv("S3_ACCESS_KEY_ID", "")),
		S3SecretAccessKey:     strings.TrimSpace(getenv("S3_SECRET_ACCESS_KEY", "")),
		SweepTimeoutHours:     getenvFloat("SWEEP_TIMEOUT_HOURS", 24),
		SweepInterval:         getenvDuration("SWEEP_INTERVAL", time.Hour),
		SettingsPath:          strings.TrimSpace(getenv("SETTINGS_PATH", "")),
	}
}

// IsProduction reports whether the process runs against live money.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
