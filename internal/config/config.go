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
	HTTPPort    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// LockTimeout bounds how long a reconciliation waits for a payment row lock.
	LockTimeout time.Duration

	Telemetry  TelemetryConfig
	Stripe     StripeConfig
	Redis      RedisConfig
	Dispatch   DispatchConfig
	SMTP       SMTPConfig
	Slack      SlackConfig
	RateLimit  RateLimitConfig
	Scheduler  SchedulerConfig
	NodeID     int64
	AdminEmail string
}

// TelemetryConfig drives logging and the OTLP exporters. The standard
// OTEL_EXPORTER_OTLP_* variables take precedence over the payrecon ones.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OTelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// StripeConfig is handed to the processor client and the webhook gateway at
// construction. There is no process-wide key.
type StripeConfig struct {
	SecretKey          string
	WebhookSecret      string
	SignatureTolerance time.Duration
	Currency           string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

const (
	DispatchTransportMemory = "memory"
	DispatchTransportSQS    = "sqs"
)

type DispatchConfig struct {
	Transport    string
	Workers      int
	QueueSize    int
	SQSQueueURL  string
	SQSRegion    string
	SQSAccessKey string
	SQSSecretKey string

	// SQSWaitSeconds is the long-poll wait of the consumer.
	SQSWaitSeconds int32
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type SlackConfig struct {
	WebhookURL string
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

type SchedulerConfig struct {
	RunInterval    time.Duration
	BatchSize      int
	StaleIntentAge time.Duration
	EnabledJobs    []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "payrecon"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPPort:          getenv("HTTP_PORT", "8080"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payrecon"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		LockTimeout:       getenvDuration("PAYMENT_LOCK_TIMEOUT", 5*time.Second),
		NodeID:            getenvInt64("SNOWFLAKE_NODE", 1),
		AdminEmail:        strings.TrimSpace(getenv("ADMIN_EMAIL", "")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OTelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Stripe: StripeConfig{
			SecretKey:          strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:      strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SignatureTolerance: getenvDuration("STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
			Currency:           strings.ToLower(getenv("STRIPE_CURRENCY", "usd")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Dispatch: DispatchConfig{
			Transport:      strings.ToLower(getenv("DISPATCH_TRANSPORT", DispatchTransportMemory)),
			Workers:        getenvInt("DISPATCH_WORKERS", 4),
			QueueSize:      getenvInt("DISPATCH_QUEUE_SIZE", 1024),
			SQSQueueURL:    strings.TrimSpace(getenv("DISPATCH_SQS_QUEUE_URL", "")),
			SQSRegion:      getenv("DISPATCH_SQS_REGION", "us-east-1"),
			SQSAccessKey:   strings.TrimSpace(getenv("DISPATCH_SQS_ACCESS_KEY", "")),
			SQSSecretKey:   strings.TrimSpace(getenv("DISPATCH_SQS_SECRET_KEY", "")),
			SQSWaitSeconds: int32(getenvInt("DISPATCH_SQS_WAIT_SECONDS", 20)),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "payments@localhost"),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getenvFloat("RATE_LIMIT_RPS", 10),
			Burst:   getenvInt("RATE_LIMIT_BURST", 20),
		},
		Scheduler: SchedulerConfig{
			RunInterval:    getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:      getenvInt("SCHEDULER_BATCH_SIZE", 50),
			StaleIntentAge: getenvDuration("SCHEDULER_STALE_INTENT_AGE", 15*time.Minute),
			EnabledJobs:    getenvList("SCHEDULER_ENABLED_JOBS"),
		},
	}

	return cfg
}

func (c Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
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
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
