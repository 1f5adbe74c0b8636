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
	PublicURL   string

	Observability ObservabilityConfig

	Payment      PaymentConfig
	Panel        PanelConfig
	Telegram     TelegramConfig
	GitHub       GitHubConfig
	Redis        RedisConfig
	Retention    RetentionConfig
	RateLimit    RateLimitConfig
	Upload       UploadConfig
	WebhookToken string

	// OrderStore selects the order repository: memory, sql or redis.
	OrderStore string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// ObservabilityConfig drives the logger, tracer and meter providers.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OTLPEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type PaymentConfig struct {
	BaseURL       string
	Project       string
	APIKey        string
	DefaultExpiry time.Duration
	QRRenderURL   string
	Timeout       time.Duration
}

type PanelConfig struct {
	Domain    string
	APIKey    string
	PublicURL string
	Egg       int
	Location  int
	Timeout   time.Duration
}

type TelegramConfig struct {
	Token     string
	OwnerID   string
	APIURL    string
	QueueSize int
	Timeout   time.Duration
}

type GitHubConfig struct {
	Token   string
	Owner   string
	Repo    string
	Branch  string
	APIURL  string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RetentionConfig struct {
	OrderTTL time.Duration
	Interval time.Duration
}

type RateLimitConfig struct {
	OrdersPerMinute  int
	UploadsPerMinute int
}

type UploadConfig struct {
	MaxBytes int64
	Dir      string
	CacheTTL time.Duration
}

const (
	OrderStoreMemory = "memory"
	OrderStoreSQL    = "sql"
	OrderStoreRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	publicURL := strings.TrimRight(strings.TrimSpace(getenv("PUBLIC_URL", "http://localhost:8080")), "/")
	environment := strings.TrimSpace(getenv("ENVIRONMENT", "development"))

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "novacat"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		PublicURL:   publicURL,
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", defaultLogFormat(environment)))),
			OTLPEnabled:   getenvBool("OTLP_ENABLED", false),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("TRACE_SAMPLING_RATIO", 1),
		},
		Payment: PaymentConfig{
			BaseURL:       strings.TrimRight(getenv("PAKASIR_BASE_URL", "https://app.pakasir.com"), "/"),
			Project:       strings.TrimSpace(getenv("PAKASIR_PROJECT", "")),
			APIKey:        strings.TrimSpace(getenv("PAKASIR_API_KEY", "")),
			DefaultExpiry: getenvDuration("PAYMENT_DEFAULT_EXPIRY", 30*time.Second),
			QRRenderURL:   getenv("PAYMENT_QR_RENDER_URL", "https://quickchart.io/qr?text=%s&size=300&margin=1"),
			Timeout:       getenvDuration("PAKASIR_TIMEOUT", 15*time.Second),
		},
		Panel: PanelConfig{
			Domain:    strings.TrimRight(strings.TrimSpace(getenv("PANEL_DOMAIN", "")), "/"),
			APIKey:    strings.TrimSpace(getenv("PANEL_API_KEY", "")),
			PublicURL: strings.TrimRight(strings.TrimSpace(getenv("PANEL_PUBLIC_URL", publicURL)), "/"),
			Egg:       getenvInt("PANEL_EGG", 15),
			Location:  getenvInt("PANEL_LOCATION", 1),
			Timeout:   getenvDuration("PANEL_TIMEOUT", 20*time.Second),
		},
		Telegram: TelegramConfig{
			Token:     strings.TrimSpace(getenv("TELEGRAM_TOKEN", "")),
			OwnerID:   strings.TrimSpace(getenv("TELEGRAM_OWNER_ID", "")),
			APIURL:    strings.TrimRight(getenv("TELEGRAM_API_URL", "https://api.telegram.org"), "/"),
			QueueSize: getenvInt("NOTIFY_QUEUE_SIZE", 64),
			Timeout:   getenvDuration("TELEGRAM_TIMEOUT", 10*time.Second),
		},
		GitHub: GitHubConfig{
			Token:   strings.TrimSpace(getenv("GITHUB_TOKEN", "")),
			Owner:   strings.TrimSpace(getenv("GITHUB_OWNER", "")),
			Repo:    strings.TrimSpace(getenv("GITHUB_REPO", "")),
			Branch:  getenv("GITHUB_BRANCH", "main"),
			APIURL:  strings.TrimRight(getenv("GITHUB_API_URL", "https://api.github.com"), "/"),
			Timeout: getenvDuration("GITHUB_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Retention: RetentionConfig{
			OrderTTL: getenvDuration("ORDER_RETENTION", 24*time.Hour),
			Interval: getenvDuration("RETENTION_INTERVAL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			OrdersPerMinute:  getenvInt("RATE_LIMIT_ORDERS_PER_MINUTE", 10),
			UploadsPerMinute: getenvInt("RATE_LIMIT_UPLOADS_PER_MINUTE", 20),
		},
		Upload: UploadConfig{
			MaxBytes: getenvInt64("UPLOAD_MAX_BYTES", 25<<20),
			Dir:      strings.Trim(getenv("UPLOAD_DIR", "uploads"), "/"),
			CacheTTL: getenvDuration("UPLOAD_CACHE_TTL", 5*time.Minute),
		},
		WebhookToken: strings.TrimSpace(getenv("WEBHOOK_TOKEN", "")),
		OrderStore:   normalizeOrderStore(getenv("ORDER_STORE", OrderStoreMemory)),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "novacat"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "novacat.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// Debug enables verbose logging and gin debug mode.
func (c Config) Debug() bool {
	if c.Observability.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func defaultLogFormat(environment string) string {
	if strings.EqualFold(environment, "production") {
		return "json"
	}
	return "console"
}

func normalizeOrderStore(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case OrderStoreSQL, "db", "database":
		return OrderStoreSQL
	case OrderStoreRedis:
		return OrderStoreRedis
	default:
		return OrderStoreMemory
	}
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

// getenvDuration accepts Go duration strings ("45s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
