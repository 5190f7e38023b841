package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Catalog
	CatalogTTL time.Duration

	// Consultation orchestration
	ConsultationDeadline time.Duration
	ChargeFailedLookups  bool

	// Upstream providers
	RegistryBaseURL   string
	RegistryAPIKey    string
	ProtestoBaseURL   string
	ProtestoAPIKey    string
	ProviderTimeout   time.Duration
	ProviderCacheTTL  time.Duration
	ProviderRetryBase time.Duration

	// Credit ledger
	LedgerTxTimeout time.Duration

	// Payment gateway (auto renewal / top up)
	PaymentGatewayURL   string
	PaymentGatewayToken string
	PaymentTimeout      time.Duration

	// Rate limiting (requires Redis)
	RateLimitEnabled  bool
	ConsultationRate  float64
	ConsultationBurst int

	// Background maintenance
	SchedulerEnabled     bool
	LedgerVerifyInterval time.Duration
	LedgerVerifyWindow   time.Duration

	// Operational alerts
	AlertWebhookURL string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "consultapj"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "consultapj"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "consultapj.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		CatalogTTL: getenvDuration("CATALOG_TTL", 5*time.Minute),

		ConsultationDeadline: getenvDuration("CONSULTATION_DEADLINE", 45*time.Second),
		ChargeFailedLookups:  getenvBool("CHARGE_FAILED_LOOKUPS", true),

		RegistryBaseURL:   getenv("REGISTRY_BASE_URL", "https://api.cnpj-registry.example.com"),
		RegistryAPIKey:    getenv("REGISTRY_API_KEY", ""),
		ProtestoBaseURL:   getenv("PROTESTO_BASE_URL", "https://api.protesto.example.com"),
		ProtestoAPIKey:    getenv("PROTESTO_API_KEY", ""),
		ProviderTimeout:   getenvDuration("PROVIDER_TIMEOUT", 20*time.Second),
		ProviderCacheTTL:  getenvDuration("PROVIDER_CACHE_TTL", 48*time.Hour),
		ProviderRetryBase: getenvDuration("PROVIDER_RETRY_BASE", 2*time.Second),

		LedgerTxTimeout: getenvDuration("LEDGER_TX_TIMEOUT", 5*time.Second),

		PaymentGatewayURL:   getenv("PAYMENT_GATEWAY_URL", ""),
		PaymentGatewayToken: getenv("PAYMENT_GATEWAY_TOKEN", ""),
		PaymentTimeout:      getenvDuration("PAYMENT_TIMEOUT", 15*time.Second),

		RateLimitEnabled:  getenvBool("RATE_LIMIT_ENABLED", false),
		ConsultationRate:  getenvFloat("CONSULTATION_RATE", 2),
		ConsultationBurst: getenvInt("CONSULTATION_BURST", 10),

		SchedulerEnabled:     getenvBool("SCHEDULER_ENABLED", true),
		LedgerVerifyInterval: getenvDuration("LEDGER_VERIFY_INTERVAL", time.Hour),
		LedgerVerifyWindow:   getenvDuration("LEDGER_VERIFY_WINDOW", 24*time.Hour),

		AlertWebhookURL: getenv("ALERT_WEBHOOK_URL", ""),
	}
}

// Module provides the configuration to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
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
