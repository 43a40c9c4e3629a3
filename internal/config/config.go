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

	HTTPAddr string

	OTLPEndpoint string

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

	Cache     CacheConfig
	RateLimit RateLimitConfig
	Anomaly   AnomalyConfig
	Warm      WarmConfig
}

// CacheConfig selects and tunes the read-through cache backend.
type CacheConfig struct {
	Backend       string // memory | redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DailyAggregateTTL time.Duration
	HistoryTTL        time.Duration
	BalanceTTL        time.Duration
	TransactionsTTL   time.Duration
}

// RateLimitConfig controls the optional endpoint-level token bucket and
// the distributed spend lock. The per-guardian hourly submission rule is
// not configured here; it is always enforced from the step store.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SubmitRate  float64
	SubmitBurst int
	LockTTL     time.Duration
}

// AnomalyConfig selects the anomaly detector implementation.
type AnomalyConfig struct {
	Detector       string // spike | deviation | none
	SpikeThreshold int
	DeviationRatio float64
}

// WarmConfig controls the periodic cache warm sweep.
type WarmConfig struct {
	Enabled      bool
	Interval     time.Duration
	Lookback     time.Duration
	MaxGuardians int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "walking"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "walking"),
		DBUser:            getenv("DATABASE_USER", "walking"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		Cache: CacheConfig{
			Backend:           normalizeBackend(getenv("CACHE_BACKEND", "memory")),
			RedisAddr:         strings.TrimSpace(getenv("CACHE_REDIS_ADDR", "")),
			RedisPassword:     strings.TrimSpace(getenv("CACHE_REDIS_PASSWORD", "")),
			RedisDB:           getenvInt("CACHE_REDIS_DB", 0),
			DailyAggregateTTL: getenvDuration("CACHE_DAILY_AGGREGATE_TTL", 2*time.Hour),
			HistoryTTL:        getenvDuration("CACHE_HISTORY_TTL", time.Hour),
			BalanceTTL:        getenvDuration("CACHE_BALANCE_TTL", 15*time.Minute),
			TransactionsTTL:   getenvDuration("CACHE_TRANSACTIONS_TTL", 45*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			SubmitRate:    getenvFloat("RATE_LIMIT_SUBMIT_RATE", 5),
			SubmitBurst:   getenvInt("RATE_LIMIT_SUBMIT_BURST", 20),
			LockTTL:       getenvDuration("RATE_LIMIT_LOCK_TTL", 5*time.Second),
		},
		Anomaly: AnomalyConfig{
			Detector:       strings.ToLower(strings.TrimSpace(getenv("ANOMALY_DETECTOR", "spike"))),
			SpikeThreshold: getenvInt("ANOMALY_SPIKE_THRESHOLD", 15000),
			DeviationRatio: getenvFloat("ANOMALY_DEVIATION_RATIO", 10),
		},
		Warm: WarmConfig{
			Enabled:      getenvBool("CACHE_WARM_ENABLED", true),
			Interval:     getenvDuration("CACHE_WARM_INTERVAL", 10*time.Minute),
			Lookback:     getenvDuration("CACHE_WARM_LOOKBACK", 24*time.Hour),
			MaxGuardians: getenvInt("CACHE_WARM_MAX_GUARDIANS", 200),
		},
	}
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "redis":
		return "redis"
	default:
		return "memory"
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
