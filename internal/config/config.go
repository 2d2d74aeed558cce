package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DB struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// DSN builds the postgres URL from the DB_* variables.
func (d DB) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", d.User, d.Password, d.Host, d.Port, d.Name)
	if d.SSLMode != "" {
		dsn += "?sslmode=" + d.SSLMode
	}
	return dsn
}

type Redis struct {
	Addr     string
	Password string
}

type Config struct {
	Env      string
	LogLevel string
	Port     string

	DB        DB
	Redis     Redis
	JWTSecret string

	// RateCache is "memory" or "redis".
	RateCache         string
	RateCacheTTL      time.Duration
	MarketDataURL     string
	MarketDataTimeout time.Duration
	BridgeSymbol      string

	// QuoteStore is "memory" or "redis".
	QuoteStore        string
	QuoteTTL          time.Duration
	CommitMaxAttempts int
	CommitRetryBase   time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),
		DB:       loadDB(),
		Redis: Redis{
			Addr:     redisAddr(),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RateCache:     strings.ToLower(getEnv("RATE_CACHE", "memory")),
		MarketDataURL: os.Getenv("MARKET_DATA_URL"),
		BridgeSymbol:  strings.ToUpper(getEnv("BRIDGE_SYMBOL", "USDT")),
		QuoteStore:    strings.ToLower(getEnv("QUOTE_STORE", "memory")),
	}

	var err error
	if cfg.RateCacheTTL, err = getDuration("RATE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MarketDataTimeout, err = getDuration("MARKET_DATA_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.QuoteTTL, err = getDuration("QUOTE_TTL", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.CommitRetryBase, err = getDuration("COMMIT_RETRY_BASE", 20*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CommitMaxAttempts, err = getInt("COMMIT_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDB reads only the DB_* settings. Operator tools use it so they do not
// need the API's secrets.
func LoadDB() DB {
	_ = godotenv.Load()
	return loadDB()
}

func loadDB() DB {
	return DB{
		User:     getEnv("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		Name:     getEnv("DB_NAME", "ledger"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.RateCache != "memory" && c.RateCache != "redis" {
		return fmt.Errorf("RATE_CACHE must be memory or redis, got %q", c.RateCache)
	}
	if c.QuoteStore != "memory" && c.QuoteStore != "redis" {
		return fmt.Errorf("QUOTE_STORE must be memory or redis, got %q", c.QuoteStore)
	}
	if c.CommitMaxAttempts < 1 {
		return fmt.Errorf("COMMIT_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// redisAddr prefers REDIS_ADDR, then REDIS_HOST/REDIS_PORT, then the
// docker-compose service name.
func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getEnv("REDIS_PORT", "6379")
	}
	if os.Getenv("RUN_LOCAL") == "true" {
		return "127.0.0.1:6379"
	}
	return "redis:6379"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
