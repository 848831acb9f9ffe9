package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL   string
	DBMaxConns    int32
	ServerAddr    string
	StoreDriver   string
	MigrationsDir string
	LogLevel      string

	LockTTL            time.Duration
	SweepInterval      time.Duration
	SweepBatch         int
	DuplicatePolicy    string
	ForceReleasePolicy string

	JWTSecret         string
	JWTKeys           string
	JWTDefaultKeyID   string
	TrustedHeaderAuth bool

	RateLimitRPS   float64
	RateLimitBurst int

	CatalogURL       string
	CatalogTimeout   time.Duration
	CatalogCacheSize int
	CatalogCacheTTL  time.Duration
}

// Load reads configuration from environment, seeded from a .env file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "negotiation")
		pass := getenv("POSTGRES_PASSWORD", "negotiation_pass")
		db := getenv("POSTGRES_DB", "negotiation")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	cfg := &Config{
		DatabaseURL:   dsn,
		DBMaxConns:    int32(parseInt(getenv("DB_MAX_CONNS", "10"), 10)),
		ServerAddr:    getenv("SERVER_ADDR", "0.0.0.0:8080"),
		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", "postgres")),
		MigrationsDir: getenv("MIGRATIONS_DIR", "internal/migrations"),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		LockTTL:            parseDuration(getenv("LOCK_TTL", "5m"), 5*time.Minute),
		SweepInterval:      parseDuration(getenv("SWEEP_INTERVAL", "30s"), 30*time.Second),
		SweepBatch:         parseInt(getenv("SWEEP_BATCH", "200"), 200),
		DuplicatePolicy:    strings.ToLower(getenv("DUPLICATE_POLICY", "reject")),
		ForceReleasePolicy: strings.ToLower(getenv("FORCE_RELEASE_POLICY", "any")),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTKeys:           os.Getenv("JWT_KEYS"),
		JWTDefaultKeyID:   os.Getenv("JWT_DEFAULT_KEY_ID"),
		TrustedHeaderAuth: parseBool(getenv("AUTH_TRUSTED_HEADER", "false"), false),

		RateLimitRPS:   parseFloat(getenv("RATE_LIMIT_RPS", "20"), 20),
		RateLimitBurst: parseInt(getenv("RATE_LIMIT_BURST", "40"), 40),

		CatalogURL:       os.Getenv("CATALOG_URL"),
		CatalogTimeout:   parseDuration(getenv("CATALOG_TIMEOUT", "3s"), 3*time.Second),
		CatalogCacheSize: parseInt(getenv("CATALOG_CACHE_SIZE", "1024"), 1024),
		CatalogCacheTTL:  parseDuration(getenv("CATALOG_CACHE_TTL", "10m"), 10*time.Minute),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	switch c.DuplicatePolicy {
	case "reject", "allow":
	default:
		return fmt.Errorf("DUPLICATE_POLICY must be reject or allow, got %q", c.DuplicatePolicy)
	}
	switch c.ForceReleasePolicy {
	case "any", "owner":
	default:
		return fmt.Errorf("FORCE_RELEASE_POLICY must be any or owner, got %q", c.ForceReleasePolicy)
	}
	if c.LockTTL < time.Second {
		return fmt.Errorf("LOCK_TTL must be at least 1s, got %s", c.LockTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.SweepBatch < 1 {
		return fmt.Errorf("SWEEP_BATCH must be at least 1, got %d", c.SweepBatch)
	}
	if c.JWTSecret == "" && c.JWTKeys == "" && !c.TrustedHeaderAuth {
		return fmt.Errorf("JWT_SECRET or JWT_KEYS is required unless AUTH_TRUSTED_HEADER is enabled")
	}
	return nil
}

// LockTTLSeconds is the lease length in whole seconds.
func (c *Config) LockTTLSeconds() int {
	return int(c.LockTTL / time.Second)
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return n
}

func parseFloat(val string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return def
	}
	return f
}
