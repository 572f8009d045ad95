package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port        string
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	JWTSecret   string
	JWTTTL      time.Duration
	RedisAddr   string
	LogMode     string
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:        getenv("PORT", "8080"),
		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH", "freehub.db"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RedisAddr:   redisAddr(),
		LogMode:     getenv("LOG_MODE", "dev"),
	}

	ttl, err := time.ParseDuration(getenv("JWT_TTL", "72h"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing JWT_TTL: %w", err)
	}
	if ttl <= 0 {
		return Config{}, errors.New("JWT_TTL must be positive")
	}
	cfg.JWTTTL = ttl

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = postgresDSN()
		}
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("postgres store requires DATABASE_URL or DB_HOST/DB_NAME")
		}
	case DriverSQLite, DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		if cfg.StoreDriver != DriverMemory {
			return Config{}, errors.New("JWT_SECRET is required")
		}
		cfg.JWTSecret = "dev-secret"
	}
	return cfg, nil
}

// AlertsEnabled reports whether a Redis address was configured.
func (c Config) AlertsEnabled() bool { return c.RedisAddr != "" }

func postgresDSN() string {
	host, name := os.Getenv("DB_HOST"), os.Getenv("DB_NAME")
	if host == "" || name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + getenv("DB_PORT", "5432"),
		Path:   "/" + name,
	}
	if user := os.Getenv("DB_USER"); user != "" {
		u.User = url.UserPassword(user, os.Getenv("DB_PASSWORD"))
	}
	return u.String()
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getenv("REDIS_PORT", "6379")
	}
	return ""
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
