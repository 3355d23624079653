/*
config.go - Server configuration from the environment

PURPOSE:
  Reads the server settings from environment variables, after loading a
  .env file when one is present. Command-line flags in cmd/server override
  what is read here.

VARIABLES:
  PORT                   HTTP port (default 8080)
  STORE_DRIVER           memory | sqlite | postgres (default sqlite)
  SQLITE_PATH            SQLite file, ":memory:" allowed (default station.db)
  DATABASE_URL           Postgres URL; implies STORE_DRIVER=postgres when set
  REDIS_ADDR             Report cache; empty means in-process cache
  REDIS_PASSWORD, REDIS_DB
  REPORT_CACHE_TTL       Go duration (default 5m, 0 disables caching)
  AUDIT_INTERVAL         Go duration (default 1h, 0 disables the scheduler)
  ALLOWED_ORIGINS        Comma separated CORS origins
  STATION_TIMEZONE       IANA name used for business days (default UTC)

SEE ALSO:
  - cmd/server/main.go: Applies flags and wires the stores
*/
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port           int
	StoreDriver    string
	SQLitePath     string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ReportCacheTTL time.Duration
	AuditInterval  time.Duration
	AllowedOrigins []string
	Timezone       string
}

// Load reads .env (if any) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] Ignoring .env: %v", err)
	}
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() Config {
	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port < 1 {
		port = 8080
	}
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:           port,
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:     getEnv("SQLITE_PATH", "station.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        redisDB,
		ReportCacheTTL: getDuration("REPORT_CACHE_TTL", 5*time.Minute),
		AuditInterval:  getDuration("AUDIT_INTERVAL", time.Hour),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		Timezone:       getEnv("STATION_TIMEZONE", "UTC"),
	}
	if cfg.DatabaseURL != "" && os.Getenv("STORE_DRIVER") == "" {
		cfg.StoreDriver = DriverPostgres
	}
	return cfg
}

// Validate checks the combination of settings before anything is opened.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("STATION_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("[Config] Invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
