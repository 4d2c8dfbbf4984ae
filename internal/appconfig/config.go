package appconfig

import (
	"fmt"
	"os"
	"strconv"
)

// Postgres holds connection settings for the durable collaborators
// (archive, schedule, attempt wallet).
type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Redis holds connection settings for the ranking store's ordered-set
// primitive.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// NATS holds the broadcast bus address.
type NATS struct {
	URL string
}

// Config aggregates the external endpoints the server talks to.
type Config struct {
	Postgres Postgres
	Redis    Redis
	NATS     NATS
}

// NewConfigFromEnv reads PG_*/REDIS_*/NATS_* environment variables with
// local-development defaults.
func NewConfigFromEnv() Config {
	return Config{
		Postgres: Postgres{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnvAsInt("PG_PORT", 5432),
			User:     getEnv("PG_USER", "postgres"),
			Password: getEnv("PG_PASSWORD", "postgres"),
			Database: getEnv("PG_DATABASE", "splitsecond"),
			SSLMode:  getEnv("PG_SSLMODE", "disable"),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATS{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
	}
}

// DSN returns the Postgres connection URL.
func (p Postgres) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
