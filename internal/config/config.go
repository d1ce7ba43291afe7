package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN builds the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config is the changewindow-tracker service configuration, loaded from
// environment variables with local-dev defaults.
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Auth struct {
		// JWTSecret signs and verifies the HS256 bearer tokens. An empty
		// secret disables auth entirely (local dev only).
		JWTSecret string
	}
	Tracker TrackerConfig
}

// TrackerConfig holds the domain settings of the tracker itself.
type TrackerConfig struct {
	// Groups is the catalog of known CRQ group ids. Import sheets are matched
	// against these names; unknown sheets are skipped.
	Groups []string
	// RollbackCacheTTL is the Redis cache lifetime of group rollback flags,
	// in seconds.
	RollbackCacheTTL int
	// TransitionStream is the Redis Stream that receives status-transition
	// events.
	TransitionStream string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "changewindow")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", "")

	cfg.Tracker.Groups = splitCSV(getEnv("TRACKER_GROUPS", "REDE,OPENSHIFT,NFS,SI"))
	cfg.Tracker.RollbackCacheTTL = parseInt(getEnv("TRACKER_ROLLBACK_CACHE_TTL", "30"), 30)
	cfg.Tracker.TransitionStream = getEnv("TRACKER_TRANSITION_STREAM", "changewindow:transitions")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
