package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg := Load()
	assert.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "changewindow", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, []string{"REDE", "OPENSHIFT", "NFS", "SI"}, cfg.Tracker.Groups)
	assert.Equal(t, 30, cfg.Tracker.RollbackCacheTTL)
	assert.Equal(t, "changewindow:transitions", cfg.Tracker.TransitionStream)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("TRACKER_GROUPS", "ALPHA, BETA ,GAMMA")
	os.Setenv("AUTH_JWT_SECRET", "supersecret")
	defer os.Clearenv()

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"ALPHA", "BETA", "GAMMA"}, cfg.Tracker.Groups)
	assert.Equal(t, "supersecret", cfg.Auth.JWTSecret)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.local",
		Port:     5433,
		User:     "app",
		Password: "pw",
		Database: "changewindow",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.local port=5433 user=app password=pw dbname=changewindow sslmode=require",
		cfg.DSN())
}
