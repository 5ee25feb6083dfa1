package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Address())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yaml := `
server:
  port: 8081
  base_path: /v1
database:
  driver: postgres
  url: postgres://localhost/app
rate_limit:
  enabled: true
  window: 30s
  max: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "betterquery.yaml"), []byte(yaml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BETTERQUERY_AUTH_JWT_SECRET=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("BETTERQUERY_AUTH_JWT_SECRET") })
	t.Setenv("BETTERQUERY_SERVER_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/app", cfg.Database.URL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 3000, BasePath: "/api"},
			Database: DatabaseConfig{Driver: "sqlite"},
			Log:      LogConfig{Level: "info"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"base path without slash", func(c *Config) { c.Server.BasePath = "api" }},
		{"base path trailing slash", func(c *Config) { c.Server.BasePath = "/api/" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"rate limit without max", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true, Window: time.Second} }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
