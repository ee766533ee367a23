package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithPath_Defaults(t *testing.T) {
	path := writeEnvFile(t, "APP_NAME=fipe-test\n")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, "fipe-test", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://fipe.parallelum.com.br/api/v2", cfg.Fipe.BaseURL)
	assert.Equal(t, "", cfg.Fipe.Token)
	assert.Equal(t, 30*time.Second, cfg.Fipe.Timeout)
	assert.Zero(t, cfg.Fipe.CacheTTL)
	assert.Equal(t, "redis", cfg.AuthEvents.Backend)
	assert.True(t, cfg.Session.IncludeProfile)
	assert.Equal(t, "/login", cfg.Session.LoginPath)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadWithPath_FileValues(t *testing.T) {
	path := writeEnvFile(t, "SERVER_PORT=9090\nFIPE_API_BASE_URL=http://fipe.local/api/v2/\nFIPE_CACHE_TTL=10m\nKAFKA_BROKERS=a:9092, b:9092\n")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://fipe.local/api/v2", cfg.Fipe.BaseURL)
	assert.Equal(t, 10*time.Minute, cfg.Fipe.CacheTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadWithPath_PublicTokenFallback(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_FIPE_API_TOKEN", "public-token")
	path := writeEnvFile(t, "APP_NAME=fipe-test\n")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)
	assert.Equal(t, "public-token", cfg.Fipe.Token)

	t.Setenv("FIPE_API_TOKEN", "server-token")
	cfg, err = LoadWithPath(path)
	require.NoError(t, err)
	assert.Equal(t, "server-token", cfg.Fipe.Token)
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:        AppConfig{Name: "fipe-garage"},
			Server:     ServerConfig{Port: 8080},
			Fipe:       FipeConfig{BaseURL: "http://fipe"},
			AuthEvents: AuthEventsConfig{Backend: "redis"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing app name", func(c *Config) { c.App.Name = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"missing base url", func(c *Config) { c.Fipe.BaseURL = "" }, true},
		{"kafka backend", func(c *Config) { c.AuthEvents.Backend = "kafka" }, false},
		{"unknown backend", func(c *Config) { c.AuthEvents.Backend = "nats" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateJWT(t *testing.T) {
	cfg := &Config{JWT: JWTConfig{Secret: defaultJWTSecret}}
	assert.NoError(t, cfg.ValidateJWT())

	cfg.App.Environment = "production"
	assert.Error(t, cfg.ValidateJWT())

	cfg.JWT.Secret = "rotated"
	assert.NoError(t, cfg.ValidateJWT())

	cfg.JWT.Secret = ""
	assert.Error(t, cfg.ValidateJWT())
}
