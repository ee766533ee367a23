package database

import (
	"context"
	"testing"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := &PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "auth",
		Password: "secret",
		Database: "auth_db",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db.internal port=5433 user=auth password=secret dbname=auth_db sslmode=require", cfg.DSN())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.DatabaseConfig{
		Host:            "db",
		Port:            5432,
		User:            "postgres",
		DBName:          "auth_db",
		SSLMode:         "disable",
		MaxOpenConns:    40,
		MaxIdleConns:    8,
		ConnMaxLifetime: 2 * time.Hour,
	}, true)

	assert.Equal(t, int32(40), cfg.MaxConns)
	assert.Equal(t, int32(8), cfg.MinConns)
	assert.Equal(t, 2*time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnIdleTime)
	assert.True(t, cfg.EnableTracing)
}

func TestFromConfig_IdleClampedToMax(t *testing.T) {
	cfg := FromConfig(config.DatabaseConfig{MaxOpenConns: 4, MaxIdleConns: 10}, false)

	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, int32(4), cfg.MinConns)
}

func TestNewPostgres_Unreachable(t *testing.T) {
	cfg := DefaultPostgresConfig()
	cfg.Host = "invalid-host-that-does-not-exist"
	cfg.MaxRetries = 0
	cfg.ConnectTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewPostgres(ctx, cfg)
	assert.Error(t, err)
}
