package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"SHOPFLOW_APP_NAME":              os.Getenv("SHOPFLOW_APP_NAME"),
		"SHOPFLOW_APP_ENV":               os.Getenv("SHOPFLOW_APP_ENV"),
		"SHOPFLOW_APP_PORT":              os.Getenv("SHOPFLOW_APP_PORT"),
		"SHOPFLOW_DATABASE_HOST":         os.Getenv("SHOPFLOW_DATABASE_HOST"),
		"SHOPFLOW_DATABASE_PASSWORD":     os.Getenv("SHOPFLOW_DATABASE_PASSWORD"),
		"SHOPFLOW_BATCH_FIRST_RUN_AT":    os.Getenv("SHOPFLOW_BATCH_FIRST_RUN_AT"),
		"SHOPFLOW_BATCH_SECOND_RUN_AT":   os.Getenv("SHOPFLOW_BATCH_SECOND_RUN_AT"),
		"SHOPFLOW_BATCH_DEFAULT_CARRIER": os.Getenv("SHOPFLOW_BATCH_DEFAULT_CARRIER"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "shopflow-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, "10:00", cfg.Batch.FirstRunAt)
		assert.Equal(t, "16:00", cfg.Batch.SecondRunAt)
		assert.Equal(t, "cj", cfg.Batch.DefaultCarrier)
		assert.Equal(t, 3, cfg.Retry.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
		assert.Equal(t, 2*time.Minute, cfg.Retry.MaxElapsed)
	})

	t.Run("loads values from environment variables with SHOPFLOW prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHOPFLOW_APP_NAME", "test-app")
		os.Setenv("SHOPFLOW_DATABASE_HOST", "testdb.local")
		os.Setenv("SHOPFLOW_BATCH_FIRST_RUN_AT", "09:30")
		os.Setenv("SHOPFLOW_BATCH_DEFAULT_CARRIER", "hanjin")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, "09:30", cfg.Batch.FirstRunAt)
		assert.Equal(t, "hanjin", cfg.Batch.DefaultCarrier)
	})

	t.Run("rejects malformed batch time", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHOPFLOW_BATCH_FIRST_RUN_AT", "25:99")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects first batch after second batch", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHOPFLOW_BATCH_FIRST_RUN_AT", "18:00")
		os.Setenv("SHOPFLOW_BATCH_SECOND_RUN_AT", "10:00")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("rejects unknown default carrier", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHOPFLOW_BATCH_DEFAULT_CARRIER", "dhl")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("production requires database password", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHOPFLOW_APP_ENV", "production")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "shopflow",
		Password: "p@ss/word",
		DBName:   "shopflow",
		SSLMode:  "disable",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "p%40ss%2Fword")
	assert.Contains(t, dsn, "sslmode=disable")
}
