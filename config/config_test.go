package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func loadFrom(t *testing.T, path string, args ...string) (*Config, error) {
	t.Helper()
	fs := Flags()
	require.NoError(t, fs.Parse(append([]string{"--config", path}, args...)))
	return Load(fs)
}

// go test -v --run TestLoad
func TestLoad(t *testing.T) {
	cfg, err := loadFrom(t, "config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "dev", cfg.Log.Environment)
	assert.Equal(t, "5m", cfg.Resample.Interval)
	assert.Equal(t, []string{"BTC_JPY", "ETH_JPY"}, cfg.Resample.Symbols)
	assert.Equal(t, time.Hour, cfg.Postgres.ConnMaxLifetime)

	d, err := cfg.Resample.IntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	fetch, err := cfg.Resample.FetchIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, fetch)

	start, end, err := cfg.Resample.Window()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, end.Sub(start))

	loc, err := cfg.Files.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	cfg, err := loadFrom(t, "config.yaml", "--resample.interval", "1h", "--resample.symbols", "XRP_JPY", "--resample.mode", "volume")
	require.NoError(t, err)

	assert.Equal(t, "1h", cfg.Resample.Interval)
	assert.Equal(t, []string{"XRP_JPY"}, cfg.Resample.Symbols)
	assert.Equal(t, "volume", cfg.Resample.Mode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("RESAMPLE_INTERVAL", "15m")
	t.Setenv("POSTGRES_HOST", "db.internal")

	cfg, err := loadFrom(t, "config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "15m", cfg.Resample.Interval)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad interval":       "resample:\n  interval: 5x\n",
		"bad fetch interval": "resample:\n  fetch_interval: 0d\n",
		"bad volume size":    "resample:\n  volume_size: -1\n",
		"bad mode":           "resample:\n  mode: stream\n",
		"bad start":          "resample:\n  start: yesterday\n",
		"bad timezone":       "files:\n  timezone: Mars/Olympus\n",
		"bad log level":      "log:\n  level: loud\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadFrom(t, writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := loadFrom(t, writeConfig(t, "env: prod\n"))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Log.Environment)
	assert.Equal(t, "1m", cfg.Resample.Interval)
	assert.Equal(t, 4, cfg.Resample.Concurrency)
	assert.Equal(t, "Asia/Tokyo", cfg.Files.Timezone)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := loadFrom(t, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "localhost", Port: 5432, User: "postgres", Password: "pw",
		DBName: "tickbars", SSLMode: "disable", TimeZone: "UTC",
	}

	dsn, err := cfg.DSN("dev")
	require.NoError(t, err)
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=tickbars sslmode=disable TimeZone=UTC",
		dsn)

	cfg.TimeZone = ""
	dsn, err = cfg.DSN("dev")
	require.NoError(t, err)
	assert.NotContains(t, dsn, "TimeZone")
}

func stubParameterStore(t *testing.T, fn func(name string, decrypt bool) (string, error)) {
	t.Helper()
	orig := parameterStore
	parameterStore = fn
	t.Cleanup(func() { parameterStore = orig })
}

func TestPostgresDSN_Prod(t *testing.T) {
	stubParameterStore(t, func(name string, _ bool) (string, error) {
		return map[string]string{
			"/tickbars/DB_HOST":     "db.internal",
			"/tickbars/DB_USER":     "svc",
			"/tickbars/DB_PASSWORD": "secret",
		}[name], nil
	})

	cfg := PostgresConfig{Host: "localhost", Port: 5432, DBName: "tickbars", SSLMode: "require", SSMPrefix: "/tickbars/"}
	dsn, err := cfg.DSN("prod")
	require.NoError(t, err)
	assert.Equal(t, "host=db.internal port=5432 user=svc password=secret dbname=tickbars sslmode=require", dsn)
}

func TestPostgresDSN_ProdParameterError(t *testing.T) {
	ssmErr := errors.New("AccessDeniedException")
	stubParameterStore(t, func(name string, _ bool) (string, error) {
		if name == "/tickbars/DB_USER" {
			return "", ssmErr
		}
		return "x", nil
	})

	cfg := PostgresConfig{Port: 5432, DBName: "tickbars", SSMPrefix: "/tickbars/"}
	dsn, err := cfg.DSN("prod")
	assert.ErrorIs(t, err, ssmErr)
	assert.Empty(t, dsn)
}
