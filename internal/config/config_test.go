package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
)

// clearEnv 確保測試不受外部環境變數影響
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvGRPCAddr, EnvHTTPAddr, EnvDriver, EnvWALPath, EnvMySQLDSN, EnvPostgresURL, EnvLogLevel, EnvEnvironment} {
		if value, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, value) })
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "wal.log", cfg.Storage.WALPath)
	assert.Equal(t, logger.EnvironmentProduction, cfg.Log.Environment)
	assert.Equal(t, 100, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.MySQL.ConnMaxLifetime)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server:
  grpc_addr: ":6000"
  shutdown_timeout: 3s
storage:
  driver: mysql
  wal_path: ""
mysql:
  host: db
  port: 3307
  user: ledger
  dbname: wallet
  connmaxlifetime: 5m
log:
  environment: development
  level: debug
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Server.GRPCAddr)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverMySQL, cfg.Storage.Driver)
	assert.Empty(t, cfg.Storage.WALPath)
	assert.Equal(t, "db", cfg.MySQL.Host)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, "wallet", cfg.MySQL.DBName)
	assert.Equal(t, 5*time.Minute, cfg.MySQL.ConnMaxLifetime)
	assert.Equal(t, logger.EnvironmentDevelopment, cfg.Log.Environment)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "storage:\n  driver: memory\n")
	t.Setenv(EnvDriver, "postgres")
	t.Setenv(EnvPostgresURL, "postgres://localhost/ledger")

	envFile := writeFile(t, ".env", "LEDGER_HTTP_ADDR=:9999\nLEDGER_STORAGE_DRIVER=mysql\n")
	t.Cleanup(func() { _ = os.Unsetenv(EnvHTTPAddr) })

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver, "process env wins over .env")
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr, ".env fills unset variables")
	assert.Equal(t, "postgres://localhost/ledger", cfg.Postgres.URL)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	noEnv := filepath.Join(t.TempDir(), "missing.env")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnv)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [\n"), noEnv)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "driver.yaml", "storage:\n  driver: redis\n"), noEnv)
	assert.ErrorContains(t, err, "unknown storage driver")

	_, err = Load(writeFile(t, "pg.yaml", "storage:\n  driver: postgres\n"), noEnv)
	assert.ErrorContains(t, err, EnvPostgresURL)
}
