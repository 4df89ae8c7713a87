package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 3306, User: "ledger", Password: "secret", DBName: "wallet"}
	assert.Equal(t, "ledger:secret@tcp(db:3306)/wallet?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true", cfg.DSN())

	cfg.RawDSN = "root@tcp(localhost)/x"
	assert.Equal(t, "root@tcp(localhost)/x", cfg.DSN())
}

func TestConfigRetryDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, 10, cfg.attempts())
	assert.Equal(t, 2*time.Second, cfg.retryInterval())

	cfg.ConnectAttempts = 1
	cfg.RetryInterval = time.Millisecond
	assert.Equal(t, 1, cfg.attempts())
	assert.Equal(t, time.Millisecond, cfg.retryInterval())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, parseLogLevel("info"))
	assert.Equal(t, logger.Silent, parseLogLevel("silent"))
	assert.Equal(t, logger.Error, parseLogLevel("verbose"))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newLogger(zap.New(core), "warn", 10*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	l.Trace(ctx, time.Now(), sql, nil)
	assert.Zero(t, logs.Len(), "not found and fast queries are quiet at warn")

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	l.Trace(ctx, time.Now(), sql, errors.New("deadlock"))
	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "slow query", entries[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
		assert.Equal(t, "SELECT 1", entries[1].ContextMap()["sql"])
	}

	silent := l.LogMode(logger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())
}
