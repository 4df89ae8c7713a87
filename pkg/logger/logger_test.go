package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsLevelByEnvironment(t *testing.T) {
	tests := []struct {
		env  Environment
		want zapcore.Level
	}{
		{EnvironmentProduction, zapcore.InfoLevel},
		{EnvironmentDevelopment, zapcore.DebugLevel},
		{EnvironmentLocal, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(string(tt.env), func(t *testing.T) {
			log, level, err := New(Config{Environment: tt.env})
			require.NoError(t, err)
			require.NotNil(t, log)
			assert.Equal(t, tt.want, level.Level())
		})
	}
}

func TestNewExplicitLevel(t *testing.T) {
	log, level, err := New(Config{Environment: EnvironmentProduction, Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel), "level can be changed at runtime")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, _, err := New(Config{Environment: "moon"})
	assert.Error(t, err)

	_, _, err = New(Config{Environment: EnvironmentProduction, Level: "loud"})
	assert.Error(t, err)
}
