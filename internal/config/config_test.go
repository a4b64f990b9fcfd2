package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsObservabilityKeys(t *testing.T) {
	t.Setenv("APP_NAME", "pledgesync-test")
	t.Setenv("APP_VERSION", "2.0.1")
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("LOG_LEVEL", " Debug ")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")

	cfg := Load()

	assert.Equal(t, "pledgesync-test", cfg.AppName)
	assert.Equal(t, "2.0.1", cfg.AppVersion)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "otel:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
}

func TestLoadKeepsDefaultOnUnparseableBool(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "sometimes")

	assert.False(t, Load().OtelEnabled)
}
