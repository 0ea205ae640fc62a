package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Redis.PreferenceTTL)
	assert.Equal(t, EmailLog, cfg.Email.Provider)
	assert.Equal(t, PushNone, cfg.Push.Provider)
	assert.Equal(t, 4, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Queue.DrainInterval)
	assert.Equal(t, 50, cfg.Queue.DrainBatchSize)
	assert.Equal(t, "UTC", cfg.DefaultTimezone)
	assert.Empty(t, cfg.SQS.QueueURL)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DB_URL", "postgres://u:p@db:5432/courier")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ENDPOINT_URL", "http://localstack:4566")
	t.Setenv("EMAIL_PROVIDER", "postmark")
	t.Setenv("POSTMARK_SERVER_TOKEN", "server-token")
	t.Setenv("PUSH_PROVIDER", "http")
	t.Setenv("PUSH_URL", "https://push.example.com/send")
	t.Setenv("MAX_ATTEMPTS", "6")
	t.Setenv("DRAIN_INTERVAL", "5s")
	t.Setenv("BREAKER_MAX_FAILURES", "3")
	t.Setenv("SQS_QUEUE_URL", "http://localstack:4566/000000000000/dispatch")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("DEFAULT_TIMEZONE", "Asia/Tokyo")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "postgres://u:p@db:5432/courier", cfg.Database.URL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "http://localstack:4566", cfg.AWS.Endpoint)
	assert.Equal(t, "server-token", cfg.Email.PostmarkServerToken)
	assert.Equal(t, "https://push.example.com/send", cfg.Push.URL)
	assert.Equal(t, 6, cfg.Queue.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Queue.DrainInterval)
	assert.Equal(t, 3, cfg.Breaker.MaxFailures)
	assert.Equal(t, int32(20), cfg.SQS.WaitSeconds)
	assert.Equal(t, "collector:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, "Asia/Tokyo", cfg.DefaultTimezone)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"store driver", map[string]string{"STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"postmark without token", map[string]string{"EMAIL_PROVIDER": "postmark"}, "POSTMARK_SERVER_TOKEN"},
		{"http push without url", map[string]string{"PUSH_PROVIDER": "http"}, "PUSH_URL"},
		{"unknown email provider", map[string]string{"EMAIL_PROVIDER": "carrier-pigeon"}, "EMAIL_PROVIDER"},
		{"zero attempts", map[string]string{"MAX_ATTEMPTS": "0"}, "MAX_ATTEMPTS"},
		{"timezone", map[string]string{"DEFAULT_TIMEZONE": "Mars/Olympus"}, "DEFAULT_TIMEZONE"},
		{"negative priority", map[string]string{"DEFAULT_PRIORITY": "-1"}, "DEFAULT_PRIORITY"},
		{"malformed int", map[string]string{"PORT": "eighty"}, `field "Port"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
