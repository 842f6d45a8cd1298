package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AGENT_RUNTIME_URL", "http://agent.local")

	cfg := LoadConfig()

	assert.Equal(t, 1, cfg.Queue.JobConcurrency)
	assert.Equal(t, 1, cfg.Workflow.FanOutLimit)
	assert.Equal(t, 15*time.Minute, cfg.Agent.Timeout)
	assert.Equal(t, 3, cfg.Workflow.RetryMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Workflow.RetryInitialInterval)
	assert.Equal(t, 20*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 15*time.Second, cfg.Queue.RetryVisibility)
	assert.Equal(t, 3, cfg.Queue.MaxReceives)
	assert.Equal(t, 5*time.Minute, cfg.Queue.DedupWindow)
	assert.Equal(t, 24*time.Hour, cfg.Queue.MaxWait)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AGENT_RUNTIME_URL", "http://agent.local")
	t.Setenv("JOB_CONCURRENCY", "4")
	t.Setenv("FAN_OUT_LIMIT", "8")
	t.Setenv("AGENT_TIMEOUT", "90s")
	t.Setenv("AGENT_RATE_LIMIT", "2.5")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("RETRY_MAX_ATTEMPTS", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 4, cfg.Queue.JobConcurrency)
	assert.Equal(t, 8, cfg.Workflow.FanOutLimit)
	assert.Equal(t, 90*time.Second, cfg.Agent.Timeout)
	assert.InDelta(t, 2.5, cfg.Agent.RateLimit, 1e-9)
	assert.True(t, cfg.Storage.UsePathStyle)
	assert.Equal(t, 3, cfg.Workflow.RetryMaxAttempts, "unparsable values fall back to the default")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Queue.JobConcurrency = 0 }},
		{"zero fan out", func(c *Config) { c.Workflow.FanOutLimit = 0 }},
		{"zero attempts", func(c *Config) { c.Workflow.RetryMaxAttempts = 0 }},
		{"unknown backend", func(c *Config) { c.Queue.Backend = "sqs" }},
		{"missing agent url", func(c *Config) { c.Agent.RuntimeURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AGENT_RUNTIME_URL", "http://agent.local")
			cfg := LoadConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}
