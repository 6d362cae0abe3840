package backoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/backoff"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestCompute_ExponentialGrowsWithAttempts(t *testing.T) {
	t.Parallel()

	cfg := backoff.DefaultConfig()
	cfg.BaseDelay = 1 * time.Second
	cfg.Multiplier = 2
	cfg.JitterEnabled = false
	policy := backoff.NewPolicy(cfg, backoff.WithNow(fixedNow))

	out1, err := policy.Compute(context.Background(), 1, "")
	require.NoError(t, err)
	out2, err := policy.Compute(context.Background(), 2, "")
	require.NoError(t, err)

	assert.Equal(t, "exponential", out1.Type)
	assert.True(t, out2.BackoffUntil.After(out1.BackoffUntil) || out2.BackoffUntil.Equal(out1.BackoffUntil))
}

func TestCompute_ServerDirectedTakesPriority(t *testing.T) {
	t.Parallel()

	cfg := backoff.DefaultConfig()
	policy := backoff.NewPolicy(cfg, backoff.WithNow(fixedNow))

	out, err := policy.Compute(context.Background(), 1, "5")
	require.NoError(t, err)
	assert.Equal(t, "server_requested", out.Type)
	assert.Equal(t, fixedNow().Add(5*time.Second), out.BackoffUntil)
}

func TestCompute_ServerDirectedClampedToMaxServerBackoff(t *testing.T) {
	t.Parallel()

	cfg := backoff.DefaultConfig()
	cfg.MaxDelay = 0
	policy := backoff.NewPolicy(cfg, backoff.WithNow(fixedNow))

	out, err := policy.Compute(context.Background(), 1, "99999")
	require.NoError(t, err)
	assert.Equal(t, fixedNow().Add(1*time.Hour), out.BackoffUntil)
}

func TestCompute_ServerDirectedClampedToConfiguredMaxDelay(t *testing.T) {
	t.Parallel()

	cfg := backoff.DefaultConfig()
	cfg.MaxDelay = 30 * time.Minute
	policy := backoff.NewPolicy(cfg, backoff.WithNow(fixedNow))

	out, err := policy.Compute(context.Background(), 1, "99999")
	require.NoError(t, err)
	assert.Equal(t, fixedNow().Add(30*time.Minute), out.BackoffUntil)
}

func TestCompute_FloorAppliesToTinyExponential(t *testing.T) {
	t.Parallel()

	cfg := backoff.DefaultConfig()
	cfg.BaseDelay = 1 * time.Second
	cfg.MinDelay = 900 * time.Millisecond
	cfg.Multiplier = 0.01
	policy := backoff.NewPolicy(cfg, backoff.WithNow(fixedNow))

	out, err := policy.Compute(context.Background(), 1, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.BackoffUntil.Sub(fixedNow()), cfg.MinDelay)
}

func TestParseRetryAfter_IntegerSeconds(t *testing.T) {
	t.Parallel()

	got, err := backoff.ParseRetryAfter("120", fixedNow())
	require.NoError(t, err)
	assert.Equal(t, fixedNow().Add(120*time.Second), got)
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	t.Parallel()

	date := fixedNow().Add(2 * time.Hour).Format(time.RFC1123)
	got, err := backoff.ParseRetryAfter(date, fixedNow())
	require.NoError(t, err)
	assert.WithinDuration(t, fixedNow().Add(2*time.Hour), got, time.Second)
}

func TestParseRetryAfter_Invalid(t *testing.T) {
	t.Parallel()

	_, err := backoff.ParseRetryAfter("not-a-time", fixedNow())
	require.Error(t, err)
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status        int
		retryable     bool
		forcedBackoff bool
	}{
		{429, true, true},
		{503, true, true},
		{400, false, false},
		{401, false, false},
		{404, false, false},
		{422, false, false},
		{500, true, false},
		{502, true, false},
	}

	for _, c := range cases {
		retryable, forced := backoff.ClassifyHTTPStatus(c.status)
		assert.Equal(t, c.retryable, retryable, "status %d retryable", c.status)
		assert.Equal(t, c.forcedBackoff, forced, "status %d forcedBackoff", c.status)
	}
}
