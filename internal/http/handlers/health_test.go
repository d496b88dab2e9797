package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/retry"
)

func TestGetHealthReportsSystemMetrics(t *testing.T) {
	h := NewHealthHandler("1.0.0")

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.0.0", out.Body.Version)
	assert.NotEmpty(t, out.Body.Uptime)
	assert.NotZero(t, out.Body.CPUInfo.Cores)
	assert.Equal(t, "unknown", out.Body.Database.Status)
}

func TestGetHealthIncludesBreakerStates(t *testing.T) {
	breakers := retry.NewBreakerRegistry(retry.BreakerConfig{FailureThreshold: 2})
	b := breakers.Get("ProLLM")
	b.RecordFailure()
	b.RecordFailure()

	h := NewHealthHandler("dev").WithBreakers(breakers)
	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	require.Len(t, out.Body.Breakers, 1)
	assert.Equal(t, "ProLLM", out.Body.Breakers[0].Provider)
	assert.Equal(t, "open", out.Body.Breakers[0].State)
	assert.Equal(t, []string{"ProLLM"}, out.Body.OpenCircuits)
}

func TestGetHealthReportsDraining(t *testing.T) {
	svc, _, _ := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = svc.Drain(ctx)

	h := NewHealthHandler("dev").WithJobService(svc)
	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "draining", out.Body.Status)
	assert.True(t, out.Body.Draining)
}

func TestGetLivez(t *testing.T) {
	h := NewHealthHandler("dev")
	out, err := h.GetLivez(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Body.Status)
}

func TestGetReadyzWithoutDatabase(t *testing.T) {
	h := NewHealthHandler("dev")
	out, err := h.GetReadyz(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "not_ready", out.Body.Status)
	assert.Equal(t, "not_configured", out.Body.Components["database"])
	assert.Equal(t, "ok", out.Body.Components["jobs"])
}
