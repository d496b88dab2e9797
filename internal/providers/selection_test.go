package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/models"
)

func manifests() []Manifest {
	return []Manifest{
		{Name: "openai", Tier: TierPro, OnlineRequired: true},
		{Name: "ollama", Tier: TierLocal},
		{Name: "rulebased", Tier: TierFree},
	}
}

func names(chain []Manifest) []string {
	out := make([]string, len(chain))
	for i, m := range chain {
		out[i] = m.Name
	}
	return out
}

func TestSelectProPrefersProThenLocalThenFree(t *testing.T) {
	chain, record, err := Select(RequestPro, false, manifests())
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "ollama", "rulebased"}, names(chain))
	assert.Equal(t, "openai", record.Primary)
	assert.False(t, record.IsFallback)
}

func TestSelectProWithoutProProviderRecordsFallback(t *testing.T) {
	available := []Manifest{
		{Name: "ollama", Tier: TierLocal},
		{Name: "rulebased", Tier: TierFree},
	}
	chain, record, err := Select(RequestPro, false, available)
	require.NoError(t, err)
	assert.Equal(t, "ollama", chain[0].Name)
	assert.True(t, record.IsFallback)
	assert.Equal(t, RequestPro, record.FallbackFrom)
}

func TestSelectFreeExcludesPro(t *testing.T) {
	chain, record, err := Select(RequestFree, false, manifests())
	require.NoError(t, err)
	assert.Equal(t, []string{"rulebased", "ollama"}, names(chain))
	assert.False(t, record.IsFallback)
	assert.Equal(t, "rulebased", record.Primary)
}

func TestSelectOfflineProFailsFast(t *testing.T) {
	_, _, err := Select(RequestPro, true, manifests())
	require.Error(t, err)
	assert.Equal(t, models.CodeOfflineViolation, models.CodeOf(err))
}

func TestSelectOfflineProIfAvailableDowngrades(t *testing.T) {
	chain, record, err := Select(RequestProIfAvailable, true, manifests())
	require.NoError(t, err)
	assert.Equal(t, []string{"rulebased", "ollama"}, names(chain))
	assert.Equal(t, "offline", record.DowngradeReason)
	assert.True(t, record.IsFallback)
	assert.Equal(t, RequestProIfAvailable, record.FallbackFrom)
}

func TestSelectOfflineFiltersOnlineRequired(t *testing.T) {
	available := []Manifest{
		{Name: "cloudtts", Tier: TierFree, OnlineRequired: true},
		{Name: "nulltts", Tier: TierFree},
	}
	chain, _, err := Select(RequestFree, true, available)
	require.NoError(t, err)
	assert.Equal(t, []string{"nulltts"}, names(chain))
}

func TestSelectEmptyChainIsNoProvider(t *testing.T) {
	_, _, err := Select(RequestFree, true, []Manifest{
		{Name: "cloud", Tier: TierFree, OnlineRequired: true},
	})
	require.Error(t, err)
	assert.Equal(t, models.CodeNoProvider, models.CodeOf(err))
}

func TestSelectProIfAvailableNeverRecordsTierFallback(t *testing.T) {
	available := []Manifest{{Name: "rulebased", Tier: TierFree}}
	chain, record, err := Select(RequestProIfAvailable, false, available)
	require.NoError(t, err)
	assert.Equal(t, "rulebased", chain[0].Name)
	assert.False(t, record.IsFallback)
}

func TestSelectDeduplicates(t *testing.T) {
	available := []Manifest{
		{Name: "dup", Tier: TierFree},
		{Name: "dup", Tier: TierFree},
	}
	chain, _, err := Select(RequestFree, false, available)
	require.NoError(t, err)
	assert.Len(t, chain, 1)
}

func TestRegistryFreezePanicsOnLateRegistration(t *testing.T) {
	reg := NewRegistry()
	reg.Freeze()
	assert.Panics(t, func() {
		reg.RegisterLLM(stubLLM{name: "late"})
	})
}

func TestRegistryManifestsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterLLM(stubLLM{name: "zeta"})
	reg.RegisterLLM(stubLLM{name: "alpha"})
	reg.Freeze()

	ms := reg.Manifests(CategoryLLM)
	require.Len(t, ms, 2)
	assert.Equal(t, "alpha", ms[0].Name)
	assert.Equal(t, "zeta", ms[1].Name)

	_, ok := reg.LLM("alpha")
	assert.True(t, ok)
	_, ok = reg.LLM("missing")
	assert.False(t, ok)
}

type stubLLM struct{ name string }

func (s stubLLM) Manifest() Manifest { return Manifest{Name: s.name, Tier: TierFree} }

func (s stubLLM) DraftScript(_ context.Context, _ models.Brief, _ models.PlanSpec) (string, error) {
	return "", nil
}
