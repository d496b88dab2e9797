// Package providers defines the capability types, the name-keyed registry,
// and the tier-aware selection engine that together decide which provider
// executes each pipeline stage.
package providers

import (
	"context"

	"github.com/aura-studio/aura/internal/models"
)

// ProviderTier is the quality class of a provider.
type ProviderTier string

const (
	TierFree  ProviderTier = "Free"
	TierPro   ProviderTier = "Pro"
	TierLocal ProviderTier = "Local"
)

// Valid reports whether t is a known provider tier.
func (t ProviderTier) Valid() bool {
	return t == TierFree || t == TierPro || t == TierLocal
}

// RequestedTier is the caller's tier preference for a job.
type RequestedTier string

const (
	RequestFree           RequestedTier = "Free"
	RequestProIfAvailable RequestedTier = "ProIfAvailable"
	RequestPro            RequestedTier = "Pro"
)

// Valid reports whether t is a known requested tier.
func (t RequestedTier) Valid() bool {
	return t == RequestFree || t == RequestProIfAvailable || t == RequestPro
}

// Manifest is the introspection record every provider exposes. Selection
// operates on manifests only, never on the capability interfaces.
type Manifest struct {
	Name                 string       `json:"name"`
	Tier                 ProviderTier `json:"tier"`
	OnlineRequired       bool         `json:"online_required"`
	SupportsStreaming    bool         `json:"supports_streaming"`
	SupportsCancellation bool         `json:"supports_cancellation"`
}

// Provider is the common surface of all capability implementations.
type Provider interface {
	Manifest() Manifest
}

// LLMProvider drafts the script for a job.
type LLMProvider interface {
	Provider
	// DraftScript produces the full script text for the brief and plan.
	DraftScript(ctx context.Context, brief models.Brief, plan models.PlanSpec) (string, error)
}

// ScriptStreamer is implemented by LLM providers that can emit the draft
// in chunks. Callers fall back to DraftScript when absent.
type ScriptStreamer interface {
	DraftScriptStream(ctx context.Context, brief models.Brief, plan models.PlanSpec, chunk func(string)) (string, error)
}

// TTSProvider synthesizes narration audio from script lines.
type TTSProvider interface {
	Provider
	// Synthesize writes a single audio file covering all lines and returns
	// its path. The file must land under outDir.
	Synthesize(ctx context.Context, lines []models.ScriptLine, voice models.VoiceSpec, outDir string) (string, error)
}

// ImageProvider produces one visual asset per scene.
type ImageProvider interface {
	Provider
	// GenerateAsset writes an image for the scene sized for the render spec
	// and returns its path. The file must land under outDir.
	GenerateAsset(ctx context.Context, scene models.Scene, render models.RenderSpec, outDir string) (string, error)
}

// EncodeProgress is one progress frame reported by an encoder.
type EncodeProgress struct {
	Percent float64
	Detail  string
}

// VideoEncoderProvider renders a timeline into the final video file.
type VideoEncoderProvider interface {
	Provider
	// Render writes the output file at outPath, reporting progress through
	// sink. sink may be nil.
	Render(ctx context.Context, timeline models.Timeline, spec models.RenderSpec, outPath string, sink func(EncodeProgress)) error
}
