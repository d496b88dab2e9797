package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Category names the four provider catalogs.
type Category string

const (
	CategoryLLM     Category = "llm"
	CategoryTTS     Category = "tts"
	CategoryImage   Category = "image"
	CategoryEncoder Category = "encoder"
)

// Registry holds the name-keyed provider catalogs. Registration happens
// once at startup; Freeze makes the registry read-only and any later
// registration panics. Absent providers are represented by absence.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	llm      map[string]LLMProvider
	tts      map[string]TTSProvider
	image    map[string]ImageProvider
	encoders map[string]VideoEncoderProvider
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:      make(map[string]LLMProvider),
		tts:      make(map[string]TTSProvider),
		image:    make(map[string]ImageProvider),
		encoders: make(map[string]VideoEncoderProvider),
	}
}

func (r *Registry) register(category Category, name string) {
	if r.frozen {
		panic(fmt.Sprintf("provider registry is frozen, cannot register %s/%s", category, name))
	}
	slog.Debug("registered provider",
		slog.String("category", string(category)),
		slog.String("name", name),
	)
}

// RegisterLLM adds an LLM provider under its manifest name.
func (r *Registry) RegisterLLM(p LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(CategoryLLM, p.Manifest().Name)
	r.llm[p.Manifest().Name] = p
}

// RegisterTTS adds a TTS provider under its manifest name.
func (r *Registry) RegisterTTS(p TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(CategoryTTS, p.Manifest().Name)
	r.tts[p.Manifest().Name] = p
}

// RegisterImage adds an image provider under its manifest name.
func (r *Registry) RegisterImage(p ImageProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(CategoryImage, p.Manifest().Name)
	r.image[p.Manifest().Name] = p
}

// RegisterEncoder adds a video encoder provider under its manifest name.
func (r *Registry) RegisterEncoder(p VideoEncoderProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(CategoryEncoder, p.Manifest().Name)
	r.encoders[p.Manifest().Name] = p
}

// Freeze marks the registry read-only. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// LLM returns the named LLM provider.
func (r *Registry) LLM(name string) (LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.llm[name]
	return p, ok
}

// TTS returns the named TTS provider.
func (r *Registry) TTS(name string) (TTSProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.tts[name]
	return p, ok
}

// Image returns the named image provider.
func (r *Registry) Image(name string) (ImageProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.image[name]
	return p, ok
}

// Encoder returns the named video encoder provider.
func (r *Registry) Encoder(name string) (VideoEncoderProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.encoders[name]
	return p, ok
}

// Manifests returns the manifests for a category, sorted by name so that
// selection input is deterministic across runs.
func (r *Registry) Manifests(category Category) []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Manifest
	switch category {
	case CategoryLLM:
		for _, p := range r.llm {
			out = append(out, p.Manifest())
		}
	case CategoryTTS:
		for _, p := range r.tts {
			out = append(out, p.Manifest())
		}
	case CategoryImage:
		for _, p := range r.image {
			out = append(out, p.Manifest())
		}
	case CategoryEncoder:
		for _, p := range r.encoders {
			out = append(out, p.Manifest())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
