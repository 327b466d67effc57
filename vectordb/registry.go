package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// ProviderInfo is a catalog entry describing an available embedding
// provider. The catalog always contains at least one credential-free
// entry (the mock "default" provider).
type ProviderInfo struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"name"`
	Description        string `json:"description"`
	RequiresCredential bool   `json:"requiresApiKey"`
	DefaultDimensions  int    `json:"defaultDimensions"`

	// CacheEmbeddings enables the registry's embedding cache for this
	// provider. Left false for the random default provider, whose output
	// has no meaning worth caching.
	CacheEmbeddings bool `json:"-"`
}

// ProviderConfig selects and configures the active provider.
type ProviderConfig struct {
	Type       string `json:"type"`
	Dimensions int    `json:"dimensions,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
}

// ProviderFactory builds an Embedder from a validated config.
type ProviderFactory func(cfg ProviderConfig) (Embedder, error)

// Registry owns the catalog of embedding providers and the single active
// one. SetCurrent is the only writer; a swap is atomic with respect to
// concurrent Embed calls, which see either the old or the new provider
// but never a mixed configuration.
//
// Switching providers does not re-embed existing documents. Stored
// embeddings keep the dimensionality they had at write time.
type Registry struct {
	mu        sync.RWMutex
	infos     map[string]ProviderInfo
	factories map[string]ProviderFactory
	order     []string

	current Embedder
	config  ProviderConfig

	cache *ristretto.Cache
}

// NewRegistry creates an empty registry. Register at least one provider
// and activate it with SetCurrent before use.
func NewRegistry() *Registry {
	// Cache failure is not fatal: embedding just skips the cache.
	cache, _ := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // ~64 MiB of float32 vectors
		BufferItems: 64,
	})

	return &Registry{
		infos:     make(map[string]ProviderInfo),
		factories: make(map[string]ProviderFactory),
		cache:     cache,
	}
}

// Register adds a provider to the catalog. Registering an existing id
// replaces its entry.
func (r *Registry) Register(info ProviderInfo, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.infos[info.ID]; !exists {
		r.order = append(r.order, info.ID)
	}
	r.infos[info.ID] = info
	r.factories[info.ID] = factory
}

// ListAvailable returns the catalog in registration order.
func (r *Registry) ListAvailable() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.infos[id])
	}
	return out
}

// Current returns the active provider configuration.
func (r *Registry) Current() ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Dimensions returns the vector length of the active provider.
func (r *Registry) Dimensions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Dimensions
}

// SetCurrent validates the config and swaps the active provider. On any
// failure the previous provider stays active and configured.
func (r *Registry) SetCurrent(cfg ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.infos[cfg.Type]
	if !ok {
		return fmt.Errorf("embedding provider %q: %w", cfg.Type, ErrUnknownProvider)
	}
	if info.RequiresCredential && cfg.APIKey == "" {
		return fmt.Errorf("embedding provider %q: %w", cfg.Type, ErrMissingCredential)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = info.DefaultDimensions
	}

	embedder, err := r.factories[cfg.Type](cfg)
	if err != nil {
		return fmt.Errorf("configure embedding provider %q: %w", cfg.Type, err)
	}

	r.current = embedder
	r.config = cfg
	return nil
}

// Embed delegates to the active provider, returning one vector per input
// text in input order. For cacheable providers, previously embedded texts
// are served from the cache.
func (r *Registry) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.RLock()
	embedder := r.current
	cfg := r.config
	cacheable := r.infos[cfg.Type].CacheEmbeddings
	r.mu.RUnlock()

	if embedder == nil {
		return nil, fmt.Errorf("no active embedding provider: %w", ErrUnknownProvider)
	}

	if !cacheable || r.cache == nil {
		return r.embedAll(ctx, embedder, texts)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := r.cache.Get(embedCacheKey(cfg, text)); ok {
			out[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vectors, err := r.embedAll(ctx, embedder, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vectors {
			out[missIdx[j]] = vec
			r.cache.Set(embedCacheKey(cfg, missTexts[j]), vec, int64(len(vec)*4))
		}
	}
	return out, nil
}

func (r *Registry) embedAll(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed: provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func embedCacheKey(cfg ProviderConfig, text string) string {
	return fmt.Sprintf("%s/%d/%s", cfg.Type, cfg.Dimensions, text)
}
