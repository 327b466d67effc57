package vectordb_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/agentui/agentd/vectordb"
	"github.com/agentui/agentd/vectordb/embedder/mock"
)

// constEmbedder returns the same fixed-length vector for every text, with
// the text index encoded in the first component so order is observable.
type constEmbedder struct {
	dims int
}

func (e constEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dims)
		vec[0] = float32(i)
		out[i] = vec
	}
	return out, nil
}

func (e constEmbedder) Dimensions() int { return e.dims }

func newTestRegistry() *vectordb.Registry {
	r := vectordb.NewRegistry()
	r.Register(vectordb.ProviderInfo{
		ID:                "default",
		DisplayName:       "Default Mock Embeddings",
		DefaultDimensions: mock.DefaultDimensions,
	}, func(cfg vectordb.ProviderConfig) (vectordb.Embedder, error) {
		return mock.NewSeeded(cfg.Dimensions, 1), nil
	})
	r.Register(vectordb.ProviderInfo{
		ID:                 "remote",
		DisplayName:        "Remote Embeddings",
		RequiresCredential: true,
		DefaultDimensions:  768,
		CacheEmbeddings:    true,
	}, func(cfg vectordb.ProviderConfig) (vectordb.Embedder, error) {
		return constEmbedder{dims: cfg.Dimensions}, nil
	})
	return r
}

func TestRegistryCatalog(t *testing.T) {
	r := newTestRegistry()

	infos := r.ListAvailable()
	if len(infos) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(infos))
	}
	// Registration order is stable.
	if infos[0].ID != "default" || infos[1].ID != "remote" {
		t.Fatalf("catalog out of order: %+v", infos)
	}
	if infos[0].RequiresCredential {
		t.Fatalf("default provider must not require a credential")
	}
	if !infos[1].RequiresCredential {
		t.Fatalf("remote provider should require a credential")
	}
}

func TestSetCurrentUnknownProvider(t *testing.T) {
	r := newTestRegistry()

	err := r.SetCurrent(vectordb.ProviderConfig{Type: "nonexistent"})
	if !errors.Is(err, vectordb.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestSetCurrentMissingCredential(t *testing.T) {
	r := newTestRegistry()
	if err := r.SetCurrent(vectordb.ProviderConfig{Type: "default"}); err != nil {
		t.Fatalf("activate default: %v", err)
	}

	err := r.SetCurrent(vectordb.ProviderConfig{Type: "remote"})
	if !errors.Is(err, vectordb.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	// The failed switch leaves the previous provider active.
	if cur := r.Current(); cur.Type != "default" {
		t.Fatalf("active provider changed on failed switch: %+v", cur)
	}
	if _, err := r.Embed(context.Background(), []string{"still works"}); err != nil {
		t.Fatalf("embed after failed switch: %v", err)
	}
}

func TestSetCurrentDefaultsDimensions(t *testing.T) {
	r := newTestRegistry()

	if err := r.SetCurrent(vectordb.ProviderConfig{Type: "remote", APIKey: "k"}); err != nil {
		t.Fatalf("activate remote: %v", err)
	}
	if dims := r.Dimensions(); dims != 768 {
		t.Fatalf("expected catalog default of 768 dims, got %d", dims)
	}

	if err := r.SetCurrent(vectordb.ProviderConfig{Type: "remote", APIKey: "k", Dimensions: 256}); err != nil {
		t.Fatalf("activate remote with dims: %v", err)
	}
	if dims := r.Dimensions(); dims != 256 {
		t.Fatalf("explicit dimensions ignored, got %d", dims)
	}
}

func TestEmbedWithoutActiveProvider(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, vectordb.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider before SetCurrent, got %v", err)
	}
}

func TestEmbedBatchOrderAndLength(t *testing.T) {
	r := newTestRegistry()
	if err := r.SetCurrent(vectordb.ProviderConfig{Type: "remote", APIKey: "k", Dimensions: 4}); err != nil {
		t.Fatalf("activate remote: %v", err)
	}

	texts := []string{"first", "second", "third"}
	vectors, err := r.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Fatalf("vector %d has %d dims, want 4", i, len(vec))
		}
		if vec[0] != float32(i) {
			t.Fatalf("vector %d out of order: first component %v", i, vec[0])
		}
	}
}

func TestEmbedMockIsRandomPerCall(t *testing.T) {
	r := newTestRegistry()
	if err := r.SetCurrent(vectordb.ProviderConfig{Type: "default", Dimensions: 8}); err != nil {
		t.Fatalf("activate default: %v", err)
	}

	ctx := context.Background()
	a, err := r.Embed(ctx, []string{"same text"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := r.Embed(ctx, []string{"same text"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if fmt.Sprint(a[0]) == fmt.Sprint(b[0]) {
		t.Fatalf("mock provider returned identical vectors for repeated calls")
	}
}

func TestRegisterReplacesEntry(t *testing.T) {
	r := newTestRegistry()

	r.Register(vectordb.ProviderInfo{
		ID:                "default",
		DisplayName:       "Renamed",
		DefaultDimensions: 32,
	}, func(cfg vectordb.ProviderConfig) (vectordb.Embedder, error) {
		return constEmbedder{dims: cfg.Dimensions}, nil
	})

	infos := r.ListAvailable()
	if len(infos) != 2 {
		t.Fatalf("re-registering duplicated the catalog entry: %d entries", len(infos))
	}
	if infos[0].DisplayName != "Renamed" {
		t.Fatalf("catalog entry not replaced: %+v", infos[0])
	}
}
