package plugins_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/agentui/agentd/plugins"
)

func newTestStore(t *testing.T) *plugins.Store {
	t.Helper()
	store, err := plugins.New(context.Background(), filepath.Join(t.TempDir(), "plugins.db"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSeededCatalog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) == 0 {
		t.Fatalf("fresh catalog is empty")
	}

	// Known seed entry, with tags and links decoded.
	p, err := store.Get(ctx, "chromadb")
	if err != nil {
		t.Fatalf("get chromadb: %v", err)
	}
	if p.Category != "rag" {
		t.Fatalf("unexpected category %q", p.Category)
	}
	if len(p.Tags) == 0 || p.Links["github"] == "" {
		t.Fatalf("tags or links did not round-trip: %+v", p)
	}
	if p.Installed {
		t.Fatalf("seed entries start uninstalled")
	}

	// Popularity ordering.
	if all[0].ID != "ollama" {
		t.Fatalf("expected most-downloaded entry first, got %q", all[0].ID)
	}
}

func TestListByCategory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	llm, err := store.List(ctx, "llm")
	if err != nil {
		t.Fatalf("list llm: %v", err)
	}
	for _, p := range llm {
		if p.Category != "llm" {
			t.Fatalf("category filter leaked %q", p.ID)
		}
	}
	if len(llm) == 0 {
		t.Fatalf("expected at least one llm entry")
	}

	none, err := store.List(ctx, "no-such-category")
	if err != nil {
		t.Fatalf("list empty category: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty list, got %d entries", len(none))
	}
}

func TestUpsertSubmission(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.Upsert(ctx, plugins.Plugin{
		ID:   "custom-tool",
		Name: "Custom Tool",
		Tags: []string{"Tools"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	p, err := store.Get(ctx, "custom-tool")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Defaults filled on submission.
	if p.Category != "tools" || p.Version != "1.0.0" {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}

	if err := store.Upsert(ctx, plugins.Plugin{}); err == nil {
		t.Fatalf("expected error for missing id and name")
	}
}

func TestUpsertKeepsInstalledFlag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SetInstalled(ctx, "ollama", true); err != nil {
		t.Fatalf("install: %v", err)
	}

	// A catalog update for an installed plugin must not uninstall it.
	p, _ := store.Get(ctx, "ollama")
	p.Version = "1.1.0"
	p.Installed = false
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Get(ctx, "ollama")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != "1.1.0" {
		t.Fatalf("version not updated: %q", got.Version)
	}
	if !got.Installed {
		t.Fatalf("catalog update reset the installed flag")
	}
}

func TestSetInstalled(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SetInstalled(ctx, "chromadb", true); err != nil {
		t.Fatalf("install: %v", err)
	}
	p, _ := store.Get(ctx, "chromadb")
	if !p.Installed {
		t.Fatalf("install flag not set")
	}

	if err := store.SetInstalled(ctx, "chromadb", false); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	p, _ = store.Get(ctx, "chromadb")
	if p.Installed {
		t.Fatalf("install flag not cleared")
	}

	if err := store.SetInstalled(ctx, "missing", true); !errors.Is(err, plugins.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListInstalled(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	installed, err := store.ListInstalled(ctx)
	if err != nil {
		t.Fatalf("list installed: %v", err)
	}
	if len(installed) != 0 {
		t.Fatalf("fresh catalog has installed entries: %+v", installed)
	}

	if err := store.SetInstalled(ctx, "ollama", true); err != nil {
		t.Fatalf("install: %v", err)
	}
	installed, err = store.ListInstalled(ctx)
	if err != nil {
		t.Fatalf("list installed: %v", err)
	}
	if len(installed) != 1 || installed[0].ID != "ollama" {
		t.Fatalf("unexpected installed set: %+v", installed)
	}

	if err := store.SetInstalled(ctx, "ollama", false); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	installed, err = store.ListInstalled(ctx)
	if err != nil {
		t.Fatalf("list installed: %v", err)
	}
	if len(installed) != 0 {
		t.Fatalf("uninstalled entry still listed: %+v", installed)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Delete(ctx, "langchain"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "langchain"); !errors.Is(err, plugins.ErrNotFound) {
		t.Fatalf("entry survived delete")
	}
	if err := store.Delete(ctx, "langchain"); !errors.Is(err, plugins.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
