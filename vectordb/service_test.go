package vectordb_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/agentui/agentd/vectordb"
	"github.com/agentui/agentd/vectordb/embedder/mock"
	chromemstore "github.com/agentui/agentd/vectordb/store/chromem"
	sqlitestore "github.com/agentui/agentd/vectordb/store/sqlite"
)

// newTestService wires a Service over a fresh SQLite store with the mock
// provider active. The SQLite backend matches on substrings, so search
// behavior is deterministic even though the mock vectors are random.
func newTestService(t *testing.T) *vectordb.Service {
	t.Helper()
	ctx := context.Background()

	store, err := sqlitestore.New(ctx, filepath.Join(t.TempDir(), "collections.db"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := vectordb.NewRegistry()
	registry.Register(vectordb.ProviderInfo{
		ID:                "default",
		DisplayName:       "Default Mock Embeddings",
		DefaultDimensions: 1536,
	}, func(cfg vectordb.ProviderConfig) (vectordb.Embedder, error) {
		return mock.NewSeeded(cfg.Dimensions, 1), nil
	})
	if err := registry.SetCurrent(vectordb.ProviderConfig{Type: "default"}); err != nil {
		t.Fatalf("activate provider: %v", err)
	}

	return vectordb.NewService(store, registry, slog.Default())
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{
		{ID: "1", Text: "hello world"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := svc.Search(ctx, "notes", "hello", vectordb.QueryOptions{NResults: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "1" {
		t.Fatalf("expected document 1, got %+v", results)
	}

	if err := svc.DeleteCollection(ctx, "notes"); err != nil {
		t.Fatalf("delete collection: %v", err)
	}
	cols, err := svc.ListCollections(ctx)
	if err != nil {
		t.Fatalf("list collections: %v", err)
	}
	for _, col := range cols {
		if col.Name == "notes" {
			t.Fatalf("collection still listed after delete")
		}
	}
}

func TestCreateCollectionDuplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", map[string]any{"kind": "original"}); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	_, err := svc.CreateCollection(ctx, "notes", map[string]any{"kind": "imposter"})
	if !errors.Is(err, vectordb.ErrCollectionExists) {
		t.Fatalf("expected ErrCollectionExists, got %v", err)
	}

	// The existing collection is untouched by the failed create.
	col, err := svc.GetCollection(ctx, "notes")
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if col.Metadata["kind"] != "original" {
		t.Fatalf("collection metadata changed on failed create: %+v", col.Metadata)
	}
}

func TestGetCollectionNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetCollection(context.Background(), "ghost")
	if !errors.Is(err, vectordb.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestUpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	doc := vectordb.Document{ID: "1", Text: "same text", Metadata: map[string]any{"k": "v"}}
	for i := 0; i < 2; i++ {
		if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{doc}); err != nil {
			t.Fatalf("upsert #%d: %v", i+1, err)
		}
	}

	results, err := svc.Search(ctx, "notes", "same text", vectordb.QueryOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 document after double upsert, got %d", len(results))
	}
	if results[0].Text != "same text" || results[0].Metadata["k"] != "v" {
		t.Fatalf("document content changed: %+v", results[0])
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "1", Text: "old text"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "1", Text: "new text"}}); err != nil {
		t.Fatalf("upsert replacement: %v", err)
	}

	if results, _ := svc.Search(ctx, "notes", "old", vectordb.QueryOptions{}); len(results) != 0 {
		t.Fatalf("old text still matches after replacement: %+v", results)
	}
	results, err := svc.Search(ctx, "notes", "new", vectordb.QueryOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "1" {
		t.Fatalf("expected replaced document, got %+v", results)
	}
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	// One bad document fails the whole batch; nothing is written.
	err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{
		{ID: "1", Text: "fine"},
		{ID: "2", Text: ""},
	})
	if !errors.Is(err, vectordb.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if results, _ := svc.Search(ctx, "notes", "fine", vectordb.QueryOptions{}); len(results) != 0 {
		t.Fatalf("partial batch was committed: %+v", results)
	}

	err = svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "", Text: "no id"}})
	if !errors.Is(err, vectordb.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing id, got %v", err)
	}

	err = svc.UpsertDocuments(ctx, "ghost", []vectordb.Document{{ID: "1", Text: "x"}})
	if !errors.Is(err, vectordb.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestDeleteDocumentsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "keep", Text: "keep me"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Deleting absent ids succeeds and leaves other documents alone.
	if err := svc.DeleteDocuments(ctx, "notes", []string{"ghost", "also-ghost"}); err != nil {
		t.Fatalf("delete of absent ids errored: %v", err)
	}
	results, err := svc.Search(ctx, "notes", "keep", vectordb.QueryOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("unrelated document affected by idempotent delete")
	}
}

func TestSearchValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	if _, err := svc.Search(ctx, "notes", "  ", vectordb.QueryOptions{}); !errors.Is(err, vectordb.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty query, got %v", err)
	}
	if _, err := svc.Search(ctx, "notes", "q", vectordb.QueryOptions{NResults: -1}); !errors.Is(err, vectordb.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative nResults, got %v", err)
	}
	if _, err := svc.Search(ctx, "notes", "q", vectordb.QueryOptions{NResults: vectordb.MaxNResults + 1}); !errors.Is(err, vectordb.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput above MaxNResults, got %v", err)
	}

	// Zero matches is an empty list, not an error.
	results, err := svc.Search(ctx, "notes", "nothing here", vectordb.QueryOptions{})
	if err != nil {
		t.Fatalf("search on empty collection: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %+v", results)
	}
}

func TestSearchMetadataFilter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{
		{ID: "a", Text: "shared phrase", Metadata: map[string]any{"lang": "en", "rank": float64(1)}},
		{ID: "b", Text: "shared phrase", Metadata: map[string]any{"lang": "de", "rank": float64(1)}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := svc.Search(ctx, "notes", "shared", vectordb.QueryOptions{
		Where: map[string]any{"lang": "de", "rank": float64(1)},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("metadata filter failed: %+v", results)
	}
}

func TestAgentMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.StoreAgentMemory(ctx, "agent-A", "likes coffee", nil); err != nil {
		t.Fatalf("store memory A: %v", err)
	}
	if _, err := svc.StoreAgentMemory(ctx, "agent-B", "likes tea", nil); err != nil {
		t.Fatalf("store memory B: %v", err)
	}

	results, err := svc.QueryAgentMemory(ctx, "agent-A", "coffee", vectordb.QueryOptions{})
	if err != nil {
		t.Fatalf("query memory: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly agent-A's memory, got %d results", len(results))
	}
	if results[0].Metadata["agent_id"] != "agent-A" {
		t.Fatalf("got another agent's memory: %+v", results[0].Metadata)
	}
	if results[0].Metadata["memory_type"] != "conversation" {
		t.Fatalf("missing conversation metadata: %+v", results[0].Metadata)
	}
}

func TestQueryMemoryForUnknownAgent(t *testing.T) {
	svc := newTestService(t)

	// An agent with no memory yet is a normal state, not an error.
	results, err := svc.QueryAgentMemory(context.Background(), "brand-new", "anything", vectordb.QueryOptions{})
	if err != nil {
		t.Fatalf("query memory for unknown agent: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %+v", results)
	}
}

func TestConcurrentMemoryFirstUse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_, err := svc.StoreAgentMemory(ctx, "racer", "first memory", nil)
			errs <- err
		}()
	}
	for i := 0; i < writers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent storeMemory failed: %v", err)
		}
	}

	cols, err := svc.ListCollections(ctx)
	if err != nil {
		t.Fatalf("list collections: %v", err)
	}
	var memoryCols int
	for _, col := range cols {
		if col.Name == vectordb.MemoryCollectionName("racer") {
			memoryCols++
		}
	}
	if memoryCols != 1 {
		t.Fatalf("expected exactly one memory collection, got %d", memoryCols)
	}

	results, err := svc.QueryAgentMemory(ctx, "racer", "first", vectordb.QueryOptions{NResults: vectordb.MaxNResults})
	if err != nil {
		t.Fatalf("query memory: %v", err)
	}
	if len(results) != writers {
		t.Fatalf("expected %d memories, got %d", writers, len(results))
	}
}

// newChromemService wires a Service over the in-memory vector backend.
func newChromemService(t *testing.T) *vectordb.Service {
	t.Helper()

	registry := vectordb.NewRegistry()
	registry.Register(vectordb.ProviderInfo{
		ID:                "default",
		DisplayName:       "Default Mock Embeddings",
		DefaultDimensions: 1536,
	}, func(cfg vectordb.ProviderConfig) (vectordb.Embedder, error) {
		return mock.NewSeeded(cfg.Dimensions, 1), nil
	})
	if err := registry.SetCurrent(vectordb.ProviderConfig{Type: "default"}); err != nil {
		t.Fatalf("activate provider: %v", err)
	}

	store := chromemstore.New(slog.Default())
	t.Cleanup(func() { store.Close() })
	return vectordb.NewService(store, registry, slog.Default())
}

func TestVectorBackendLifecycleWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	svc := newChromemService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	// The minimal document shape: id and text only.
	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "1", Text: "hello world"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := svc.Search(ctx, "notes", "hello", vectordb.QueryOptions{NResults: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "1" {
		t.Fatalf("expected document 1, got %+v", results)
	}
	if len(results[0].Metadata) != 0 {
		t.Fatalf("metadata should be empty, got %+v", results[0].Metadata)
	}
}

func TestProviderSwitchOnVectorBackend(t *testing.T) {
	ctx := context.Background()
	svc := newChromemService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "old", Text: "stored before switch"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := svc.Registry().SetCurrent(vectordb.ProviderConfig{Type: "default", Dimensions: 768}); err != nil {
		t.Fatalf("switch provider: %v", err)
	}
	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "new", Text: "stored after switch"}}); err != nil {
		t.Fatalf("upsert after switch: %v", err)
	}

	// A query under the new provider must not error on the stale document;
	// it ranks only documents embedded at the current size.
	results, err := svc.Search(ctx, "notes", "anything", vectordb.QueryOptions{})
	if err != nil {
		t.Fatalf("search after switch: %v", err)
	}
	if len(results) != 1 || results[0].ID != "new" {
		t.Fatalf("expected only the post-switch document, got %+v", results)
	}
	if len(results[0].Embedding) != 768 {
		t.Fatalf("post-switch document has wrong dims: %d", len(results[0].Embedding))
	}
}

func TestProviderSwitchDoesNotReembed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.CreateCollection(ctx, "notes", nil); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "old", Text: "stored before switch"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := svc.Registry().SetCurrent(vectordb.ProviderConfig{Type: "default", Dimensions: 768}); err != nil {
		t.Fatalf("switch provider: %v", err)
	}
	if err := svc.UpsertDocuments(ctx, "notes", []vectordb.Document{{ID: "new", Text: "stored after switch"}}); err != nil {
		t.Fatalf("upsert after switch: %v", err)
	}

	byID := map[string]int{}
	for _, query := range []string{"before", "after"} {
		results, err := svc.Search(ctx, "notes", query, vectordb.QueryOptions{})
		if err != nil {
			t.Fatalf("search %q: %v", query, err)
		}
		for _, res := range results {
			byID[res.ID] = len(res.Embedding)
		}
	}

	if byID["old"] != 1536 {
		t.Fatalf("pre-switch document was re-embedded: dims=%d", byID["old"])
	}
	if byID["new"] != 768 {
		t.Fatalf("post-switch document has wrong dims: %d", byID["new"])
	}
}
