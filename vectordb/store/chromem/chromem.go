// Package chromem implements the vector-index Store backend on top of
// chromem-go, an embedded pure-Go vector database. Results are ranked by
// ascending cosine distance.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/agentui/agentd/vectordb"
)

// Reserved chromem metadata keys. metaKey carries the original document
// metadata as JSON, so non-string values survive the round trip through
// chromem's string-only metadata. dimKey carries the embedding length, so
// queries only rank documents whose vectors match the query's length:
// documents stored under a previous provider keep their stale embeddings
// but drop out of search instead of erroring the whole collection.
const (
	metaKey = "_meta"
	dimKey  = "_dim"
)

// Store wraps a chromem DB. Collection bookkeeping (existence, creation
// metadata) lives in an in-process registry guarded by mu; chromem itself
// holds the documents and the index.
type Store struct {
	db     *chromem.DB
	logger *slog.Logger

	mu          sync.RWMutex
	collections map[string]*entry
}

type entry struct {
	col  *chromem.Collection
	meta vectordb.Collection
}

// New creates an in-memory store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:          chromem.NewDB(),
		logger:      logger,
		collections: make(map[string]*entry),
	}
}

// NewPersistent creates a store backed by an on-disk chromem DB. Existing
// collections are re-registered by name; their creation metadata is not
// recoverable from disk and comes back empty.
func NewPersistent(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}

	s := &Store{
		db:          db,
		logger:      logger,
		collections: make(map[string]*entry),
	}
	for name, col := range db.ListCollections() {
		s.collections[name] = &entry{
			col:  col,
			meta: vectordb.Collection{Name: name},
		}
	}
	return s, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string, metadata map[string]any) (vectordb.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[name]; exists {
		return vectordb.Collection{}, fmt.Errorf("collection %q: %w", name, vectordb.ErrCollectionExists)
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := s.db.CreateCollection(name, stringifyMap(metadata), nil)
	if err != nil {
		return vectordb.Collection{}, fmt.Errorf("create collection %q: %w", name, err)
	}

	meta := vectordb.Collection{
		Name:      name,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	s.collections[name] = &entry{col: col, meta: meta}
	s.logger.Debug("chromem collection created", "name", name)
	return meta, nil
}

func (s *Store) GetCollection(ctx context.Context, name string) (vectordb.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[name]
	if !ok {
		return vectordb.Collection{}, fmt.Errorf("collection %q: %w", name, vectordb.ErrCollectionNotFound)
	}
	return e.meta, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]vectordb.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]vectordb.Collection, 0, len(s.collections))
	for _, e := range s.collections {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteCollection removes the collection and every member document in one
// swap under the write lock: concurrent searches either grabbed the old
// handle and complete against the pre-delete snapshot, or miss and get
// ErrCollectionNotFound.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("collection %q: %w", name, vectordb.ErrCollectionNotFound)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	delete(s.collections, name)
	s.logger.Debug("chromem collection deleted", "name", name)
	return nil
}

func (s *Store) UpsertDocuments(ctx context.Context, collection string, docs []vectordb.Document) error {
	col, err := s.handle(collection)
	if err != nil {
		return err
	}

	// Documents are added one at a time so an abandoned batch leaves only
	// whole documents behind. chromem keys documents by ID, so re-adding
	// an existing id replaces it.
	for _, doc := range docs {
		if err := checkReservedKeys(doc.Metadata); err != nil {
			return fmt.Errorf("document %q: %w", doc.ID, err)
		}

		metadata := stringifyMap(doc.Metadata)
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
		raw, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for document %q: %w", doc.ID, err)
		}
		metadata[metaKey] = string(raw)
		metadata[dimKey] = strconv.Itoa(len(doc.Embedding))

		err = col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Embedding: doc.Embedding,
			Metadata:  metadata,
		})
		if err != nil {
			return fmt.Errorf("add document %q to %q: %w", doc.ID, collection, err)
		}
	}
	return nil
}

func (s *Store) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	col, err := s.handle(collection)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	// Missing ids are not an error: delete is idempotent.
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents from %q: %w", collection, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, req vectordb.SearchRequest) ([]vectordb.ScoredDocument, error) {
	col, err := s.handle(collection)
	if err != nil {
		return nil, err
	}
	if err := checkReservedKeys(req.Where); err != nil {
		return nil, err
	}

	// chromem rejects nResults above the document count.
	n := req.NResults
	if count := col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return []vectordb.ScoredDocument{}, nil
	}

	// Restricting to the query's vector length keeps documents embedded
	// under a differently-sized provider out of the similarity pass.
	where := stringifyMap(req.Where)
	if where == nil {
		where = make(map[string]string, 1)
	}
	where[dimKey] = strconv.Itoa(len(req.Embedding))

	results, err := col.QueryEmbedding(ctx, req.Embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", collection, err)
	}

	out := make([]vectordb.ScoredDocument, 0, len(results))
	for _, res := range results {
		out = append(out, vectordb.ScoredDocument{
			Document: vectordb.Document{
				ID:        res.ID,
				Text:      res.Content,
				Metadata:  parseMetadata(res.Metadata),
				Embedding: res.Embedding,
			},
			// chromem reports cosine similarity, higher is better.
			Distance: 1 - res.Similarity,
		})
	}
	return out, nil
}

// Heartbeat always succeeds: the index lives in-process.
func (s *Store) Heartbeat(ctx context.Context) error { return nil }

// Close is a no-op; chromem persists writes as they happen.
func (s *Store) Close() error { return nil }

func (s *Store) handle(collection string) (*chromem.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, vectordb.ErrCollectionNotFound)
	}
	return e.col, nil
}

// checkReservedKeys rejects caller metadata or filters that would collide
// with the store's reserved keys.
func checkReservedKeys(m map[string]any) error {
	for _, key := range []string{metaKey, dimKey} {
		if _, ok := m[key]; ok {
			return fmt.Errorf("metadata key %q is reserved: %w", key, vectordb.ErrInvalidInput)
		}
	}
	return nil
}

// stringifyMap flattens arbitrary metadata to chromem's string-only form.
// The same rule applies to where-filters so exact matches line up.
func stringifyMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// parseMetadata restores the original metadata from the reserved JSON key,
// falling back to the flattened string pairs for documents written by
// older builds.
func parseMetadata(m map[string]string) map[string]any {
	if raw, ok := m[metaKey]; ok {
		var out map[string]any
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == metaKey || k == dimKey {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var _ vectordb.Store = (*Store)(nil)
