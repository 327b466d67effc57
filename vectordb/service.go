package vectordb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Result limits for Search. A zero NResults means DefaultNResults; anything
// above MaxNResults is an input error so a single query cannot scan the
// whole store.
const (
	DefaultNResults = 10
	MaxNResults     = 100
)

// Service is the front door to the collection layer. It validates input,
// resolves embeddings through the registry, and serializes create/delete
// per collection name so a delete racing a create never interleaves.
type Service struct {
	store    Store
	registry *Registry
	logger   *slog.Logger

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// NewService wires a Service. The registry is injected rather than shared
// through package state, so two Services can run different providers.
func NewService(store Store, registry *Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		registry: registry,
		logger:   logger,
		names:    make(map[string]*sync.Mutex),
	}
}

// Registry exposes the embedding provider registry for the API layer.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Heartbeat reports backend reachability.
func (s *Service) Heartbeat(ctx context.Context) error {
	return s.store.Heartbeat(ctx)
}

// lockName takes the mutex for a collection name, creating it on first
// use. The map only ever grows, one mutex per name seen; collection name
// cardinality is small in practice.
func (s *Service) lockName(name string) func() {
	s.mu.Lock()
	m, ok := s.names[name]
	if !ok {
		m = &sync.Mutex{}
		s.names[name] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// CreateCollection creates a named collection. The name is immutable and
// unique; metadata is stored as-is and never partially merged later.
func (s *Service) CreateCollection(ctx context.Context, name string, metadata map[string]any) (Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Collection{}, fmt.Errorf("collection name is required: %w", ErrInvalidInput)
	}

	unlock := s.lockName(name)
	defer unlock()

	col, err := s.store.CreateCollection(ctx, name, metadata)
	if err != nil {
		return Collection{}, err
	}
	s.logger.Info("collection created", "name", name)
	return col, nil
}

// GetCollection returns a collection by name.
func (s *Service) GetCollection(ctx context.Context, name string) (Collection, error) {
	if name == "" {
		return Collection{}, fmt.Errorf("collection name is required: %w", ErrInvalidInput)
	}
	return s.store.GetCollection(ctx, name)
}

// ListCollections returns all collections committed at call time.
func (s *Service) ListCollections(ctx context.Context) ([]Collection, error) {
	return s.store.ListCollections(ctx)
}

// DeleteCollection removes a collection and all member documents
// atomically.
func (s *Service) DeleteCollection(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required: %w", ErrInvalidInput)
	}

	unlock := s.lockName(name)
	defer unlock()

	if err := s.store.DeleteCollection(ctx, name); err != nil {
		return err
	}
	s.logger.Info("collection deleted", "name", name)
	return nil
}

// UpsertDocuments inserts or replaces documents by id. Every document is
// validated before anything is written, so a bad document fails the whole
// batch. Embeddings are recomputed with the active provider on every
// upsert.
func (s *Service) UpsertDocuments(ctx context.Context, collection string, docs []Document) error {
	if collection == "" {
		return fmt.Errorf("collection name is required: %w", ErrInvalidInput)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents given: %w", ErrInvalidInput)
	}
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document %d has no id: %w", i, ErrInvalidInput)
		}
		if doc.Text == "" {
			return fmt.Errorf("document %q has no text: %w", doc.ID, ErrInvalidInput)
		}
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := s.registry.Embed(ctx, texts)
	if err != nil {
		return err
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	if err := s.store.UpsertDocuments(ctx, collection, docs); err != nil {
		return err
	}
	s.logger.Debug("documents upserted", "collection", collection, "count", len(docs))
	return nil
}

// DeleteDocuments removes the given ids. Ids that are not present are
// ignored, so deletion is idempotent.
func (s *Service) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	if collection == "" {
		return fmt.Errorf("collection name is required: %w", ErrInvalidInput)
	}
	if len(ids) == 0 {
		return nil
	}
	return s.store.DeleteDocuments(ctx, collection, ids)
}

// Search embeds the query with the active provider and returns up to
// opts.NResults documents, most similar first. An empty collection or zero
// matches yields an empty slice, not an error.
func (s *Service) Search(ctx context.Context, collection, queryText string, opts QueryOptions) ([]ScoredDocument, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("query text is required: %w", ErrInvalidInput)
	}
	n := opts.NResults
	switch {
	case n == 0:
		n = DefaultNResults
	case n < 0:
		return nil, fmt.Errorf("nResults must be positive, got %d: %w", n, ErrInvalidInput)
	case n > MaxNResults:
		return nil, fmt.Errorf("nResults must be <= %d, got %d: %w", MaxNResults, n, ErrInvalidInput)
	}

	vectors, err := s.registry.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}

	results, err := s.store.Search(ctx, collection, SearchRequest{
		Text:      queryText,
		Embedding: vectors[0],
		NResults:  n,
		Where:     opts.Where,
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []ScoredDocument{}
	}
	return results, nil
}
