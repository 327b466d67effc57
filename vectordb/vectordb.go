package vectordb

import (
	"context"
	"time"
)

// Collection is a named, independent set of documents. The name is the
// unique key; metadata is opaque to the store and fixed at creation.
type Collection struct {
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Document is a unit of stored text plus metadata and a derived embedding.
// IDs are unique within their owning collection, not globally.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Embedding is derived by the active provider at storage time. It is
	// never recomputed when the provider changes; see Registry.
	Embedding []float32 `json:"embedding,omitempty"`
}

// ScoredDocument is a document annotated with a distance for ranking.
// Lower distance means more similar. Substring backends report 0 for
// every match.
type ScoredDocument struct {
	Document
	Distance float32 `json:"distance"`
}

// QueryOptions controls a search. A zero NResults means DefaultNResults.
// Where, if set, restricts candidates to documents whose metadata matches
// every given key exactly before ranking.
type QueryOptions struct {
	NResults int            `json:"nResults,omitempty"`
	Where    map[string]any `json:"where,omitempty"`
}

// SearchRequest is the resolved form a backend receives: the Service embeds
// the query text once so vector backends can use Embedding while substring
// backends use Text.
type SearchRequest struct {
	Text      string
	Embedding []float32
	NResults  int
	Where     map[string]any
}

// Store is the persistence and search substrate. Implementations:
// chromem (embedded vector index) and sqlite (relational, substring match).
//
// All methods are safe for concurrent use. DeleteCollection removes the
// collection and all member documents atomically. UpsertDocuments replaces
// documents in place when an id already exists. DeleteDocuments ignores ids
// that are not present.
type Store interface {
	CreateCollection(ctx context.Context, name string, metadata map[string]any) (Collection, error)
	GetCollection(ctx context.Context, name string) (Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)
	DeleteCollection(ctx context.Context, name string) error

	UpsertDocuments(ctx context.Context, collection string, docs []Document) error
	DeleteDocuments(ctx context.Context, collection string, ids []string) error
	Search(ctx context.Context, collection string, req SearchRequest) ([]ScoredDocument, error)

	// Heartbeat reports whether the backend is reachable. Status endpoints
	// use it to degrade to "disconnected" instead of failing.
	Heartbeat(ctx context.Context) error
	Close() error
}

// Embedder converts texts to fixed-length vectors. Implementations must
// return one vector per input, in input order, each of length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
