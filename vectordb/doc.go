// Package vectordb provides the collection and document layer behind the
// agentd API: named collections of text documents with derived embeddings,
// searchable by vector similarity or substring match depending on the
// configured backend.
//
// Architecture:
//   - Store: persistence backend (chromem vector index or SQLite table)
//   - Registry: holds the active embedding provider and the provider catalog
//   - Service: validation, collection lifecycle, search, agent memory
//
// The two Store implementations share one contract but rank differently:
// the chromem backend orders results by ascending vector distance, the
// SQLite backend matches substrings and preserves insertion order. Callers
// only ever see the shared ScoredDocument shape.
//
// Agent memory is sugar on top of the same layer: each agent gets a lazily
// created "agent_<id>_memory" collection, and storing a memory is an upsert
// with a generated id and conversation metadata.
package vectordb
