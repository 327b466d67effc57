package vectordb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MemoryCollectionName returns the collection backing an agent's
// conversational memory.
func MemoryCollectionName(agentID string) string {
	return fmt.Sprintf("agent_%s_memory", agentID)
}

// StoreAgentMemory appends one memory to the agent's memory collection,
// creating the collection on first use. Concurrent first-use calls for the
// same agent are safe: the loser of the create race proceeds against the
// winner's collection.
func (s *Service) StoreAgentMemory(ctx context.Context, agentID, text string, metadata map[string]any) (Document, error) {
	if agentID == "" {
		return Document{}, fmt.Errorf("agent id is required: %w", ErrInvalidInput)
	}
	if text == "" {
		return Document{}, fmt.Errorf("memory text is required: %w", ErrInvalidInput)
	}

	name := MemoryCollectionName(agentID)
	if err := s.ensureMemoryCollection(ctx, name, agentID); err != nil {
		return Document{}, err
	}

	merged := map[string]any{
		"agent_id":    agentID,
		"memory_type": "conversation",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		merged[k] = v
	}

	doc := Document{
		ID:       uuid.NewString(),
		Text:     text,
		Metadata: merged,
	}
	if err := s.UpsertDocuments(ctx, name, []Document{doc}); err != nil {
		return Document{}, err
	}
	s.logger.Debug("agent memory stored", "agent", agentID, "doc", doc.ID)
	return doc, nil
}

// QueryAgentMemory searches the agent's memory collection. An agent that
// has never stored a memory simply gets an empty result.
func (s *Service) QueryAgentMemory(ctx context.Context, agentID, queryText string, opts QueryOptions) ([]ScoredDocument, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id is required: %w", ErrInvalidInput)
	}

	results, err := s.Search(ctx, MemoryCollectionName(agentID), queryText, opts)
	if errors.Is(err, ErrCollectionNotFound) {
		return []ScoredDocument{}, nil
	}
	return results, err
}

// ensureMemoryCollection is create-if-absent under the per-name lock.
// A racing creator's ErrCollectionExists counts as success.
func (s *Service) ensureMemoryCollection(ctx context.Context, name, agentID string) error {
	unlock := s.lockName(name)
	defer unlock()

	_, err := s.store.GetCollection(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return err
	}

	_, err = s.store.CreateCollection(ctx, name, map[string]any{
		"type":     "agent_memory",
		"agent_id": agentID,
	})
	if err != nil && !errors.Is(err, ErrCollectionExists) {
		return err
	}
	return nil
}
