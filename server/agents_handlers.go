package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentui/agentd/agents"
	"github.com/agentui/agentd/vectordb"
)

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Config      map[string]any `json:"config"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("agent name is required"))
		return
	}

	agent, err := s.agents.Create(r.Context(), agents.Agent{
		Name:        body.Name,
		Description: body.Description,
		Config:      body.Config,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("agent.created", map[string]any{"id": agent.ID, "name": agent.Name})
	writeData(w, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.agents.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []agents.Agent{}
	}
	writeData(w, list)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var upd agents.Update
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	agent, err := s.agents.Apply(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.agents.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("agent.deleted", map[string]any{"id": id})
	writeData(w, map[string]string{"message": "agent deleted"})
}

func (s *Server) handleAgentCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.agents.Collections(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, names)
}

func (s *Server) handleLinkAgentCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CollectionName string `json:"collectionName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.agents.LinkCollection(r.Context(), chi.URLParam(r, "id"), body.CollectionName); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, map[string]string{"message": "collection linked"})
}

func (s *Server) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Memory   string         `json:"memory"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	doc, err := s.service.StoreAgentMemory(r.Context(), id, body.Memory, body.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("memory.stored", map[string]any{"agent": id, "doc": doc.ID})
	writeData(w, doc)
}

func (s *Server) handleQueryMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Query   string                `json:"query"`
		Options vectordb.QueryOptions `json:"options"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	results, err := s.service.QueryAgentMemory(r.Context(), id, body.Query, body.Options)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, results)
}
