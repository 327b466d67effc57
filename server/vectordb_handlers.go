package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentui/agentd/vectordb"
)

func (s *Server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	writeData(w, s.service.Registry().ListAvailable())
}

func (s *Server) handleCurrentProvider(w http.ResponseWriter, _ *http.Request) {
	cfg := s.service.Registry().Current()
	cfg.APIKey = "" // never echo credentials
	writeData(w, cfg)
}

func (s *Server) handleSetProvider(w http.ResponseWriter, r *http.Request) {
	var cfg vectordb.ProviderConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.service.Registry().SetCurrent(cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("provider.changed", map[string]any{"type": cfg.Type})

	current := s.service.Registry().Current()
	current.APIKey = ""
	writeData(w, current)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string         `json:"name"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	col, err := s.service.CreateCollection(r.Context(), body.Name, body.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("collection.created", map[string]any{"name": col.Name})
	writeData(w, col)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.service.ListCollections(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if cols == nil {
		cols = []vectordb.Collection{}
	}
	writeData(w, cols)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.service.GetCollection(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, col)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.service.DeleteCollection(r.Context(), name); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("collection.deleted", map[string]any{"name": name})
	writeData(w, map[string]string{"message": fmt.Sprintf("collection %q deleted", name)})
}

func (s *Server) handleUpsertDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Documents []vectordb.Document `json:"documents"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.service.UpsertDocuments(r.Context(), name, body.Documents); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("documents.upserted", map[string]any{"collection": name, "count": len(body.Documents)})
	writeData(w, map[string]string{
		"message": fmt.Sprintf("upserted %d documents", len(body.Documents)),
	})
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		DocumentIDs []string `json:"documentIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.service.DeleteDocuments(r.Context(), name, body.DocumentIDs); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("documents.deleted", map[string]any{"collection": name, "count": len(body.DocumentIDs)})
	writeData(w, map[string]string{
		"message": fmt.Sprintf("deleted %d documents", len(body.DocumentIDs)),
	})
}

func (s *Server) handleQueryCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		QueryText string                `json:"queryText"`
		Options   vectordb.QueryOptions `json:"options"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	results, err := s.service.Search(r.Context(), name, body.QueryText, body.Options)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, results)
}
