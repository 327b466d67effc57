package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentui/agentd/plugins"
)

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	list, err := s.plugins.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []plugins.Plugin{}
	}
	writeData(w, list)
}

func (s *Server) handleListInstalledPlugins(w http.ResponseWriter, r *http.Request) {
	list, err := s.plugins.ListInstalled(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []plugins.Plugin{}
	}
	writeData(w, list)
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	p, err := s.plugins.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, p)
}

func (s *Server) handleSubmitPlugin(w http.ResponseWriter, r *http.Request) {
	var p plugins.Plugin
	if err := decodeBody(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if p.ID == "" || p.Name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("plugin id and name are required"))
		return
	}

	if err := s.plugins.Upsert(r.Context(), p); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("plugin.submitted", map[string]any{"id": p.ID})
	writeData(w, p)
}

func (s *Server) handleDeletePlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.plugins.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, map[string]string{"message": "plugin removed"})
}

func (s *Server) handleInstallPlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginInstalled(w, r, true)
}

func (s *Server) handleUninstallPlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginInstalled(w, r, false)
}

func (s *Server) setPluginInstalled(w http.ResponseWriter, r *http.Request, installed bool) {
	id := chi.URLParam(r, "id")
	if err := s.plugins.SetInstalled(r.Context(), id, installed); err != nil {
		writeServiceError(w, err)
		return
	}
	s.hub.Publish("plugin.state", map[string]any{"id": id, "installed": installed})

	p, err := s.plugins.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, p)
}
