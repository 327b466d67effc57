// Package server exposes the agentd REST API: collection and document
// operations, embedding provider selection, agent CRUD with per-agent
// memory, the plugin catalog, and a WebSocket event feed.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentui/agentd/agents"
	"github.com/agentui/agentd/plugins"
	"github.com/agentui/agentd/vectordb"
)

// Server holds the handler dependencies.
type Server struct {
	service *vectordb.Service
	agents  *agents.Store
	plugins *plugins.Store
	hub     *EventHub
	logger  *slog.Logger
}

// New wires a Server around the stores.
func New(service *vectordb.Service, agentStore *agents.Store, pluginStore *plugins.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service: service,
		agents:  agentStore,
		plugins: pluginStore,
		hub:     NewEventHub(logger),
		logger:  logger,
	}
}

// Events returns the hub so other components can publish.
func (s *Server) Events() *EventHub {
	return s.hub
}

// Router builds the chi router with the full API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws/events", s.hub.ServeHTTP)

	r.Route("/api/vectordb", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/embedding-models", s.handleListProviders)
		r.Get("/embedding-models/current", s.handleCurrentProvider)
		r.Post("/embedding-models/set", s.handleSetProvider)

		r.Post("/collections", s.handleCreateCollection)
		r.Get("/collections", s.handleListCollections)
		r.Get("/collections/{name}", s.handleGetCollection)
		r.Delete("/collections/{name}", s.handleDeleteCollection)

		r.Post("/collections/{name}/documents", s.handleUpsertDocuments)
		r.Put("/collections/{name}/documents", s.handleUpsertDocuments)
		r.Delete("/collections/{name}/documents", s.handleDeleteDocuments)
		r.Post("/collections/{name}/query", s.handleQueryCollection)
	})

	r.Route("/api/agents", func(r chi.Router) {
		r.Post("/", s.handleCreateAgent)
		r.Get("/", s.handleListAgents)
		r.Get("/{id}", s.handleGetAgent)
		r.Patch("/{id}", s.handleUpdateAgent)
		r.Delete("/{id}", s.handleDeleteAgent)

		r.Get("/{id}/collections", s.handleAgentCollections)
		r.Post("/{id}/collections", s.handleLinkAgentCollection)

		r.Post("/{id}/memory", s.handleStoreMemory)
		r.Post("/{id}/memory/query", s.handleQueryMemory)
	})

	r.Route("/api/plugins", func(r chi.Router) {
		r.Get("/", s.handleListPlugins)
		r.Post("/", s.handleSubmitPlugin)
		r.Get("/active", s.handleListInstalledPlugins)
		r.Get("/{id}", s.handleGetPlugin)
		r.Delete("/{id}", s.handleDeletePlugin)
		r.Post("/{id}/install", s.handleInstallPlugin)
		r.Post("/{id}/uninstall", s.handleUninstallPlugin)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports connectivity. A broken backend yields a 200 with
// status "disconnected" so the dashboard can render the state instead of
// crashing on a 5xx.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Heartbeat(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "disconnected",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "connected"})
}
