// Package webapi exposes the runtime's status surface over HTTP: app
// records, cached entity state, health, and an explicit per-app reload
// trigger.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carlos-sarmiento/domovoy"
	"github.com/carlos-sarmiento/domovoy/statecache"
)

// AppEngine is the slice of the engine the API reads from and commands.
type AppEngine interface {
	Snapshot() []domovoy.AppInfo
	AppInfoFor(name string) (domovoy.AppInfo, error)
	Reload(ctx context.Context, name string) error
}

// Server serves the status API.
type Server struct {
	engine AppEngine
	cache  *statecache.Cache
	router chi.Router
}

// New builds the API over the given engine and cache.
func New(engine AppEngine, cache *statecache.Cache) *Server {
	s := &Server{engine: engine, cache: cache}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Get("/apps", s.handleListApps)
		r.Get("/apps/{name}", s.handleGetApp)
		r.Post("/apps/{name}/reload", s.handleReloadApp)
		r.Get("/entities/{id}", s.handleGetEntity)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"entities": s.cache.Len(),
	})
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := s.engine.AppInfoFor(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleReloadApp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.engine.Reload(r.Context(), name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domovoy.ErrAppNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	info, err := s.engine.AppInfoFor(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.cache.GetFull(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, statecache.ErrEntityNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
