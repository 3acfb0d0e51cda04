package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/crisp/internal/auth"
	"github.com/lazypower/crisp/internal/engine"
	"github.com/lazypower/crisp/internal/store"
	"github.com/sirupsen/logrus"
)

// Pinger is a backend whose liveness is reported by /api/health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the crisp HTTP API server.
type Server struct {
	engine   *engine.Engine
	db       *store.DB
	quota    Pinger
	verifier *auth.Verifier
	router   chi.Router
	log      *logrus.Entry
	version  string
	started  time.Time
}

// New creates a new Server. quota may be nil when refresh quotas live in
// the SQLite database.
func New(eng *engine.Engine, db *store.DB, quota Pinger, verifier *auth.Verifier, logger *logrus.Logger, version string) *Server {
	s := &Server{
		engine:   eng,
		db:       db,
		quota:    quota,
		verifier: verifier,
		log:      logger.WithField("component", "server"),
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(escapedRoutePath)
	r.Use(s.verifier.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/quota", s.handleQuota)

		r.Post("/items", s.handleCreateItem)
		r.Post("/items/import", s.handleImportItem)
		r.Get("/items/{itemID}", s.handleGetItem)
		r.Route("/items/{itemID}/labels/{label}", func(r chi.Router) {
			r.Post("/like", s.handleLike)
			r.Post("/unlike", s.handleUnlike)
			r.Post("/refresh", s.handleRefresh)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.PingContext(r.Context()) == nil
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	}
	if s.quota != nil {
		body["redis"] = s.quota.Ping(r.Context()) == nil
	}
	writeJSON(w, http.StatusOK, body)
}

// escapedRoutePath makes chi match on the escaped path, so every URL param
// arrives escaped and is decoded exactly once by pathParam.
func escapedRoutePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			rctx.RoutePath = r.URL.EscapedPath()
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
