// Package api exposes the HTTP interface for the catalog service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/distrowiki/catalogd/internal/catalog"
	"github.com/distrowiki/catalogd/internal/config"
	"github.com/distrowiki/catalogd/internal/metrics"
)

// RefreshRunner is the slice of the refresher the API needs.
type RefreshRunner interface {
	Start(opts catalog.ScrapeOptions) (string, error)
	Stop() bool
	Status() catalog.RunStatus
	Results(skip, limit int) []catalog.Distribution
	SyncSheet(ctx context.Context) (catalog.Snapshot, error)
}

// ProxyPool manages the rotating proxy list.
type ProxyPool interface {
	Add(rawURL string) error
	Remove(rawURL string) bool
	List() []string
}

// CommunityStore persists votes and crowd-sourced edits.
type CommunityStore interface {
	InsertVote(ctx context.Context, vote catalog.Vote) error
	ListVotes(ctx context.Context, distroID string) ([]catalog.Vote, error)
	InsertEdit(ctx context.Context, edit catalog.Edit) error
	ListEdits(ctx context.Context, status catalog.VoteStatus) ([]catalog.Edit, error)
}

// Server wires HTTP handlers to the snapshot store and the refresher.
type Server struct {
	router    chi.Router
	store     catalog.SnapshotStore
	refresher RefreshRunner
	proxies   ProxyPool
	community CommunityStore
	idGen     catalog.IDGenerator
	clock     catalog.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. proxies and
// community may be nil; the matching endpoints then answer 503.
func NewServer(
	store catalog.SnapshotStore,
	refreshRunner RefreshRunner,
	proxies ProxyPool,
	community CommunityStore,
	idGen catalog.IDGenerator,
	clock catalog.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     store,
		refresher: refreshRunner,
		proxies:   proxies,
		community: community,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/distros", func(r chi.Router) {
			r.Get("/", s.listDistros)
			r.Route("/{distro_id}", func(r chi.Router) {
				r.Get("/", s.getDistro)
				r.Post("/votes", s.createVote)
				r.Get("/votes", s.listVotes)
				r.Post("/edits", s.createEdit)
			})
		})
		r.Route("/cache", func(r chi.Router) {
			r.Get("/info", s.cacheInfo)
			r.Post("/refresh", s.cacheRefresh)
			r.Delete("/distros", s.cacheClear)
		})
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/start", s.scrapeStart)
			r.Post("/stop", s.scrapeStop)
			r.Get("/status", s.scrapeStatus)
			r.Get("/results", s.scrapeResults)
			r.Route("/proxies", func(r chi.Router) {
				r.Get("/", s.listProxies)
				r.Post("/", s.addProxy)
				r.Delete("/", s.removeProxy)
			})
		})
		r.Get("/edits", s.listEdits)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Ready once the snapshot store is reachable; a missing snapshot is
	// still ready, it just means nothing has been synced yet.
	if _, err := s.store.Info(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
