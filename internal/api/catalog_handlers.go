package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/distrowiki/catalogd/internal/catalog"
	"github.com/distrowiki/catalogd/internal/metrics"
	"github.com/distrowiki/catalogd/internal/refresher"
)

// loadDistros returns the cached records, syncing the sheet source when the
// cache is empty or a refresh was forced. On a forced refresh while a scrape is
// in flight the whole request fails with 409.
func (s *Server) loadDistros(w http.ResponseWriter, r *http.Request, force bool) ([]catalog.Distribution, bool) {
	ctx := r.Context()

	if !force {
		snap, ok, err := s.store.Load(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "cache read failed")
			return nil, false
		}
		if ok {
			metrics.ObserveCacheRead("hit")
			return snap.Distributions, true
		}
		metrics.ObserveCacheRead("miss")
	}

	snap, err := s.refresher.SyncSheet(ctx)
	if err != nil {
		if errors.Is(err, refresher.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "a refresh is already running")
			return nil, false
		}
		writeError(w, http.StatusServiceUnavailable, "catalog source unavailable")
		return nil, false
	}
	return snap.Distributions, true
}

func (s *Server) listDistros(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force_refresh"))

	distros, ok := s.loadDistros(w, r, force)
	if !ok {
		return
	}

	query := catalog.ListQuery{
		Page:     atoiDefault(q.Get("page"), 1),
		PageSize: atoiDefault(q.Get("page_size"), 20),
		Family:   q.Get("family"),
		Desktop:  q.Get("desktop"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sort_by"),
		Order:    q.Get("order"),
	}
	writeJSON(w, http.StatusOK, query.Apply(distros))
}

func (s *Server) getDistro(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force_refresh"))
	distros, ok := s.loadDistros(w, r, force)
	if !ok {
		return
	}
	id := chi.URLParam(r, "distro_id")
	distro, found := catalog.FindByID(distros, id)
	if !found {
		writeError(w, http.StatusNotFound, "distribution not found")
		return
	}
	writeJSON(w, http.StatusOK, distro)
}

func (s *Server) cacheInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cache read failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) cacheRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.refresher.SyncSheet(r.Context())
	if err != nil {
		if errors.Is(err, refresher.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "a refresh is already running")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "catalog source unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "refreshed",
		"records": len(snap.Distributions),
	})
}

func (s *Server) cacheClear(w http.ResponseWriter, r *http.Request) {
	if confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirm {
		writeError(w, http.StatusBadRequest, "pass confirm=true to clear the cache")
		return
	}
	if err := s.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
