package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/distrowiki/catalogd/internal/catalog"
	"github.com/distrowiki/catalogd/internal/refresher"
)

func (s *Server) scrapeStart(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty one runs with configured defaults.
	var opts catalog.ScrapeOptions
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if opts.Limit < 0 || opts.Limit > 500 {
		writeError(w, http.StatusBadRequest, "limit must be in 0..500")
		return
	}
	runID, err := s.refresher.Start(opts)
	if err != nil {
		if errors.Is(err, refresher.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "a scrape is already running")
			return
		}
		writeError(w, http.StatusInternalServerError, "scrape start failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"run_id": runID,
	})
}

func (s *Server) scrapeStop(w http.ResponseWriter, _ *http.Request) {
	if !s.refresher.Stop() {
		writeError(w, http.StatusConflict, "no scrape is running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) scrapeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.refresher.Status())
}

func (s *Server) scrapeResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip := atoiDefault(q.Get("skip"), 0)
	limit := atoiDefault(q.Get("limit"), 50)
	if skip < 0 || limit < 1 || limit > 500 {
		writeError(w, http.StatusBadRequest, "skip must be >= 0 and limit in 1..500")
		return
	}
	results := s.refresher.Results(skip, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"skip":    skip,
		"limit":   limit,
		"count":   len(results),
		"distros": results,
	})
}

type proxyRequest struct {
	URL string `json:"url"`
}

func (s *Server) listProxies(w http.ResponseWriter, _ *http.Request) {
	if s.proxies == nil {
		writeError(w, http.StatusServiceUnavailable, "proxy pool not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proxies": s.proxies.List()})
}

func (s *Server) addProxy(w http.ResponseWriter, r *http.Request) {
	if s.proxies == nil {
		writeError(w, http.StatusServiceUnavailable, "proxy pool not configured")
		return
	}
	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"url\": \"scheme://host:port\"}")
		return
	}
	if err := s.proxies.Add(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) removeProxy(w http.ResponseWriter, r *http.Request) {
	if s.proxies == nil {
		writeError(w, http.StatusServiceUnavailable, "proxy pool not configured")
		return
	}
	raw := r.URL.Query().Get("url")
	if raw == "" {
		var req proxyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			raw = req.URL
		}
	}
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !s.proxies.Remove(raw) {
		writeError(w, http.StatusNotFound, "proxy not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
