package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/distrowiki/catalogd/internal/catalog"
)

type voteRequest struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}

type editRequest struct {
	UserID string `json:"user_id"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

func (s *Server) createVote(w http.ResponseWriter, r *http.Request) {
	if s.community == nil {
		writeError(w, http.StatusServiceUnavailable, "community store not configured")
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Score < 1 || req.Score > 5 {
		writeError(w, http.StatusBadRequest, "score must be between 1 and 5")
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	vote := catalog.Vote{
		ID:        id,
		UserID:    req.UserID,
		DistroID:  chi.URLParam(r, "distro_id"),
		Score:     req.Score,
		Status:    catalog.StatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.community.InsertVote(r.Context(), vote); err != nil {
		s.logger.Error("insert vote failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "vote could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, vote)
}

func (s *Server) listVotes(w http.ResponseWriter, r *http.Request) {
	if s.community == nil {
		writeError(w, http.StatusServiceUnavailable, "community store not configured")
		return
	}
	votes, err := s.community.ListVotes(r.Context(), chi.URLParam(r, "distro_id"))
	if err != nil {
		s.logger.Error("list votes failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "votes could not be read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"votes": votes, "count": len(votes)})
}

func (s *Server) createEdit(w http.ResponseWriter, r *http.Request) {
	if s.community == nil {
		writeError(w, http.StatusServiceUnavailable, "community store not configured")
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Field) == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	edit := catalog.Edit{
		ID:        id,
		UserID:    req.UserID,
		DistroID:  chi.URLParam(r, "distro_id"),
		Field:     req.Field,
		Value:     req.Value,
		Status:    catalog.StatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.community.InsertEdit(r.Context(), edit); err != nil {
		s.logger.Error("insert edit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "edit could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, edit)
}

func (s *Server) listEdits(w http.ResponseWriter, r *http.Request) {
	if s.community == nil {
		writeError(w, http.StatusServiceUnavailable, "community store not configured")
		return
	}
	status := catalog.VoteStatus(r.URL.Query().Get("status"))
	switch status {
	case "", catalog.StatusPending, catalog.StatusApproved, catalog.StatusRejected:
	default:
		writeError(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}
	edits, err := s.community.ListEdits(r.Context(), status)
	if err != nil {
		s.logger.Error("list edits failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "edits could not be read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edits": edits, "count": len(edits)})
}
