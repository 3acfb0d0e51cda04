package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/crisp/internal/auth"
	"github.com/lazypower/crisp/internal/engagement"
)

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item engagement.ContentItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := s.engine.CreateItem(r.Context(), &item); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleImportItem stores an item in the legacy label shape. Imports carry
// existing likes, so the caller must be authenticated.
func (s *Server) handleImportItem(w http.ResponseWriter, r *http.Request) {
	if _, err := (auth.ContextIdentity{}).CurrentUserID(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	var li engagement.LegacyItem
	if err := json.NewDecoder(r.Body).Decode(&li); err != nil {
		badRequest(w, "invalid json")
		return
	}
	item, err := s.engine.ImportLegacy(r.Context(), li)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(r, "itemID")
	if !ok {
		badRequest(w, "malformed item id")
		return
	}
	item, err := s.engine.GetItem(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type labelOp func(context.Context, engagement.Target) (*engagement.ContentItem, error)

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	s.applyLabelOp(w, r, s.engine.Like)
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	s.applyLabelOp(w, r, s.engine.Unlike)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.applyLabelOp(w, r, s.engine.RefreshOwn)
}

func (s *Server) applyLabelOp(w http.ResponseWriter, r *http.Request, op labelOp) {
	target, ok := targetFrom(r)
	if !ok {
		badRequest(w, "malformed item id or label")
		return
	}
	item, err := op(r.Context(), target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// targetFrom reads the item, label and optional answer_id from the request.
func targetFrom(r *http.Request) (engagement.Target, bool) {
	id, ok := pathParam(r, "itemID")
	if !ok {
		return engagement.Target{}, false
	}
	label, ok := pathParam(r, "label")
	if !ok {
		return engagement.Target{}, false
	}
	return engagement.Target{
		ItemID:   id,
		AnswerID: r.URL.Query().Get("answer_id"),
		Label:    label,
	}, true
}

// pathParam returns the decoded value of an escaped route param.
func pathParam(r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	uid, err := auth.ContextIdentity{}.CurrentUserID(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	remaining, resetAt, err := s.engine.QuotaStatus(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body := map[string]any{
		"user_id":   uid,
		"remaining": remaining,
	}
	if !resetAt.IsZero() {
		body["reset_at"] = resetAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}
