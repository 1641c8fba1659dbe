package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 100
)

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultSessionLimit)
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	sessions, err := s.chat.Sessions(r.Context(), requestUser(r.Context()), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// loadOwnedSession resolves the path id and checks ownership. A session
// owned by another user is reported as missing, not forbidden.
func (s *Server) loadOwnedSession(r *http.Request) (*model.Session, error) {
	id := model.SessionID(chi.URLParam(r, "id"))
	session, err := s.chat.Session(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if session.UserID != requestUser(r.Context()) {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found", goerr.V("id", id))
	}
	return session, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.loadOwnedSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.loadOwnedSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.chat.Archive(r.Context(), session.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
