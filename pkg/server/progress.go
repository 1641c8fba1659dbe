package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

type progressRequest struct {
	SectionPath string `json:"sectionPath"`
	Completed   bool   `json:"completed"`
}

func (s *Server) handlePutProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, goerr.Wrap(model.ErrInvalidInput, "malformed request body", goerr.V("cause", err)))
		return
	}
	if req.SectionPath == "" {
		writeError(w, goerr.Wrap(model.ErrInvalidInput, "sectionPath is required"))
		return
	}

	event := &model.ProgressEvent{
		UserID:      requestUser(r.Context()),
		SectionPath: req.SectionPath,
		Completed:   req.Completed,
		OccurredAt:  time.Now(),
	}
	if err := s.repo.PutProgress(r.Context(), event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	events, err := s.repo.ListProgress(r.Context(), requestUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []*model.ProgressEvent{}
	}

	completed := 0
	for _, event := range events {
		if event.Completed {
			completed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"progress":       events,
		"completedCount": completed,
	})
}
