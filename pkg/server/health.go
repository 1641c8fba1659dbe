package server

import (
	"context"
	"net/http"
	"time"
)

const healthPingTimeout = 3 * time.Second

type healthBody struct {
	Status    string `json:"status"`
	Retrieval string `json:"retrieval"`
	Generator string `json:"generator"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	body := healthBody{
		Status:    "ok",
		Retrieval: "ok",
		Generator: "configured",
	}
	status := http.StatusOK
	if err := s.index.Ping(ctx); err != nil {
		body.Status = "degraded"
		body.Retrieval = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}
