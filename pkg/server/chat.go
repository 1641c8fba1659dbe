package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

func decodeAskInput(r *http.Request) (*model.AskInput, error) {
	var input model.AskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "malformed request body", goerr.V("cause", err))
	}
	// The user identity always comes from the verified token, never from
	// the request body.
	input.UserID = requestUser(r.Context())
	return &input, nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	input, err := decodeAskInput(r)
	if err != nil {
		writeError(w, err)
		return
	}

	answer, err := s.chat.AskSync(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	input, err := decodeAskInput(r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, goerr.New("streaming is not supported by this connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame, askErr := range s.chat.Ask(r.Context(), input) {
		if askErr != nil {
			frame = model.NewErrorFrame(askErr)
		}
		if writeErr := writeFrame(w, frame); writeErr != nil {
			logging.From(r.Context()).Warn("failed to write frame", "error", writeErr)
			return
		}
		flusher.Flush()
		if askErr != nil {
			// The error frame is terminal.
			return
		}
	}
}

func writeFrame(w io.Writer, frame *model.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal frame")
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
