package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/chunk"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/repository"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/server"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat/testtools"
)

var testTokens = map[string]string{
	"tok-1": "learner-1",
	"tok-2": "learner-2",
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newTestServer(t *testing.T, gemini adapter.Gemini, opts ...server.Option) (*httptest.Server, *repository.Memory, *adapter.MemoryIndex) {
	t.Helper()
	repo := repository.NewMemory()
	index := adapter.NewMemoryIndex()
	uc := chat.New(chat.NewInput{Repo: repo, Gemini: gemini, Index: index})
	s := server.New(server.NewInput{
		Chat:     uc,
		Repo:     repo,
		Index:    index,
		Verifier: adapter.NewStaticVerifier(testTokens),
	}, opts...)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, repo, index
}

func seedChunk(t *testing.T, index *adapter.MemoryIndex, id, doc, section, text string, ordinal int, score float64) {
	t.Helper()
	vec := []float32{float32(score), float32(math.Sqrt(1 - score*score)), 0, 0}
	err := index.Upsert(context.Background(), []*adapter.IndexEntry{{
		Chunk: &model.Chunk{
			ID:               model.ChunkID(id),
			Text:             text,
			SourceDocumentID: model.DocumentID(doc),
			SectionPath:      section,
			Kind:             model.KindNarrative,
			Ordinal:          ordinal,
			TokenCount:       chunk.EstimateTokens(text),
		},
		Vector: vec,
	}})
	gt.NoError(t, err)
}

// do sends one request with an optional bearer token and JSON payload.
func do(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		gt.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	gt.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// readFrames parses a complete SSE response body into frames.
func readFrames(t *testing.T, body io.Reader) []*model.Frame {
	t.Helper()
	raw, err := io.ReadAll(body)
	gt.NoError(t, err)

	var frames []*model.Frame
	for _, block := range strings.Split(string(raw), "\n\n") {
		data, ok := strings.CutPrefix(strings.TrimSpace(block), "data: ")
		if !ok {
			continue
		}
		var frame model.Frame
		gt.NoError(t, json.Unmarshal([]byte(data), &frame))
		frames = append(frames, &frame)
	}
	return frames
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, testtools.NewGemini())

	resp, err := http.Get(srv.URL + "/api/health")
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var body map[string]string
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Equal(t, body["status"], "ok")
	gt.Equal(t, body["retrieval"], "ok")
}

func TestQuery(t *testing.T) {
	answer := "The zero moment point must stay inside the support polygon."
	srv, repo, index := newTestServer(t, testtools.NewGemini(answer))
	seedChunk(t, index, "c1", "module-1/balance", "module-1/balance",
		"Bipedal balance keeps the zero moment point within the support polygon", 0, 0.9)

	resp := do(t, http.MethodPost, srv.URL+"/api/chat/query", "",
		&model.AskInput{Question: "What keeps a biped from falling?"})
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var got model.Answer
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	gt.Equal(t, got.Answer, answer)
	gt.A(t, got.Sources).Length(1)
	gt.Equal(t, got.Sources[0].ChunkID, model.ChunkID("c1"))
	gt.True(t, got.SessionID != "")

	session, err := repo.GetSession(context.Background(), got.SessionID)
	gt.NoError(t, err)
	gt.Equal(t, session.UserID, "anonymous")
	gt.A(t, session.Messages).Length(2)
}

func TestQueryStream(t *testing.T) {
	answer := "Torque control closes the loop at each joint."
	srv, _, index := newTestServer(t, testtools.NewGemini(answer))
	seedChunk(t, index, "c1", "module-1/actuation", "module-1/actuation",
		"Joint torque control regulates actuator effort through feedback", 0, 0.85)

	resp := do(t, http.MethodPost, srv.URL+"/api/chat/query/stream", "tok-1",
		&model.AskInput{Question: "How does torque control work?"})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, resp.Header.Get("Content-Type")).Contains("text/event-stream")

	frames := readFrames(t, resp.Body)
	gt.A(t, frames).Longer(2)
	gt.Equal(t, frames[0].Type, model.FrameSources)
	gt.A(t, frames[0].Sources).Length(1)

	last := frames[len(frames)-1]
	gt.Equal(t, last.Type, model.FrameDone)
	gt.True(t, last.SessionID != "")

	var text strings.Builder
	for _, frame := range frames[1 : len(frames)-1] {
		gt.Equal(t, frame.Type, model.FrameChunk)
		text.WriteString(frame.Text)
	}
	gt.Equal(t, text.String(), answer)
}

func TestQueryStreamGeneratorFailure(t *testing.T) {
	gemini := testtools.NewGemini("never delivered")
	gemini.FailGenerations(2)
	srv, _, index := newTestServer(t, gemini)
	seedChunk(t, index, "c1", "module-2/slam", "module-2/slam",
		"SLAM estimates the map and the pose together", 0, 0.9)

	resp := do(t, http.MethodPost, srv.URL+"/api/chat/query/stream", "",
		&model.AskInput{Question: "How does SLAM work?"})
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	frames := readFrames(t, resp.Body)
	gt.A(t, frames).Length(2)
	gt.Equal(t, frames[0].Type, model.FrameSources)
	gt.Equal(t, frames[1].Type, model.FrameError)
	gt.Equal(t, frames[1].ErrorKind, "generator_unavailable")
}

func TestQueryInvalidBody(t *testing.T) {
	srv, _, _ := newTestServer(t, testtools.NewGemini())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/chat/query", strings.NewReader("{broken"))
	gt.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
	var body apiError
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Equal(t, body.Error, "invalid_input")
}

func TestQueryGeneratorUnavailable(t *testing.T) {
	gemini := testtools.NewGemini("never delivered")
	gemini.FailGenerations(2)
	srv, _, index := newTestServer(t, gemini)
	seedChunk(t, index, "c1", "module-2/slam", "module-2/slam",
		"SLAM estimates the map and the pose together", 0, 0.9)

	resp := do(t, http.MethodPost, srv.URL+"/api/chat/query", "",
		&model.AskInput{Question: "How does SLAM work?"})
	gt.Equal(t, resp.StatusCode, http.StatusBadGateway)

	var body apiError
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Equal(t, body.Error, "generator_unavailable")
}

func TestChatAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, testtools.NewGemini("answer"))

	// A present-but-invalid token is rejected even where anonymous
	// access is allowed.
	resp := do(t, http.MethodPost, srv.URL+"/api/chat/query", "bogus",
		&model.AskInput{Question: "hello"})
	gt.Equal(t, resp.StatusCode, http.StatusUnauthorized)

	// Session endpoints always require a token.
	resp = do(t, http.MethodGet, srv.URL+"/api/chat/sessions", "", nil)
	gt.Equal(t, resp.StatusCode, http.StatusUnauthorized)

	strict, _, _ := newTestServer(t, testtools.NewGemini("answer"), server.WithAnonymousChat(false))
	resp = do(t, http.MethodPost, strict.URL+"/api/chat/query", "",
		&model.AskInput{Question: "hello"})
	gt.Equal(t, resp.StatusCode, http.StatusUnauthorized)

	resp = do(t, http.MethodPost, strict.URL+"/api/chat/query", "tok-1",
		&model.AskInput{Question: "hello"})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestSessionEndpoints(t *testing.T) {
	srv, _, index := newTestServer(t, testtools.NewGemini("Forward kinematics maps joint angles to pose."))
	seedChunk(t, index, "c1", "module-1/kinematics", "module-1/kinematics",
		"Forward kinematics computes the end effector pose from joint angles", 0, 0.9)

	resp := do(t, http.MethodPost, srv.URL+"/api/chat/query", "tok-1",
		&model.AskInput{Question: "What is forward kinematics?"})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var answer model.Answer
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	id := string(answer.SessionID)

	resp = do(t, http.MethodGet, srv.URL+"/api/chat/sessions", "tok-1", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var list struct {
		Sessions []*model.Session `json:"sessions"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	gt.A(t, list.Sessions).Length(1)
	gt.Equal(t, list.Sessions[0].ID, answer.SessionID)

	// Another user sees an empty list and cannot read the session.
	resp = do(t, http.MethodGet, srv.URL+"/api/chat/sessions", "tok-2", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var other struct {
		Sessions []*model.Session `json:"sessions"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&other))
	gt.A(t, other.Sessions).Length(0)

	resp = do(t, http.MethodGet, srv.URL+"/api/chat/sessions/"+id, "tok-2", nil)
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)
	var notFound apiError
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&notFound))
	gt.Equal(t, notFound.Error, "session_not_found")

	resp = do(t, http.MethodDelete, srv.URL+"/api/chat/sessions/"+id, "tok-2", nil)
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)

	// The owner reads the transcript and archives it.
	resp = do(t, http.MethodGet, srv.URL+"/api/chat/sessions/"+id, "tok-1", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var session model.Session
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	gt.A(t, session.Messages).Length(2)
	gt.Equal(t, session.Messages[0].Role, model.RoleUser)

	resp = do(t, http.MethodDelete, srv.URL+"/api/chat/sessions/"+id, "tok-1", nil)
	gt.Equal(t, resp.StatusCode, http.StatusNoContent)

	// An archived session no longer accepts questions.
	resp = do(t, http.MethodPost, srv.URL+"/api/chat/query", "tok-1",
		&model.AskInput{Question: "And inverse kinematics?", SessionID: answer.SessionID})
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestProgress(t *testing.T) {
	srv, _, _ := newTestServer(t, testtools.NewGemini())

	resp := do(t, http.MethodPost, srv.URL+"/api/progress", "",
		map[string]any{"sectionPath": "module-1/overview", "completed": true})
	gt.Equal(t, resp.StatusCode, http.StatusUnauthorized)

	resp = do(t, http.MethodPost, srv.URL+"/api/progress", "tok-1",
		map[string]any{"sectionPath": "module-1/overview", "completed": true})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var event model.ProgressEvent
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&event))
	gt.Equal(t, event.UserID, "learner-1")
	gt.True(t, event.Completed)

	resp = do(t, http.MethodPost, srv.URL+"/api/progress", "tok-1",
		map[string]any{"sectionPath": "module-2/slam", "completed": true})
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	resp = do(t, http.MethodPost, srv.URL+"/api/progress", "tok-1",
		map[string]any{"sectionPath": "module-3/planning", "completed": false})
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	resp = do(t, http.MethodPost, srv.URL+"/api/progress", "tok-1",
		map[string]any{"completed": true})
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)

	resp = do(t, http.MethodGet, srv.URL+"/api/progress", "tok-1", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var got struct {
		Progress       []*model.ProgressEvent `json:"progress"`
		CompletedCount int                    `json:"completedCount"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	gt.A(t, got.Progress).Length(3)
	gt.Equal(t, got.CompletedCount, 2)

	resp = do(t, http.MethodGet, srv.URL+"/api/progress", "tok-2", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var empty struct {
		Progress       []*model.ProgressEvent `json:"progress"`
		CompletedCount int                    `json:"completedCount"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	gt.A(t, empty.Progress).Length(0)
	gt.Equal(t, empty.CompletedCount, 0)
}

func TestRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, testtools.NewGemini(), server.WithRateLimit(0.0001, 2))

	resp := do(t, http.MethodGet, srv.URL+"/api/chat/sessions", "tok-1", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	resp = do(t, http.MethodGet, srv.URL+"/api/chat/sessions", "tok-1", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	resp = do(t, http.MethodGet, srv.URL+"/api/chat/sessions", "tok-1", nil)
	gt.Equal(t, resp.StatusCode, http.StatusTooManyRequests)
	var body apiError
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	gt.Equal(t, body.Error, "rate_limited")

	// Health stays reachable for probes.
	resp = do(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t, testtools.NewGemini())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/chat/query", nil)
	gt.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "http://example.com")
	gt.Equal(t, resp.Header.Get("Access-Control-Allow-Credentials"), "")

	pinned, _, _ := newTestServer(t, testtools.NewGemini(),
		server.WithCORSOrigins([]string{"http://localhost:3000"}))

	req, err = http.NewRequest(http.MethodOptions, pinned.URL+"/api/chat/query", nil)
	gt.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "http://localhost:3000")
	gt.Equal(t, resp.Header.Get("Access-Control-Allow-Credentials"), "true")

	req, err = http.NewRequest(http.MethodOptions, pinned.URL+"/api/chat/query", nil)
	gt.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "")
}
