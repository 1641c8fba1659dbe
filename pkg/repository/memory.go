package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// Memory is an in-memory Repository for tests and single-process runs.
// All returned values are copies; callers never alias internal state.
type Memory struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*model.Session
	messages map[model.SessionID][]*model.Message
	progress map[string]*model.ProgressEvent
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[model.SessionID]*model.Session),
		messages: make(map[model.SessionID][]*model.Message),
		progress: make(map[string]*model.ProgressEvent),
	}
}

func (r *Memory) PutSession(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	copied.Messages = nil
	r.sessions[session.ID] = &copied
	return nil
}

func (r *Memory) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("id", id))
	}

	copied := *session
	for _, msg := range r.messages[id] {
		m := *msg
		copied.Messages = append(copied.Messages, &m)
	}
	sort.Slice(copied.Messages, func(i, j int) bool {
		return copied.Messages[i].SequenceNumber < copied.Messages[j].SequenceNumber
	})
	return &copied, nil
}

func (r *Memory) ListSessions(ctx context.Context, userID string, offset, limit int) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*model.Session{}
	for _, session := range r.sessions {
		if session.UserID != userID {
			continue
		}
		copied := *session
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastActiveAt.After(matched[j].LastActiveAt)
	})

	if offset >= len(matched) {
		return []*model.Session{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *Memory) AppendMessages(ctx context.Context, id model.SessionID, messages ...*model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("id", id))
	}

	for _, msg := range messages {
		m := *msg
		r.messages[id] = append(r.messages[id], &m)
	}
	session.MessageCount += len(messages)
	session.LastActiveAt = time.Now()
	return nil
}

func (r *Memory) ArchiveSession(ctx context.Context, id model.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("id", id))
	}
	session.Archived = true
	return nil
}

func (r *Memory) DeleteIdleSessions(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, session := range r.sessions {
		if session.Archived || !session.LastActiveAt.Before(before) {
			continue
		}
		delete(r.sessions, id)
		delete(r.messages, id)
		deleted++
	}
	return deleted, nil
}

func (r *Memory) PutProgress(ctx context.Context, event *model.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	r.progress[event.UserID+"|"+event.SectionPath] = &copied
	return nil
}

func (r *Memory) ListProgress(ctx context.Context, userID string) ([]*model.ProgressEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := []*model.ProgressEvent{}
	for _, event := range r.progress {
		if event.UserID != userID {
			continue
		}
		copied := *event
		events = append(events, &copied)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].SectionPath < events[j].SectionPath
	})
	return events, nil
}

func (r *Memory) Close() error {
	return nil
}
