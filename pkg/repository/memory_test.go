package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/repository"
)

func newSession(userID string) *model.Session {
	now := time.Now()
	return &model.Session{
		ID:           model.NewSessionID(),
		UserID:       userID,
		Title:        "How do actuators work?",
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func TestMemorySessionRoundTrip(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	session := newSession("learner-1")
	gt.NoError(t, repo.PutSession(ctx, session))

	retrieved, err := repo.GetSession(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, retrieved.ID, session.ID)
	gt.Equal(t, retrieved.UserID, "learner-1")
	gt.Equal(t, retrieved.Title, session.Title)
	gt.A(t, retrieved.Messages).Length(0)
}

func TestMemoryGetSessionNotFound(t *testing.T) {
	repo := repository.NewMemory()

	_, err := repo.GetSession(context.Background(), model.SessionID("missing"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestMemoryAppendMessages(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	session := newSession("learner-1")
	gt.NoError(t, repo.PutSession(ctx, session))

	gt.NoError(t, repo.AppendMessages(ctx, session.ID,
		&model.Message{SequenceNumber: 0, Role: model.RoleUser, Text: "How do actuators work?", CreatedAt: time.Now()},
		&model.Message{SequenceNumber: 1, Role: model.RoleAssistant, Text: "They convert energy into motion.", CreatedAt: time.Now()},
	))

	retrieved, err := repo.GetSession(ctx, session.ID)
	gt.NoError(t, err)
	gt.Equal(t, retrieved.MessageCount, 2)
	gt.A(t, retrieved.Messages).Length(2)
	gt.Equal(t, retrieved.Messages[0].SequenceNumber, 0)
	gt.Equal(t, retrieved.Messages[0].Role, model.RoleUser)
	gt.Equal(t, retrieved.Messages[1].SequenceNumber, 1)
	gt.Equal(t, retrieved.Messages[1].Role, model.RoleAssistant)
	gt.True(t, retrieved.LastActiveAt.After(session.LastActiveAt) ||
		retrieved.LastActiveAt.Equal(session.LastActiveAt))
}

func TestMemoryAppendMessagesNotFound(t *testing.T) {
	repo := repository.NewMemory()

	err := repo.AppendMessages(context.Background(), model.SessionID("missing"),
		&model.Message{SequenceNumber: 0, Role: model.RoleUser, Text: "hello"})
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestMemoryListSessions(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 3; i++ {
		session := newSession("learner-1")
		session.LastActiveAt = now.Add(time.Duration(i) * time.Hour)
		gt.NoError(t, repo.PutSession(ctx, session))
	}
	other := newSession("learner-2")
	gt.NoError(t, repo.PutSession(ctx, other))

	sessions, err := repo.ListSessions(ctx, "learner-1", 0, 10)
	gt.NoError(t, err)
	gt.A(t, sessions).Length(3)
	for i := 0; i < len(sessions)-1; i++ {
		gt.True(t, !sessions[i].LastActiveAt.Before(sessions[i+1].LastActiveAt))
	}

	limited, err := repo.ListSessions(ctx, "learner-1", 1, 1)
	gt.NoError(t, err)
	gt.A(t, limited).Length(1)

	empty, err := repo.ListSessions(ctx, "learner-1", 100, 10)
	gt.NoError(t, err)
	gt.A(t, empty).Length(0)
}

func TestMemoryArchiveSession(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	session := newSession("learner-1")
	gt.NoError(t, repo.PutSession(ctx, session))
	gt.NoError(t, repo.ArchiveSession(ctx, session.ID))

	retrieved, err := repo.GetSession(ctx, session.ID)
	gt.NoError(t, err)
	gt.True(t, retrieved.Archived)

	gt.True(t, errors.Is(
		repo.ArchiveSession(ctx, model.SessionID("missing")),
		model.ErrSessionNotFound,
	))
}

func TestMemoryDeleteIdleSessions(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	now := time.Now()

	idle := newSession("learner-1")
	idle.LastActiveAt = now.Add(-2 * time.Hour)
	gt.NoError(t, repo.PutSession(ctx, idle))

	active := newSession("learner-1")
	active.LastActiveAt = now
	gt.NoError(t, repo.PutSession(ctx, active))

	archived := newSession("learner-1")
	archived.LastActiveAt = now.Add(-2 * time.Hour)
	gt.NoError(t, repo.PutSession(ctx, archived))
	gt.NoError(t, repo.ArchiveSession(ctx, archived.ID))

	deleted, err := repo.DeleteIdleSessions(ctx, now.Add(-time.Hour))
	gt.NoError(t, err)
	gt.Equal(t, deleted, 1)

	_, err = repo.GetSession(ctx, idle.ID)
	gt.True(t, errors.Is(err, model.ErrSessionNotFound))

	// Active and archived sessions survive the sweep
	_, err = repo.GetSession(ctx, active.ID)
	gt.NoError(t, err)
	_, err = repo.GetSession(ctx, archived.ID)
	gt.NoError(t, err)
}

func TestMemoryProgress(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	now := time.Now()
	gt.NoError(t, repo.PutProgress(ctx, &model.ProgressEvent{
		UserID: "learner-1", SectionPath: "module-2/chapter-1", Completed: true, OccurredAt: now,
	}))
	gt.NoError(t, repo.PutProgress(ctx, &model.ProgressEvent{
		UserID: "learner-1", SectionPath: "module-1/chapter-3", Completed: true, OccurredAt: now,
	}))
	gt.NoError(t, repo.PutProgress(ctx, &model.ProgressEvent{
		UserID: "learner-2", SectionPath: "module-1/chapter-1", Completed: true, OccurredAt: now,
	}))

	// Re-recording the same section replaces, not duplicates
	gt.NoError(t, repo.PutProgress(ctx, &model.ProgressEvent{
		UserID: "learner-1", SectionPath: "module-2/chapter-1", Completed: false, OccurredAt: now,
	}))

	events, err := repo.ListProgress(ctx, "learner-1")
	gt.NoError(t, err)
	gt.A(t, events).Length(2)
	gt.Equal(t, events[0].SectionPath, "module-1/chapter-3")
	gt.Equal(t, events[1].SectionPath, "module-2/chapter-1")
	gt.False(t, events[1].Completed)
}
