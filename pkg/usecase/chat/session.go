package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

const maxTitleRunes = 80

// ensureSession loads the session or creates it lazily. A supplied id that
// is unknown to the store creates a session under that id, so clients keep
// their continuity across store eviction.
func (u *UseCase) ensureSession(ctx context.Context, id model.SessionID, input *model.AskInput) (*model.Session, error) {
	session, err := u.repo.GetSession(ctx, id)
	if err == nil {
		if session.Archived {
			return nil, goerr.Wrap(model.ErrInvalidInput, "session is archived",
				goerr.V("id", id))
		}
		return session, nil
	}
	if !errors.Is(err, model.ErrSessionNotFound) {
		return nil, err
	}

	now := time.Now()
	session = &model.Session{
		ID:           id,
		UserID:       input.UserID,
		Title:        titleFrom(input.Question),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := u.repo.PutSession(ctx, session); err != nil {
		return nil, goerr.Wrap(err, "failed to create session", goerr.V("id", id))
	}
	return session, nil
}

// titleFrom derives a session title from the first question.
func titleFrom(question string) string {
	title := strings.Join(strings.Fields(question), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleRunes-1]) + "…"
}

// Sessions lists a user's sessions, most recently active first.
func (u *UseCase) Sessions(ctx context.Context, userID string, offset, limit int) ([]*model.Session, error) {
	return u.repo.ListSessions(ctx, userID, offset, limit)
}

// Session returns one session with its full transcript.
func (u *UseCase) Session(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return u.repo.GetSession(ctx, id)
}

// Archive marks a session as archived. Its transcript stays readable.
func (u *UseCase) Archive(ctx context.Context, id model.SessionID) error {
	return u.repo.ArchiveSession(ctx, id)
}

// EvictIdle removes unarchived sessions that have been idle longer than
// the configured TTL. Returns how many sessions were evicted.
func (u *UseCase) EvictIdle(ctx context.Context) (int, error) {
	return u.repo.DeleteIdleSessions(ctx, time.Now().Add(-u.idleTTL))
}
