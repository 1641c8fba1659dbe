package repository

import (
	"context"
	"time"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// Repository defines the interface for session and progress persistence
type Repository interface {
	// PutSession saves a session record (metadata only, not messages)
	PutSession(ctx context.Context, session *model.Session) error

	// GetSession retrieves a session with its transcript, messages ordered
	// by sequence number
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)

	// ListSessions retrieves a user's sessions, most recently active first
	ListSessions(ctx context.Context, userID string, offset, limit int) ([]*model.Session, error)

	// AppendMessages atomically appends messages to a session transcript
	// and advances the session's message count and last-activity time
	AppendMessages(ctx context.Context, id model.SessionID, messages ...*model.Message) error

	// ArchiveSession marks a session as archived; archived sessions stay
	// readable but receive no further messages
	ArchiveSession(ctx context.Context, id model.SessionID) error

	// DeleteIdleSessions removes unarchived sessions whose last activity
	// predates the given time, returning how many were removed
	DeleteIdleSessions(ctx context.Context, before time.Time) (int, error)

	// PutProgress records a section completion event, replacing any prior
	// state for the same user and section
	PutProgress(ctx context.Context, event *model.ProgressEvent) error

	// ListProgress retrieves a user's progress events ordered by section
	ListProgress(ctx context.Context, userID string) ([]*model.ProgressEvent, error)

	// Close releases the underlying connection
	Close() error
}
