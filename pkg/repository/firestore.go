package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

const (
	sessionCollection  = "sessions"
	messageCollection  = "messages"
	progressCollection = "progress"
)

// Firestore implements Repository on Cloud Firestore. Messages live in a
// subcollection under their session document, keyed by zero-padded sequence
// number so document order matches transcript order.
type Firestore struct {
	client *firestore.Client
}

// New creates a Firestore repository against the given project and database
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) PutSession(ctx context.Context, session *model.Session) error {
	_, err := r.client.Collection(sessionCollection).Doc(string(session.ID)).Set(ctx, session)
	if err != nil {
		return goerr.Wrap(err, "failed to put session", goerr.V("id", session.ID))
	}
	return nil
}

func (r *Firestore) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	doc, err := r.client.Collection(sessionCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("id", id))
	}

	var session model.Session
	if err := doc.DataTo(&session); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session", goerr.V("id", id))
	}

	iter := doc.Ref.Collection(messageCollection).
		OrderBy("sequenceNumber", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	for {
		msgDoc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages", goerr.V("id", id))
		}
		var msg model.Message
		if err := msgDoc.DataTo(&msg); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message", goerr.V("id", id))
		}
		session.Messages = append(session.Messages, &msg)
	}
	return &session, nil
}

func (r *Firestore) ListSessions(ctx context.Context, userID string, offset, limit int) ([]*model.Session, error) {
	iter := r.client.Collection(sessionCollection).
		Where("userId", "==", userID).
		OrderBy("lastActiveAt", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	sessions := []*model.Session{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate sessions", goerr.V("userID", userID))
		}
		var session model.Session
		if err := doc.DataTo(&session); err != nil {
			return nil, goerr.Wrap(err, "failed to decode session")
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (r *Firestore) AppendMessages(ctx context.Context, id model.SessionID, messages ...*model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	sessionRef := r.client.Collection(sessionCollection).Doc(string(id))
	now := time.Now()

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(sessionRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("id", id))
			}
			return goerr.Wrap(err, "failed to get session")
		}

		var session model.Session
		if err := doc.DataTo(&session); err != nil {
			return goerr.Wrap(err, "failed to decode session")
		}

		for _, msg := range messages {
			msgRef := sessionRef.Collection(messageCollection).Doc(messageDocID(msg.SequenceNumber))
			if err := tx.Set(msgRef, msg); err != nil {
				return goerr.Wrap(err, "failed to put message",
					goerr.V("sequence", msg.SequenceNumber))
			}
		}

		return tx.Update(sessionRef, []firestore.Update{
			{Path: "messageCount", Value: session.MessageCount + len(messages)},
			{Path: "lastActiveAt", Value: now},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to append messages",
			goerr.V("id", id), goerr.V("count", len(messages)))
	}
	return nil
}

func (r *Firestore) ArchiveSession(ctx context.Context, id model.SessionID) error {
	ref := r.client.Collection(sessionCollection).Doc(string(id))
	_, err := ref.Update(ctx, []firestore.Update{{Path: "archived", Value: true}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to archive session", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) DeleteIdleSessions(ctx context.Context, before time.Time) (int, error) {
	iter := r.client.Collection(sessionCollection).
		Where("archived", "==", false).
		Where("lastActiveAt", "<", before).
		Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, goerr.Wrap(err, "failed to iterate idle sessions")
		}
		if err := r.deleteSessionTree(ctx, doc.Ref); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// deleteSessionTree removes a session document and its message subcollection.
// Firestore does not cascade deletes to subcollections.
func (r *Firestore) deleteSessionTree(ctx context.Context, sessionRef *firestore.DocumentRef) error {
	refs := sessionRef.Collection(messageCollection).DocumentRefs(ctx)
	for {
		ref, err := refs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate message refs")
		}
		if _, err := ref.Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete message", goerr.V("path", ref.Path))
		}
	}
	if _, err := sessionRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete session", goerr.V("path", sessionRef.Path))
	}
	return nil
}

func (r *Firestore) PutProgress(ctx context.Context, event *model.ProgressEvent) error {
	ref := r.client.Collection(progressCollection).Doc(progressDocID(event.UserID, event.SectionPath))
	if _, err := ref.Set(ctx, event); err != nil {
		return goerr.Wrap(err, "failed to put progress",
			goerr.V("userID", event.UserID), goerr.V("sectionPath", event.SectionPath))
	}
	return nil
}

func (r *Firestore) ListProgress(ctx context.Context, userID string) ([]*model.ProgressEvent, error) {
	iter := r.client.Collection(progressCollection).
		Where("userId", "==", userID).
		OrderBy("sectionPath", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	events := []*model.ProgressEvent{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate progress", goerr.V("userID", userID))
		}
		var event model.ProgressEvent
		if err := doc.DataTo(&event); err != nil {
			return nil, goerr.Wrap(err, "failed to decode progress event")
		}
		events = append(events, &event)
	}
	return events, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

// messageDocID pads the sequence number so lexical document order matches
// transcript order.
func messageDocID(seq int) string {
	return fmt.Sprintf("%06d", seq)
}

// progressDocID derives a stable document ID for one user+section pair.
// Section paths contain slashes, which Firestore document IDs cannot.
func progressDocID(userID, sectionPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("progress://"+userID+"/"+sectionPath)).String()
}
