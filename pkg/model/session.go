package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is a bounded, ordered conversation between one user and the
// assistant. Owned exclusively by the session manager; created lazily on
// the first message and evicted after a configurable idle period.
type Session struct {
	ID           SessionID `firestore:"id" json:"id"`
	UserID       string    `firestore:"userId" json:"userId,omitempty"`
	Title        string    `firestore:"title" json:"title,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt" json:"createdAt"`
	LastActiveAt time.Time `firestore:"lastActiveAt" json:"lastActiveAt"`
	MessageCount int       `firestore:"messageCount" json:"messageCount"`
	Archived     bool      `firestore:"archived" json:"archived,omitempty"`

	// Messages are stored separately from the session record
	Messages []*Message `firestore:"-" json:"messages,omitempty"`
}

// Message is one transcript entry. Sequence numbers are assigned by the
// session manager under per-session serialization: a session's messages
// always read 0..n-1 with no gaps or duplicates.
type Message struct {
	SequenceNumber int       `firestore:"sequenceNumber" json:"sequenceNumber"`
	Role           Role      `firestore:"role" json:"role"`
	Text           string    `firestore:"text" json:"text"`
	CitedChunkIDs  []ChunkID `firestore:"citedChunkIds" json:"citedChunkIds,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt" json:"createdAt"`
}
