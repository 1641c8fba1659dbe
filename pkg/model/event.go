package model

import "time"

// ProgressEvent is one completion event from the reading UI. The pipeline
// only records these; rendering progress is the platform's concern.
type ProgressEvent struct {
	UserID      string    `firestore:"userId" json:"userId"`
	SectionPath string    `firestore:"sectionPath" json:"sectionPath"`
	Completed   bool      `firestore:"completed" json:"completed"`
	OccurredAt  time.Time `firestore:"occurredAt" json:"occurredAt"`
}

// Usage event kinds emitted to the analytics sink.
const (
	UsageAnswered  = "question_answered"
	UsageCancelled = "question_cancelled"
	UsageFailed    = "question_failed"
	UsageIngested  = "document_ingested"
)

// UsageEvent is one analytics record. Fire-and-forget: losing one never
// fails the request that produced it.
type UsageEvent struct {
	Kind          string
	SessionID     SessionID
	UserID        string
	DocumentID    DocumentID
	LatencyMillis int64
	PromptTokens  int
	ChunkCount    int
	CitationCount int
	CreatedAt     time.Time
}
