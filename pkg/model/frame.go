package model

// FrameType discriminates streaming protocol frames.
type FrameType string

const (
	FrameSources FrameType = "sources"
	FrameChunk   FrameType = "chunk"
	FrameDone    FrameType = "done"
	FrameError   FrameType = "error"
)

// SourceRef is one citation shown to the user. Chunk IDs are opaque here;
// the content side resolves them to readable locations.
type SourceRef struct {
	ChunkID     ChunkID `json:"chunkId"`
	SectionPath string  `json:"sectionPath"`
	Score       float64 `json:"score"`
}

// Frame is one unit of the streaming output protocol. The sequence is:
// sources (once), chunk (zero or more), then exactly one of done or error.
type Frame struct {
	Type FrameType `json:"type"`

	Sources   []SourceRef `json:"sources,omitempty"`
	Text      string      `json:"text,omitempty"`
	SessionID SessionID   `json:"sessionId,omitempty"`
	Citations []ChunkID   `json:"citations,omitempty"`
	ErrorKind string      `json:"errorKind,omitempty"`
	Message   string      `json:"message,omitempty"`
}

func NewSourcesFrame(refs []SourceRef) *Frame {
	if refs == nil {
		refs = []SourceRef{}
	}
	return &Frame{Type: FrameSources, Sources: refs}
}

func NewChunkFrame(text string) *Frame {
	return &Frame{Type: FrameChunk, Text: text}
}

func NewDoneFrame(sessionID SessionID, citations []ChunkID) *Frame {
	return &Frame{Type: FrameDone, SessionID: sessionID, Citations: citations}
}

func NewErrorFrame(err error) *Frame {
	return &Frame{Type: FrameError, ErrorKind: ErrorKind(err), Message: err.Error()}
}

// Answer is the non-streaming convenience form of a completed exchange.
type Answer struct {
	Answer    string      `json:"answer"`
	Sources   []SourceRef `json:"sources"`
	SessionID SessionID   `json:"sessionId"`
}
