package models

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session is one conversation. A session may be scoped to a single document,
// in which case retrieval for its queries is restricted to that document.
type Session struct {
	ID         string    `bson:"_id" json:"id"`
	DocumentID string    `bson:"document_id,omitempty" json:"document_id,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// Citation references the chunk that supports part of an assistant answer.
type Citation struct {
	DocumentID     string  `bson:"document_id" json:"document_id"`
	FDADocumentID  string  `bson:"fda_document_id" json:"fda_document_id"`
	Title          string  `bson:"title" json:"title"`
	Page           int     `bson:"page" json:"page"`
	ContentPreview string  `bson:"content_preview" json:"content_preview"`
	Similarity     float64 `bson:"similarity" json:"similarity"`
}

// Turn is one message in a session. Turns are append-only and immutable;
// Seq is a per-session monotonic counter that fixes ordering even when two
// turns share a creation timestamp. Incomplete marks an assistant turn whose
// stream was cancelled or failed after partial content had been produced.
type Turn struct {
	ID         string     `bson:"_id" json:"id"`
	SessionID  string     `bson:"session_id" json:"session_id"`
	Seq        int64      `bson:"seq" json:"seq"`
	Role       string     `bson:"role" json:"role"`
	Content    string     `bson:"content" json:"content"`
	Citations  []Citation `bson:"citations,omitempty" json:"citations,omitempty"`
	Incomplete bool       `bson:"incomplete,omitempty" json:"incomplete,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
}
