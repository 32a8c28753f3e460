package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a normalized unit of source content, ready for chunking.
// Adapters for the different backends (local files, GitHub, Wiki.js) all
// produce this shape; nothing downstream knows where a document came from.
type Document struct {
	Content   string
	Source    string
	Title     string
	Path      string
	Extension string
}

// Chunk is a bounded contiguous slice of a document's normalized text, the
// unit of embedding and retrieval. ChunkID is positional within its source
// document (0-based, contiguous); it is not globally unique. StartChar and
// EndChar are rune offsets into the normalized text, not byte offsets, and
// not offsets into the raw document content.
type Chunk struct {
	Content   string
	Source    string
	Title     string
	ChunkID   int
	StartChar int
	EndChar   int
}

// SearchResult is one ranked hit from a vector similarity search.
// Similarity is 1 - cosine distance; cosine distance lies in [0, 2], so
// the score lies in [-1, 1] and is not a probability.
type SearchResult struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Title      string  `json:"title"`
	ChunkID    int     `json:"chunk_id"`
	Similarity float64 `json:"similarity_score"`
	Rank       int     `json:"rank"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Feedback is a per-message quality signal from the user.
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// Session is a persisted conversation. At most one session per user is
// active at a time.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       string    `json:"user_id"`
	IsActive     bool      `json:"is_active"`
	MessageCount int       `json:"message_count"`
}

// Message is a single chat turn belonging to exactly one session.
// Feedback is empty until the user rates the message.
type Message struct {
	ID        int64          `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Sources   []SearchResult `json:"sources,omitempty"`
	Feedback  Feedback       `json:"feedback,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
