package vectorstore

import (
	"context"
	"time"
)

// Entry is one embedded memory row tied to a conversation turn.
type Entry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ChildID        string    `json:"child_id"`
	Topic          string    `json:"topic"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	CleanText      string    `json:"clean_text"`
	Language       string    `json:"language"`
	CreatedAt      time.Time `json:"created_at"`
}

// Hit is a search result with its cosine similarity score.
type Hit struct {
	Entry
	Score float64 `json:"score"`
}

// Query describes a semantic search. MinScore filters out weak matches at
// the store level.
type Query struct {
	Text     string
	ChildID  string
	Topic    string
	Limit    int
	MinScore float64
}

// Store embeds and persists memory entries and serves similarity search.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, q Query) ([]Hit, error)
	// DeleteConversation removes every entry for a conversation and reports
	// how many were removed.
	DeleteConversation(ctx context.Context, conversationID string) (int, error)
	Close() error
}
