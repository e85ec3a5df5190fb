package docstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// State is the lifecycle state of a conversation.
type State string

const (
	StateStarting State = "starting"
	StateOpen     State = "open"
	StateClosing  State = "closing"
	StateClosed   State = "closed"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleChild     Role = "child"
	RoleAssistant Role = "assistant"
)

// ChildProfile holds the guardian-configured settings for a child. Profiles
// are upserted, never deleted.
type ChildProfile struct {
	ChildID         string    `json:"child_id"`
	Name            string    `json:"name"`
	Age             int       `json:"age"`
	PreferredTopics []string  `json:"preferred_topics"`
	AvoidTopics     []string  `json:"avoid_topics"`
	Level           int       `json:"level"`
	Sensitivity     string    `json:"sensitivity"`
	Language        string    `json:"language"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Conversation is the primary record for one conversation.
type Conversation struct {
	ID        string    `json:"conversation_id"`
	ChildID   string    `json:"child_id"`
	Topic     string    `json:"topic"`
	Level     int       `json:"level"`
	Language  string    `json:"language"`
	State     State     `json:"state"`
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one message within a conversation. Turns are append-only.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	Emotion        string    `json:"emotion,omitempty"`
	ASRConfidence  *float64  `json:"asr_confidence,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists profiles, conversations and turns.
type Store interface {
	UpsertProfile(ctx context.Context, profile ChildProfile) error
	GetProfile(ctx context.Context, childID string) (ChildProfile, error)

	CreateConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	ListConversations(ctx context.Context, childID string, limit int) ([]Conversation, error)
	SetState(ctx context.Context, conversationID string, state State) error

	// AppendTurns writes the given turns in order as one durable operation
	// and bumps the conversation's turn count.
	AppendTurns(ctx context.Context, conversationID string, turns ...Turn) error
	ListTurns(ctx context.Context, conversationID string) ([]Turn, error)

	Close() error
}
