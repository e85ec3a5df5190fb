package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a process-local store for local/dev use and tests.
type InMemoryStore struct {
	mu            sync.RWMutex
	profiles      map[string]ChildProfile
	conversations map[string]Conversation
	turns         map[string][]Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:      make(map[string]ChildProfile),
		conversations: make(map[string]Conversation),
		turns:         make(map[string][]Turn),
	}
}

func (s *InMemoryStore) UpsertProfile(_ context.Context, profile ChildProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.profiles[profile.ChildID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	s.profiles[profile.ChildID] = profile
	return nil
}

func (s *InMemoryStore) GetProfile(_ context.Context, childID string) (ChildProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[childID]
	if !ok {
		return ChildProfile{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) CreateConversation(_ context.Context, conv Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = conv.CreatedAt
	s.conversations[conv.ID] = conv
	return nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, conversationID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context, childID string, limit int) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.ChildID == childID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SetState(_ context.Context, conversationID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.State = state
	c.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = c
	return nil
}

func (s *InMemoryStore) AppendTurns(_ context.Context, conversationID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	for i := range turns {
		if turns[i].ID == "" {
			turns[i].ID = uuid.NewString()
		}
		turns[i].ConversationID = conversationID
		if turns[i].CreatedAt.IsZero() {
			turns[i].CreatedAt = now
		}
	}
	s.turns[conversationID] = append(s.turns[conversationID], turns...)
	c.TurnCount += len(turns)
	c.UpdatedAt = now
	s.conversations[conversationID] = c
	return nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, conversationID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	src := s.turns[conversationID]
	out := make([]Turn, len(src))
	copy(out, src)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
