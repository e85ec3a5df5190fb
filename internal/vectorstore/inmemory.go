package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emorobcare/companion/internal/llm"
)

// InMemoryStore keeps embeddings in process memory. Used for local/dev runs
// and tests.
type InMemoryStore struct {
	embedder llm.Embedder

	mu      sync.RWMutex
	entries map[string]storedEntry
}

type storedEntry struct {
	Entry
	vector []float32
}

func NewInMemoryStore(embedder llm.Embedder) *InMemoryStore {
	return &InMemoryStore{
		embedder: embedder,
		entries:  make(map[string]storedEntry),
	}
}

func (s *InMemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.CleanText == "" {
			e.CleanText = e.Text
		}
		vec, err := s.embedder.Embed(ctx, e.CleanText)
		if err != nil {
			return fmt.Errorf("embed entry: %w", err)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		s.mu.Lock()
		s.entries[e.ID] = storedEntry{Entry: e, vector: vec}
		s.mu.Unlock()
	}
	return nil
}

func (s *InMemoryStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	queryVec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Hit
	for _, e := range s.entries {
		if q.ChildID != "" && e.ChildID != q.ChildID {
			continue
		}
		if q.Topic != "" && e.Topic != q.Topic {
			continue
		}
		score := cosine(queryVec, e.vector)
		if score < q.MinScore {
			continue
		}
		hits = append(hits, Hit{Entry: e.Entry, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (s *InMemoryStore) DeleteConversation(_ context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.ConversationID == conversationID {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	// Embedders normalize their output, so the dot product is the cosine.
	return dot
}
