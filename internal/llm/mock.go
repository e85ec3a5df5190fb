package llm

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// MockClient is a deterministic in-process client for tests and for running
// the service without any model backend configured.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	next      int
	calls     []Request

	// Err, when set, is returned by every Complete call.
	Err error
}

func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

func (m *MockClient) Complete(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.responses) == 0 {
		return "**¡Qué interesante!** Cuéntame más sobre eso.", nil
	}
	resp := m.responses[m.next%len(m.responses)]
	m.next++
	return resp, nil
}

// Calls returns a copy of every request seen so far.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// HashEmbedder produces stable pseudo-embeddings from token hashes. Identical
// texts embed identically and share vocabulary raises cosine similarity,
// which is enough for in-memory search in tests and offline runs.
type HashEmbedder struct {
	Dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{Dim: dim}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.Dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		idx := int(h.Sum32()) % e.Dim
		if idx < 0 {
			idx += e.Dim
		}
		vec[idx] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func tokenize(text string) []string {
	var tokens []string
	var current []rune
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r > 127:
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			current = append(current, r)
		default:
			if len(current) > 0 {
				tokens = append(tokens, string(current))
				current = current[:0]
			}
		}
	}
	if len(current) > 0 {
		tokens = append(tokens, string(current))
	}
	return tokens
}
