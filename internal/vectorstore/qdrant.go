package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emorobcare/companion/internal/llm"
)

// QdrantStore talks to a Qdrant server over its HTTP API.
type QdrantStore struct {
	baseURL    string
	collection string
	dim        int
	embedder   llm.Embedder
	client     *http.Client
}

func NewQdrantStore(ctx context.Context, baseURL, collection string, dim int, embedder llm.Embedder) (*QdrantStore, error) {
	s := &QdrantStore{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		collection: collection,
		dim:        dim,
		embedder:   embedder,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dim,
			"distance": "Cosine",
		},
	}
	status, _, err := s.do(ctx, http.MethodPut, "/collections/"+s.collection, body)
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}
	// 409 means the collection already exists; any other non-2xx is fatal.
	if status == http.StatusConflict {
		return nil
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("create qdrant collection: status %d", status)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(entries))
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
		points = append(points, map[string]any{
			"id":     e.ID,
			"vector": vec,
			"payload": map[string]any{
				"conversation_id": e.ConversationID,
				"child_id":        e.ChildID,
				"topic":           e.Topic,
				"role":            e.Role,
				"text":            e.Text,
				"clean_text":      e.CleanText,
				"language":        e.Language,
				"created_at":      e.CreatedAt.Format(time.RFC3339),
			},
		})
	}

	status, respBody, err := s.do(ctx, http.MethodPut,
		"/collections/"+s.collection+"/points?wait=true",
		map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("qdrant upsert: status %d: %s", status, truncate(respBody, 256))
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (s *QdrantStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var must []map[string]any
	if q.ChildID != "" {
		must = append(must, map[string]any{"key": "child_id", "match": map[string]any{"value": q.ChildID}})
	}
	if q.Topic != "" {
		must = append(must, map[string]any{"key": "topic", "match": map[string]any{"value": q.Topic}})
	}

	body := map[string]any{
		"vector":          vec,
		"limit":           q.Limit,
		"with_payload":    true,
		"score_threshold": q.MinScore,
	}
	if q.Limit <= 0 {
		body["limit"] = 10
	}
	if len(must) > 0 {
		body["filter"] = map[string]any{"must": must}
	}

	status, respBody, err := s.do(ctx, http.MethodPost,
		"/collections/"+s.collection+"/points/search", body)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("qdrant search: status %d: %s", status, truncate(respBody, 256))
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("qdrant search: decode response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		e := Entry{
			ID:             fmt.Sprintf("%v", r.ID),
			ConversationID: payloadString(r.Payload, "conversation_id"),
			ChildID:        payloadString(r.Payload, "child_id"),
			Topic:          payloadString(r.Payload, "topic"),
			Role:           payloadString(r.Payload, "role"),
			Text:           payloadString(r.Payload, "text"),
			CleanText:      payloadString(r.Payload, "clean_text"),
			Language:       payloadString(r.Payload, "language"),
		}
		if ts := payloadString(r.Payload, "created_at"); ts != "" {
			if parsedTime, err := time.Parse(time.RFC3339, ts); err == nil {
				e.CreatedAt = parsedTime
			}
		}
		hits = append(hits, Hit{Entry: e, Score: r.Score})
	}
	return hits, nil
}

func (s *QdrantStore) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	// Count first so the caller can report how many rows went away.
	countStatus, countBody, err := s.do(ctx, http.MethodPost,
		"/collections/"+s.collection+"/points/count",
		map[string]any{
			"filter": map[string]any{
				"must": []map[string]any{
					{"key": "conversation_id", "match": map[string]any{"value": conversationID}},
				},
			},
			"exact": true,
		})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	count := 0
	if countStatus >= 200 && countStatus < 300 {
		var parsed struct {
			Result struct {
				Count int `json:"count"`
			} `json:"result"`
		}
		if err := json.Unmarshal(countBody, &parsed); err == nil {
			count = parsed.Result.Count
		}
	}

	status, respBody, err := s.do(ctx, http.MethodPost,
		"/collections/"+s.collection+"/points/delete?wait=true",
		map[string]any{
			"filter": map[string]any{
				"must": []map[string]any{
					{"key": "conversation_id", "match": map[string]any{"value": conversationID}},
				},
			},
		})
	if err != nil {
		return 0, fmt.Errorf("qdrant delete: %w", err)
	}
	if status < 200 || status >= 300 {
		return 0, fmt.Errorf("qdrant delete: status %d: %s", status, truncate(respBody, 256))
	}
	return count, nil
}

func (s *QdrantStore) Close() error { return nil }

func (s *QdrantStore) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return res.StatusCode, respBody, nil
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
