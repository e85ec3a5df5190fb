package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/emorobcare/companion/internal/llm"
)

// PostgresStore keeps memory entries in Postgres with pgvector embeddings.
type PostgresStore struct {
	pool     *pgxpool.Pool
	dim      int
	embedder llm.Embedder
}

func NewPostgresStore(ctx context.Context, databaseURL string, dim int, embedder llm.Embedder) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, dim: dim, embedder: embedder}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_entries (
			id UUID PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			child_id TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			clean_text TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			embedding vector(%d) NOT NULL
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_child ON memory_entries (child_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_conversation ON memory_entries (conversation_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init memory schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, entries []Entry) error {
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
		_, err = s.pool.Exec(ctx, `
			INSERT INTO memory_entries
				(id, conversation_id, child_id, topic, role, text, clean_text, language, created_at, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				clean_text = EXCLUDED.clean_text,
				embedding = EXCLUDED.embedding`,
			e.ID, e.ConversationID, e.ChildID, e.Topic, e.Role,
			e.Text, e.CleanText, e.Language, e.CreatedAt,
			pgvector.NewVector(vec))
		if err != nil {
			return fmt.Errorf("insert memory entry: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, child_id, topic, role, text, clean_text, language, created_at,
			1 - (embedding <=> $1) AS similarity
		FROM memory_entries
		WHERE ($2 = '' OR child_id = $2)
		  AND ($3 = '' OR topic = $3)
		  AND 1 - (embedding <=> $1) >= $4
		ORDER BY embedding <=> $1
		LIMIT $5`,
		pgvector.NewVector(vec), q.ChildID, q.Topic, q.MinScore, limit)
	if err != nil {
		return nil, fmt.Errorf("search memory entries: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.ConversationID, &h.ChildID, &h.Topic, &h.Role,
			&h.Text, &h.CleanText, &h.Language, &h.CreatedAt, &h.Score); err != nil {
			return nil, fmt.Errorf("scan memory entry: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM memory_entries WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete memory entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
