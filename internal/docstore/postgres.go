package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS child_profiles (
			child_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			age INT NOT NULL,
			preferred_topics TEXT[] NOT NULL DEFAULT '{}',
			avoid_topics TEXT[] NOT NULL DEFAULT '{}',
			level INT NOT NULL,
			sensitivity TEXT NOT NULL DEFAULT 'medium',
			language TEXT NOT NULL DEFAULT 'es',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			child_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			level INT NOT NULL,
			language TEXT NOT NULL,
			state TEXT NOT NULL,
			turn_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_child_created ON conversations (child_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			seq BIGSERIAL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			emotion TEXT NOT NULL DEFAULT '',
			asr_confidence DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation_seq ON turns (conversation_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p ChildProfile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO child_profiles (child_id, name, age, preferred_topics, avoid_topics, level, sensitivity, language)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (child_id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			preferred_topics = EXCLUDED.preferred_topics,
			avoid_topics = EXCLUDED.avoid_topics,
			level = EXCLUDED.level,
			sensitivity = EXCLUDED.sensitivity,
			language = EXCLUDED.language,
			updated_at = now()`,
		p.ChildID, p.Name, p.Age, p.PreferredTopics, p.AvoidTopics, p.Level, p.Sensitivity, p.Language,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, childID string) (ChildProfile, error) {
	var p ChildProfile
	err := s.pool.QueryRow(ctx,
		`SELECT child_id, name, age, preferred_topics, avoid_topics, level, sensitivity, language, created_at, updated_at
		 FROM child_profiles WHERE child_id = $1`,
		childID,
	).Scan(&p.ChildID, &p.Name, &p.Age, &p.PreferredTopics, &p.AvoidTopics, &p.Level, &p.Sensitivity, &p.Language, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChildProfile{}, ErrNotFound
	}
	if err != nil {
		return ChildProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, child_id, topic, level, language, state, turn_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		c.ID, c.ChildID, c.Topic, c.Level, c.Language, string(c.State), c.TurnCount, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	var c Conversation
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT id, child_id, topic, level, language, state, turn_count, created_at, updated_at
		 FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&c.ID, &c.ChildID, &c.Topic, &c.Level, &c.Language, &state, &c.TurnCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	c.State = State(state)
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, childID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, child_id, topic, level, language, state, turn_count, created_at, updated_at
		 FROM conversations WHERE child_id = $1 ORDER BY created_at DESC LIMIT $2`,
		childID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var state string
		if err := rows.Scan(&c.ID, &c.ChildID, &c.Topic, &c.Level, &c.Language, &state, &c.TurnCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.State = State(state)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetState(ctx context.Context, conversationID string, state State) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET state = $2, updated_at = now() WHERE id = $1`,
		conversationID, string(state),
	)
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendTurns(ctx context.Context, conversationID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append turns: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE conversations SET turn_count = turn_count + $2, updated_at = now() WHERE id = $1`,
		conversationID, len(turns),
	)
	if err != nil {
		return fmt.Errorf("bump turn count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	now := time.Now().UTC()
	for _, t := range turns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO turns (id, conversation_id, role, text, emotion, asr_confidence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, conversationID, string(t.Role), t.Text, t.Emotion, t.ASRConfidence, t.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, conversationID string) ([]Turn, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, text, emotion, asr_confidence, created_at
		 FROM turns WHERE conversation_id = $1 ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.ID, &t.ConversationID, &role, &t.Text, &t.Emotion, &t.ASRConfidence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
