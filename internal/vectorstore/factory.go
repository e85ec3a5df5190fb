package vectorstore

import (
	"context"
	"log"

	"github.com/emorobcare/companion/internal/config"
	"github.com/emorobcare/companion/internal/llm"
)

// NewStore picks a backend from configuration: Qdrant when QDRANT_URL is
// set, Postgres/pgvector when DATABASE_URL is set, in-memory otherwise.
func NewStore(ctx context.Context, cfg config.Config, embedder llm.Embedder) (Store, error) {
	switch {
	case cfg.QdrantURL != "":
		log.Printf("vectorstore: using qdrant collection %q at %s", cfg.QdrantCollection, cfg.QdrantURL)
		return NewQdrantStore(ctx, cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDim, embedder)
	case cfg.DatabaseURL != "":
		log.Printf("vectorstore: using postgres/pgvector store")
		return NewPostgresStore(ctx, cfg.DatabaseURL, cfg.EmbeddingDim, embedder)
	default:
		log.Printf("vectorstore: using in-memory store")
		return NewInMemoryStore(embedder), nil
	}
}
