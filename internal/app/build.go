// Package app wires configuration into a runnable service graph, shared
// by the server binary and integration tests.
package app

import (
	"context"
	"fmt"

	"github.com/emorobcare/companion/internal/assembler"
	"github.com/emorobcare/companion/internal/config"
	"github.com/emorobcare/companion/internal/conversation"
	"github.com/emorobcare/companion/internal/docstore"
	"github.com/emorobcare/companion/internal/extraction"
	"github.com/emorobcare/companion/internal/graphstore"
	"github.com/emorobcare/companion/internal/httpapi"
	"github.com/emorobcare/companion/internal/llm"
	"github.com/emorobcare/companion/internal/observability"
	"github.com/emorobcare/companion/internal/vectorstore"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *conversation.Orchestrator
	Extractor    *extraction.Orchestrator
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release external resources
	// (DB pools, HTTP adapters).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client, embedder, err := llm.NewClient(llm.Config{
		Provider:       cfg.LLMProvider,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		APIKey:         cfg.LLMAPIKey,
		AnthropicKey:   cfg.AnthropicKey,
		EmbeddingModel: cfg.EmbeddingModel,
		EmbeddingDim:   cfg.EmbeddingDim,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}

	store, err := docstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("document store init failed: %w", err)
	}

	vectors, err := vectorstore.NewStore(ctx, cfg, embedder)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("vector store init failed: %w", err)
	}

	graph := graphstore.NewStore(cfg)

	asm := assembler.New(vectors, graph, assembler.Config{
		Budget:      cfg.ContextBudget,
		VectorLimit: cfg.ContextVectorLimit,
		GraphFacts:  cfg.ContextGraphFacts,
		MinScore:    cfg.SimilarityThreshold,
	}, metrics)

	extractor := extraction.New(client, vectors, graph, extraction.Config{
		Enabled:         cfg.ExtractionEnabled,
		Timeout:         cfg.ExtractionTimeout,
		ConfidenceFloor: cfg.ExtractionConfidenceFloor,
	}, metrics)

	orch := conversation.New(store, asm, extractor, client, conversation.Config{
		DefaultLanguage: cfg.DefaultLanguage,
		MaxExchanges:    cfg.MaxConversationTurns,
	}, metrics)

	api := httpapi.New(cfg, orch, store, vectors, graph, asm, metrics)

	cleanup := func() error {
		var firstErr error
		if err := vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := graph.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orch,
		Extractor:    extractor,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}
