package llm

import "context"

// Request is a normalized completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client generates text completions.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder turns text into a vector embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
