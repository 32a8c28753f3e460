package types

import (
	"context"

	"github.com/memora-ai/memora/internal/models"
)

// Source fetches every document from one backend (local directory, GitHub
// repository, Wiki.js instance). Implementations are interchangeable; the
// pipeline depends only on the Document shape.
type Source interface {
	Name() string
	FetchAllDocuments(ctx context.Context) ([]models.Document, error)
}

// Embedder turns text into vectors. EmbedBatch must preserve input order so
// metadata stays aligned with embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher is the retrieval side of the vector index. A topK of zero means
// the configured default. Failures surface as an empty result, never an
// error; they are logged by the implementation.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) []models.SearchResult
}
