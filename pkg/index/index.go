package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/memora-ai/memora/internal/models"
	"github.com/memora-ai/memora/internal/types"
)

type Config struct {
	TopK int // default number of search results
}

// Index stores chunk embeddings in Postgres (pgvector) and serves
// cosine-similarity search over them.
//
// The chunks table is created by the db package migrations; Index only reads
// and writes it. Re-adding identical content creates duplicate records on
// purpose: ingestion is always clear-then-rebuild, never an incremental diff.
type Index struct {
	config   Config
	pool     *pgxpool.Pool
	embedder types.Embedder
	logger   *slog.Logger
}

func New(pool *pgxpool.Pool, embedder types.Embedder, config Config, logger *slog.Logger) *Index {
	if config.TopK == 0 {
		config.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Index{
		config:   config,
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds every chunk and appends the records in a single transaction.
// The batch embedding call preserves input order, keeping metadata aligned
// with embeddings; each record gets a fresh UUID. An embedding failure
// aborts before anything is written.
func (ix *Index) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	tx, err := ix.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const stmt = `
		INSERT INTO chunks (id, content, source, title, chunk_id, start_char, end_char, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for i, chunk := range chunks {
		_, err = tx.Exec(ctx, stmt,
			uuid.New(),
			chunk.Content,
			chunk.Source,
			chunk.Title,
			chunk.ChunkID,
			chunk.StartChar,
			chunk.EndChar,
			pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	ix.logger.Debug("added chunks", "count", len(chunks))
	return nil
}

// Search returns up to topK chunks ranked by cosine similarity to the query.
// A topK of zero means the configured default. Failures are logged and
// surface as an empty result, never an error; callers that need to tell
// "no results" from "search failed" use SearchErr.
func (ix *Index) Search(ctx context.Context, query string, topK int) []models.SearchResult {
	results, err := ix.SearchErr(ctx, query, topK)
	if err != nil {
		ix.logger.Error("search failed", "error", err)
		return nil
	}
	return results
}

// SearchErr is Search with the failure reason preserved.
func (ix *Index) SearchErr(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = ix.config.TopK
	}

	embedding, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// <=> is pgvector cosine distance, in [0, 2]. Similarity 1-distance
	// therefore lies in [-1, 1].
	const q = `
		SELECT content, source, title, chunk_id, embedding <=> $1 AS distance
		FROM chunks
		ORDER BY distance
		LIMIT $2`

	rows, err := ix.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		var distance float64
		if err := rows.Scan(&r.Content, &r.Source, &r.Title, &r.ChunkID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Similarity = 1 - distance
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return results, nil
}

// Count returns the number of stored chunk records.
func (ix *Index) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := ix.pool.QueryRow(ctx, "SELECT count(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Clear removes every record. TRUNCATE is transactional, so an interrupted
// clear leaves the table either full or empty, never in between.
func (ix *Index) Clear(ctx context.Context) error {
	if _, err := ix.pool.Exec(ctx, "TRUNCATE chunks"); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	ix.logger.Info("cleared vector index")
	return nil
}
