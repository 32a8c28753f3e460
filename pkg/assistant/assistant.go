// Package assistant ties retrieval to answer generation: it is the only
// place where vector search results meet the generation model.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memora-ai/memora/internal/models"
	"github.com/memora-ai/memora/internal/types"
)

// NoResultsMessage is returned when the index has nothing relevant; the
// generator is not called in that case.
const NoResultsMessage = "I couldn't find any relevant information in the knowledge base for your question."

const emptyResponseMessage = "I couldn't generate a response. Please try again."

// promptTemplate constrains the model to the retrieved context and asks for
// source citations. The two %s slots are the context blocks and the question.
const promptTemplate = `You are an institutional memory assistant that helps users find information from technical documentation.

Your task is to answer questions using ONLY the provided context chunks from the knowledge base.

Guidelines:
1. Base your answer ONLY on the provided context chunks
2. If the context doesn't contain enough information, say so clearly
3. Always cite which source documents/chunks you used
4. Provide step-by-step instructions when applicable
5. Do not hallucinate or make up information not present in the context
6. If multiple versions exist, clearly distinguish between them

Context chunks:
%s

User question: %s

Please provide a helpful answer with source citations.`

type Assistant struct {
	index  types.Searcher
	gen    types.Generator
	logger *slog.Logger
}

func New(index types.Searcher, gen types.Generator, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}

	return &Assistant{
		index:  index,
		gen:    gen,
		logger: logger,
	}
}

// Answer retrieves the chunks most similar to the question and grounds a
// generated answer in them. Failures never escape as errors: generation
// problems come back as a readable error string with an empty source list,
// and an empty index yields NoResultsMessage. Every interaction is logged.
func (a *Assistant) Answer(ctx context.Context, question string) (string, []models.SearchResult) {
	results := a.index.Search(ctx, question, 0)
	if len(results) == 0 {
		a.logQuery(question, nil, NoResultsMessage)
		return NoResultsMessage, nil
	}

	response, err := a.gen.Generate(ctx, BuildPrompt(question, results))
	if err != nil {
		msg := fmt.Sprintf("Error generating response: %v", err)
		a.logger.Error("failed to generate response", "error", err, "question", truncate(question, 200))
		a.logQuery(question, results, msg)
		return msg, nil
	}
	if response == "" {
		response = emptyResponseMessage
	}

	a.logQuery(question, results, response)
	return response, results
}

// BuildPrompt renders the instruction template with the retrieved chunks
// formatted as "Source: {source}" blocks joined by blank lines.
func BuildPrompt(question string, results []models.SearchResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Source: %s\n%s", r.Source, r.Content)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), question)
}

func (a *Assistant) logQuery(question string, results []models.SearchResult, response string) {
	previews := make([]slog.Attr, 0, len(results))
	for _, r := range results {
		previews = append(previews, slog.Group(fmt.Sprintf("chunk_%d", r.Rank),
			slog.String("source", r.Source),
			slog.String("content", truncate(r.Content, 200)),
			slog.Float64("similarity_score", r.Similarity),
		))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelInfo, "query",
		slog.String("question", question),
		slog.Any("retrieved_chunks", previews),
		slog.String("response", truncate(response, 500)),
	)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
