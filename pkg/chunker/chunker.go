package chunker

import (
	"strings"

	"github.com/memora-ai/memora/internal/models"
)

// sentence terminators considered when snapping a chunk boundary.
const terminators = ".!?"

type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Chunker splits normalized document text into overlapping, bounded-size
// chunks with sentence-boundary snapping.
type Chunker struct {
	config Config
}

func NewWithConfig(config Config) Chunker {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}

	return Chunker{
		config: config,
	}
}

// ChunkText splits text into overlapping chunks. The text is first
// normalized: runs of whitespace collapse to a single space, then the result
// is trimmed. All window math runs in runes, never bytes, so a boundary can
// never split a multi-byte character; recorded offsets are rune offsets into
// the normalized text.
//
// Text that fits within ChunkSize becomes exactly one chunk. Otherwise a
// window of ChunkSize runes slides across the text; each window that does
// not reach the text end tries to stop just after the nearest sentence
// terminator within min(100, ChunkSize/4) runes back from the naive
// boundary. The next window starts ChunkOverlap runes before the previous
// end. Slices that trim to nothing are dropped without consuming a chunk id,
// so ids stay contiguous from 0.
func (c *Chunker) ChunkText(text, source, title string) []models.Chunk {
	runes := []rune(normalize(text))
	if len(runes) == 0 {
		return nil
	}

	if len(runes) <= c.config.ChunkSize {
		return []models.Chunk{{
			Content:   string(runes),
			Source:    source,
			Title:     title,
			ChunkID:   0,
			StartChar: 0,
			EndChar:   len(runes),
		}}
	}

	var chunks []models.Chunk
	lookback := min(100, c.config.ChunkSize/4)
	start := 0
	chunkID := 0

	for start < len(runes) {
		end := start + c.config.ChunkSize

		// Snap back to a sentence boundary unless this window reaches the end.
		if end < len(runes) {
			for i := 0; i < lookback; i++ {
				if end-i > start && strings.ContainsRune(terminators, runes[end-i]) {
					end = end - i + 1
					break
				}
			}
		}

		sliceEnd := min(end, len(runes))
		content := strings.TrimSpace(string(runes[start:sliceEnd]))
		if content != "" {
			chunks = append(chunks, models.Chunk{
				Content:   content,
				Source:    source,
				Title:     title,
				ChunkID:   chunkID,
				StartChar: start,
				EndChar:   sliceEnd,
			})
			chunkID++
		}

		next := end - c.config.ChunkOverlap
		if next <= start {
			// Only reachable with a degenerate size/overlap combination.
			break
		}
		start = next
	}

	return chunks
}

// ChunkDocuments chunks each document in order and concatenates the results.
// Missing titles default to "Unknown" rather than failing the batch.
func (c *Chunker) ChunkDocuments(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk

	for _, doc := range docs {
		title := doc.Title
		if title == "" {
			title = "Unknown"
		}
		chunks = append(chunks, c.ChunkText(doc.Content, doc.Source, title)...)
	}

	return chunks
}

func normalize(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}
