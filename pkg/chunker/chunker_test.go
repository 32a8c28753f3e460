package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-ai/memora/internal/models"
)

func TestChunkTextEmpty(t *testing.T) {
	c := NewWithConfig(Config{})

	assert.Nil(t, c.ChunkText("", "doc.md", "Doc"))
	assert.Nil(t, c.ChunkText("   \n\t  ", "doc.md", "Doc"))
}

func TestChunkTextShort(t *testing.T) {
	c := NewWithConfig(Config{})

	chunks := c.ChunkText("A short document.", "doc.md", "Doc")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short document.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].ChunkID)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, len("A short document."), chunks[0].EndChar)
	assert.Equal(t, "doc.md", chunks[0].Source)
	assert.Equal(t, "Doc", chunks[0].Title)
}

func TestChunkTextNormalizesWhitespace(t *testing.T) {
	c := NewWithConfig(Config{})

	chunks := c.ChunkText("  first   line\n\nsecond\tline  ", "doc.md", "Doc")
	require.Len(t, chunks, 1)
	assert.Equal(t, "first line second line", chunks[0].Content)
	assert.Equal(t, len("first line second line"), chunks[0].EndChar)
}

func TestChunkTextOverlappingWindows(t *testing.T) {
	c := NewWithConfig(Config{ChunkSize: 1000, ChunkOverlap: 200})

	// 50 sentences of exactly 100 characters each, period at positions
	// 99, 199, ... so every naive boundary lands right after a terminator.
	sentence := strings.Repeat("a", 99) + "."
	text := strings.Repeat(sentence, 50)
	require.Len(t, text, 5000)

	chunks := c.ChunkText(text, "doc.md", "Doc")
	require.Len(t, chunks, 7)

	wantStarts := []int{0, 800, 1600, 2400, 3200, 4000, 4800}
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkID)
		assert.Equal(t, wantStarts[i], chunk.StartChar)
	}

	// Consecutive windows share exactly the overlap region.
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndChar-200, chunks[i].StartChar)
	}

	// Offsets reference the normalized text.
	for _, chunk := range chunks {
		assert.Equal(t, strings.TrimSpace(text[chunk.StartChar:chunk.EndChar]), chunk.Content)
	}
	assert.Equal(t, 5000, chunks[len(chunks)-1].EndChar)
}

func TestChunkTextRoundTrip(t *testing.T) {
	c := NewWithConfig(Config{ChunkSize: 1000, ChunkOverlap: 200})

	sentence := strings.Repeat("b", 99) + "."
	text := strings.Repeat(sentence, 50)

	chunks := c.ChunkText(text, "doc.md", "Doc")
	require.NotEmpty(t, chunks)

	// Dropping each chunk's overlap with its predecessor reconstructs the
	// normalized text losslessly.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Content)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].EndChar - chunks[i].StartChar
		require.GreaterOrEqual(t, overlap, 0)
		require.LessOrEqual(t, overlap, 200)
		rebuilt.WriteString(chunks[i].Content[overlap:])
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunkTextSnapsToSentenceBoundary(t *testing.T) {
	c := NewWithConfig(Config{ChunkSize: 50, ChunkOverlap: 10})

	// One terminator at index 45, inside the lookback window of the first
	// naive boundary at 50.
	text := strings.Repeat("x", 45) + "." + strings.Repeat("x", 74)
	require.Len(t, text, 120)

	chunks := c.ChunkText(text, "doc.md", "Doc")
	require.NotEmpty(t, chunks)

	// The first window stops right after the period instead of at 50.
	assert.Equal(t, 46, chunks[0].EndChar)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "."))

	// The second window starts overlap characters before the snapped end.
	assert.Equal(t, 36, chunks[1].StartChar)
}

func TestChunkTextNoTerminatorNearBoundary(t *testing.T) {
	c := NewWithConfig(Config{ChunkSize: 50, ChunkOverlap: 10})

	text := strings.Repeat("x", 120)
	chunks := c.ChunkText(text, "doc.md", "Doc")
	require.NotEmpty(t, chunks)

	// Without a terminator in range the window keeps its full size.
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 50, chunks[0].EndChar)
	assert.Equal(t, 40, chunks[1].StartChar)
}

func TestChunkTextIDsContiguous(t *testing.T) {
	c := NewWithConfig(Config{ChunkSize: 80, ChunkOverlap: 20})

	text := strings.Repeat("word ", 200)
	chunks := c.ChunkText(text, "doc.md", "Doc")
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkID)
		assert.NotEmpty(t, chunk.Content)
		assert.LessOrEqual(t, chunk.StartChar, chunk.EndChar)
	}
}

func TestChunkTextMultibyteRunes(t *testing.T) {
	c := NewWithConfig(Config{ChunkSize: 100, ChunkOverlap: 20})

	// 250 runes of 3 bytes each; byte-indexed windows would split a rune.
	text := strings.Repeat("啊", 250)
	chunks := c.ChunkText(text, "doc.md", "Doc")
	require.Len(t, chunks, 4)

	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk.Content))
		// Offsets count runes, and the window size bounds runes, not bytes.
		assert.Equal(t, chunk.EndChar-chunk.StartChar, utf8.RuneCountInString(chunk.Content))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Content), 100)
	}

	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 100, chunks[0].EndChar)
	assert.Equal(t, 80, chunks[1].StartChar)
	assert.Equal(t, 250, chunks[len(chunks)-1].EndChar)

	// De-overlapped concatenation reconstructs the text.
	runes := []rune(text)
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0].Content)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].EndChar - chunks[i].StartChar
		rebuilt.WriteString(string([]rune(chunks[i].Content)[overlap:]))
	}
	assert.Equal(t, string(runes), rebuilt.String())
}

func TestChunkTextMultibyteAtBoundary(t *testing.T) {
	c := NewWithConfig(Config{ChunkSize: 50, ChunkOverlap: 10})

	// An em dash sits exactly where the first naive boundary falls.
	text := strings.Repeat("x", 49) + "—" + strings.Repeat("x", 70)
	chunks := c.ChunkText(text, "doc.md", "Doc")
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk.Content))
	}
	assert.Equal(t, 50, chunks[0].EndChar)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "—"))
}

func TestChunkDocuments(t *testing.T) {
	c := NewWithConfig(Config{})

	docs := []models.Document{
		{Content: "First document body.", Source: "a.md", Title: "Alpha"},
		{Content: "Second document body.", Source: "b.md", Title: ""},
	}

	chunks := c.ChunkDocuments(docs)
	require.Len(t, chunks, 2)

	assert.Equal(t, "Alpha", chunks[0].Title)
	assert.Equal(t, "a.md", chunks[0].Source)

	// Missing titles fall back to a placeholder.
	assert.Equal(t, "Unknown", chunks[1].Title)

	// Chunk ids restart per document.
	assert.Equal(t, 0, chunks[0].ChunkID)
	assert.Equal(t, 0, chunks[1].ChunkID)
}

func TestChunkDocumentsEmpty(t *testing.T) {
	c := NewWithConfig(Config{})

	assert.Empty(t, c.ChunkDocuments(nil))
	assert.Empty(t, c.ChunkDocuments([]models.Document{{Content: "   "}}))
}
