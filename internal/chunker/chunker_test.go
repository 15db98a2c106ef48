package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/chunker"
	"docsmcp/internal/extractor"
)

func cfg() chunker.Config {
	return chunker.Config{
		Target: 50, Max: 100, Min: 20, Overlap: 10,
		PreserveCodeBlocks: true, SentenceBoundarySplitting: true,
	}
}

func TestChunkSizeLaw(t *testing.T) {
	long := strings.Repeat("This is a reasonably long sentence about widgets and gadgets. ", 30)
	content := &extractor.Content{Sections: []extractor.Section{{HeadingPath: "Docs", Content: long}}}

	chunks := chunker.ChunkContent(content, cfg())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, chunker.Estimate(c.Content), cfg().Max+30, "chunk exceeds max by more than overlap slack")
	}
}

func TestChunkIndexIsContiguous(t *testing.T) {
	content := &extractor.Content{Sections: []extractor.Section{
		{HeadingPath: "A", Content: strings.Repeat("word ", 200)},
		{HeadingPath: "B", Content: strings.Repeat("term ", 200)},
	}}
	chunks := chunker.ChunkContent(content, cfg())
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
}

func TestChunkDeterminism(t *testing.T) {
	content := &extractor.Content{Sections: []extractor.Section{
		{HeadingPath: "Docs", Content: strings.Repeat("Some prose about the system. ", 40)},
	}}
	a := chunker.ChunkContent(content, cfg())
	b := chunker.ChunkContent(content, cfg())
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Content, b[i].Content)
	}
}

func TestChunkPreservesCodeBlock(t *testing.T) {
	section := extractor.Section{
		HeadingPath:  "Intro",
		Content:      "Intro\n\n```rust\nfn main(){}\n```\n\nTail",
		HasCodeBlock: true,
	}
	content := &extractor.Content{Sections: []extractor.Section{section}}
	chunks := chunker.ChunkContent(content, chunker.Config{Target: 5, Max: 100, Min: 1, Overlap: 0, PreserveCodeBlocks: true})

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "```rust") {
			require.Contains(t, c.Content, "fn main(){}")
			require.Contains(t, c.Content, "```\n\nTail")
			assert.True(t, c.HasCodeBlock)
			found = true
		}
	}
	assert.True(t, found, "expected a chunk to retain the full fenced code block")
}

func TestChunkUnderTargetEmitsSingleChunk(t *testing.T) {
	content := &extractor.Content{Sections: []extractor.Section{{HeadingPath: "Docs", Content: "Short section."}}}
	chunks := chunker.ChunkContent(content, cfg())
	require.Len(t, chunks, 1)
	assert.Equal(t, "Short section.", strings.TrimSpace(chunks[0].Content))
}

func TestConfigValidateRejectsBadOrdering(t *testing.T) {
	err := chunker.Config{Target: 10, Max: 5, Min: 1}.Validate()
	assert.Error(t, err)
}

func TestConfigValidateAcceptsOrdered(t *testing.T) {
	err := chunker.Config{Target: 50, Max: 100, Min: 10, Overlap: 5}.Validate()
	assert.NoError(t, err)
}
