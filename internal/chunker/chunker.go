// Package chunker implements the semantic chunker (C6): splitting extracted
// sections into embedding-sized units with code-block preservation and
// overlap, per §4.6.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"docsmcp/internal/extractor"
)

// Config bounds chunk sizes. All sizes are in estimated tokens, not bytes.
type Config struct {
	Target                    int
	Max                       int
	Min                       int
	Overlap                   int
	PreserveCodeBlocks        bool
	SentenceBoundarySplitting bool
}

// Validate enforces the ordering and range invariants required of a Config.
func (c Config) Validate() error {
	if !(c.Min < c.Target && c.Target < c.Max) {
		return fmt.Errorf("chunker config requires min < target < max, got min=%d target=%d max=%d", c.Min, c.Target, c.Max)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunker config overlap must be >= 0, got %d", c.Overlap)
	}
	return nil
}

// Chunk is one in-memory semantic unit ready for embedding.
type Chunk struct {
	Content      string
	HeadingPath  string
	ChunkIndex   int
	TokenCount   int
	HasCodeBlock bool
}

var sentenceBoundaryRe = regexp.MustCompile(`(?:[.!?])\s+`)

// Estimate approximates token count without a real tokenizer: round(words/0.75 + punct*0.1).
func Estimate(text string) int {
	words := len(strings.Fields(text))
	punct := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	return int(float64(words)/0.75 + float64(punct)*0.1 + 0.5)
}

// ChunkContent splits content's sections into a contiguous, 0-indexed chunk sequence.
func ChunkContent(content *extractor.Content, cfg Config) []Chunk {
	var all []Chunk
	for _, section := range content.Sections {
		all = append(all, chunkSection(section, cfg)...)
	}

	all = mergeSmallNeighbors(all, cfg)
	all = addOverlap(all, cfg)

	for i := range all {
		all[i].ChunkIndex = i
	}
	return all
}

func chunkSection(section extractor.Section, cfg Config) []Chunk {
	if Estimate(section.Content) <= cfg.Target {
		return []Chunk{newChunk(section.Content, section.HeadingPath)}
	}

	if section.HasCodeBlock && cfg.PreserveCodeBlocks {
		return chunkWithCodePreservation(section, cfg)
	}
	return chunkSemantic(section, cfg)
}

func newChunk(content, headingPath string) Chunk {
	return Chunk{
		Content:      content,
		HeadingPath:  headingPath,
		TokenCount:   Estimate(content),
		HasCodeBlock: strings.Contains(content, "```"),
	}
}

// chunkWithCodePreservation scans line by line, toggling an "in code" flag on
// triple-backtick lines, and flushes the buffer whenever adding the next line
// would exceed max — never splitting inside a fenced block.
func chunkWithCodePreservation(section extractor.Section, cfg Config) []Chunk {
	lines := strings.Split(section.Content, "\n")
	var chunks []Chunk
	var buf []string
	inCode := false

	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, newChunk(strings.Join(buf, "\n"), section.HeadingPath))
		buf = nil
	}

	for _, line := range lines {
		isFence := strings.HasPrefix(strings.TrimSpace(line), "```")

		candidate := append(append([]string{}, buf...), line)
		if !inCode && Estimate(strings.Join(candidate, "\n")) > cfg.Max && len(buf) > 0 {
			flush()
		}
		buf = append(buf, line)
		if isFence {
			inCode = !inCode
		}
	}
	flush()
	if len(chunks) == 0 {
		return []Chunk{newChunk(section.Content, section.HeadingPath)}
	}
	return chunks
}

// chunkSemantic splits on blank-line paragraph boundaries, further splitting
// any over-long paragraph by sentence or word boundary, then greedily packs
// paragraphs into chunks up to target.
func chunkSemantic(section extractor.Section, cfg Config) []Chunk {
	paragraphs := splitParagraphs(section.Content)

	var pieces []string
	for _, p := range paragraphs {
		if Estimate(p) > cfg.Max {
			pieces = append(pieces, splitOverlong(p, cfg)...)
		} else {
			pieces = append(pieces, p)
		}
	}

	var chunks []Chunk
	var buf []string
	bufSize := 0
	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, newChunk(strings.Join(buf, "\n\n"), section.HeadingPath))
		buf = nil
		bufSize = 0
	}
	for _, piece := range pieces {
		size := Estimate(piece)
		if bufSize > 0 && bufSize+size > cfg.Target {
			flush()
		}
		buf = append(buf, piece)
		bufSize += size
	}
	flush()
	if len(chunks) == 0 {
		return []Chunk{newChunk(section.Content, section.HeadingPath)}
	}
	return chunks
}

func splitParagraphs(text string) []string {
	raw := regexp.MustCompile(`\n\s*\n`).Split(text, -1)
	var out []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

func splitOverlong(paragraph string, cfg Config) []string {
	var units []string
	if cfg.SentenceBoundarySplitting {
		units = splitSentences(paragraph)
	} else {
		units = strings.Fields(paragraph)
	}

	var pieces []string
	var buf []string
	bufSize := 0
	sep := " "
	flush := func() {
		if len(buf) == 0 {
			return
		}
		pieces = append(pieces, strings.Join(buf, sep))
		buf = nil
		bufSize = 0
	}
	for _, u := range units {
		size := Estimate(u)
		if bufSize > 0 && bufSize+size > cfg.Max {
			flush()
		}
		buf = append(buf, u)
		bufSize += size
	}
	flush()
	if len(pieces) == 0 {
		return []string{paragraph}
	}
	return pieces
}

func splitSentences(text string) []string {
	idxs := sentenceBoundaryRe.FindAllStringIndex(text, -1)
	if len(idxs) == 0 {
		return []string{text}
	}
	var out []string
	start := 0
	for _, m := range idxs {
		out = append(out, text[start:m[1]])
		start = m[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// mergeSmallNeighbors joins a chunk under min into its immediate neighbor
// when they share a heading_path and the merge stays within max.
func mergeSmallNeighbors(chunks []Chunk, cfg Config) []Chunk {
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(chunks)-1; i++ {
			a, b := chunks[i], chunks[i+1]
			if a.HeadingPath != b.HeadingPath {
				continue
			}
			combined := Estimate(a.Content + "\n\n" + b.Content)
			if (a.TokenCount < cfg.Min || b.TokenCount < cfg.Min) && combined <= cfg.Max {
				merged := newChunk(a.Content+"\n\n"+b.Content, a.HeadingPath)
				chunks = append(chunks[:i], append([]Chunk{merged}, chunks[i+2:]...)...)
				changed = true
				break
			}
		}
	}
	return chunks
}

// addOverlap prepends the trailing ~overlap*0.75 words of each chunk to its
// same-heading_path successor, so retrieval around a chunk boundary still has
// context.
func addOverlap(chunks []Chunk, cfg Config) []Chunk {
	if cfg.Overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	targetWords := int(float64(cfg.Overlap) * 0.75)
	if targetWords <= 0 {
		return chunks
	}

	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	for i := 0; i < len(out)-1; i++ {
		if out[i].HeadingPath != out[i+1].HeadingPath {
			continue
		}
		words := strings.Fields(out[i].Content)
		if len(words) == 0 {
			continue
		}
		start := len(words) - targetWords
		if start < 0 {
			start = 0
		}
		tail := strings.Join(words[start:], " ")
		out[i+1].Content = tail + "\n\n" + out[i+1].Content
		out[i+1].TokenCount = Estimate(out[i+1].Content)
		out[i+1].HasCodeBlock = strings.Contains(out[i+1].Content, "```")
	}
	return out
}
