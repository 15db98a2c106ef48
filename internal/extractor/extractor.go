// Package extractor implements the content extractor (C5): it converts
// HTML into a title plus hierarchical sections tagged with heading paths,
// per §4.5.
package extractor

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Section is one content-bearing element's cleaned text, tagged with the
// heading path open above it in document order.
type Section struct {
	HeadingPath  string
	Content      string
	HeadingLevel int // 0 if no heading is open above this section
	HasCodeBlock bool
}

// Content is the extractor's output: a title, the ordered sections, and a
// raw-text fallback used by the chunker when no sections are available.
type Content struct {
	Title    string
	Sections []Section
	RawText  string
}

// Config controls extraction behavior.
type Config struct {
	PreserveCodeBlocks bool
	IncludeNavigation  bool
	IncludeFooter      bool
	MaxHeadingLevel    int // default 6
}

var (
	rootSelectors = []string{
		"main", `[role="main"]`, ".content", ".main-content", "#content",
		"#main", ".documentation", ".docs", "article", ".article-content",
	}
	titleSelectors = []string{"title", "h1", ".page-title", ".doc-title", "header h1"}

	whitespaceRe  = regexp.MustCompile(`\s+`)
	headingTagRe  = regexp.MustCompile(`^h([1-6])$`)
	codeClassRe   = regexp.MustCompile(`(?:^|\s)(highlight|code-block|language-\S+)`)
	contentTags   = map[string]bool{"p": true, "div": true, "section": true, "article": true, "blockquote": true, "li": true, "dd": true, "dt": true, "pre": true}
	skippedTags   = map[string]bool{"script": true, "style": true, "noscript": true}
	codeBearTags  = map[string]bool{"pre": true, "code": true}
)

// Extract parses html per §4.5's algorithm.
func Extract(html []byte, cfg Config) (*Content, error) {
	if cfg.MaxHeadingLevel <= 0 {
		cfg.MaxHeadingLevel = 6
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return &Content{Title: "Untitled"}, nil
	}

	content := &Content{Title: extractTitle(doc)}

	root := selectRoot(doc)

	w := &walker{cfg: cfg}
	w.walk(root)
	content.Sections = w.sections
	content.RawText = strings.TrimSpace(w.rawText.String())

	if len(content.Sections) == 0 && content.RawText != "" {
		content.Sections = []Section{{HeadingPath: content.Title, Content: content.RawText}}
	}
	return content, nil
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range titleSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return "Untitled"
}

func selectRoot(doc *goquery.Document) *goquery.Selection {
	for _, sel := range rootSelectors {
		s := doc.Find(sel).First()
		if s.Length() > 0 {
			return s
		}
	}
	return doc.Selection
}

// headingEntry is one frame of the heading stack.
type headingEntry struct {
	level int
	text  string
}

type walker struct {
	cfg     Config
	stack   []headingEntry
	sections []Section
	rawText  strings.Builder
}

func (w *walker) headingPath() string {
	if len(w.stack) == 0 {
		return "Content"
	}
	parts := make([]string, len(w.stack))
	for i, h := range w.stack {
		parts[i] = h.text
	}
	return strings.Join(parts, " > ")
}

func (w *walker) currentLevel() int {
	if len(w.stack) == 0 {
		return 0
	}
	return w.stack[len(w.stack)-1].level
}

// walk traverses root's subtree in document order, maintaining the heading
// stack and emitting Sections for content-bearing elements.
func (w *walker) walk(root *goquery.Selection) {
	root.Contents().Each(func(_ int, child *goquery.Selection) {
		w.visit(child)
	})
}

func (w *walker) visit(node *goquery.Selection) {
	if goquery.NodeName(node) == "#text" {
		text := cleanText(node.Text())
		if text != "" {
			w.rawText.WriteString(text)
			w.rawText.WriteString(" ")
		}
		return
	}

	tag := strings.ToLower(goquery.NodeName(node))
	if skippedTags[tag] {
		return
	}
	if tag == "nav" && !w.cfg.IncludeNavigation {
		return
	}
	if tag == "footer" && !w.cfg.IncludeFooter {
		return
	}

	if m := headingTagRe.FindStringSubmatch(tag); m != nil {
		level := int(m[1][0] - '0')
		if level <= w.cfg.MaxHeadingLevel {
			for len(w.stack) > 0 && w.stack[len(w.stack)-1].level >= level {
				w.stack = w.stack[:len(w.stack)-1]
			}
			w.stack = append(w.stack, headingEntry{level: level, text: cleanText(node.Text())})
			return
		}
	}

	if contentTags[tag] {
		emitted := w.emitSection(node, tag)
		if emitted {
			return
		}
	}

	node.Contents().Each(func(_ int, child *goquery.Selection) {
		w.visit(child)
	})
}

// emitSection attempts to emit a Section for a content-bearing element. It
// returns true if it fully handled the subtree (so the caller should not
// recurse further).
func (w *walker) emitSection(node *goquery.Selection, tag string) bool {
	hasCode := hasCodeBlock(node)

	if hasCode && !codeBearTags[tag] {
		// The code block is a descendant, not this node itself: recurse
		// instead of flattening it into one cleaned, unfenced blob so the
		// nested <pre>/<code> gets its own fenced Section.
		return false
	}

	var text string
	if w.cfg.PreserveCodeBlocks && codeBearTags[tag] {
		text = fenceCodeBlock(node.Text())
	} else {
		text = cleanText(node.Text())
	}

	if text == "" {
		return false
	}

	w.sections = append(w.sections, Section{
		HeadingPath:  w.headingPath(),
		Content:      text,
		HeadingLevel: w.currentLevel(),
		HasCodeBlock: hasCode,
	})
	w.rawText.WriteString(text)
	w.rawText.WriteString(" ")
	return true
}

func hasCodeBlock(node *goquery.Selection) bool {
	found := false
	node.Find("pre, code, .highlight, .code-block").Each(func(_ int, _ *goquery.Selection) { found = true })
	if found {
		return true
	}
	node.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		if class, ok := s.Attr("class"); ok && codeClassRe.MatchString(" "+class) {
			found = true
		}
	})
	if !found {
		if goquery.NodeName(node) == "pre" || goquery.NodeName(node) == "code" {
			found = true
		}
	}
	return found
}

func fenceCodeBlock(raw string) string {
	return "```\n" + strings.TrimRight(raw, "\n") + "\n```"
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	var kept []string
	for _, line := range lines {
		line = whitespaceRe.ReplaceAllString(strings.TrimSpace(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}
