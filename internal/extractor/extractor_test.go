package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/extractor"
)

const samplePage = `
<html>
<head><title>Widgets Guide</title></head>
<body>
<nav><a href="/">Home</a></nav>
<main>
<h1>Widgets</h1>
<p>Widgets are small reusable components.</p>
<h2>Installation</h2>
<p>Run the installer.</p>
<pre><code>go get widgets</code></pre>
<h2>Usage</h2>
<p>Import the package and call New().</p>
</main>
<footer>copyright</footer>
</body>
</html>
`

func TestExtractTitleAndSections(t *testing.T) {
	c, err := extractor.Extract([]byte(samplePage), extractor.Config{PreserveCodeBlocks: true})
	require.NoError(t, err)

	assert.Equal(t, "Widgets Guide", c.Title)
	require.NotEmpty(t, c.Sections)

	var sawInstall, sawCode bool
	for _, s := range c.Sections {
		if s.HeadingPath == "Widgets > Installation" {
			sawInstall = true
		}
		if s.HasCodeBlock {
			sawCode = true
		}
	}
	assert.True(t, sawInstall, "expected a section under Widgets > Installation")
	assert.True(t, sawCode, "expected at least one section flagged as containing code")
}

func TestExtractSkipsNavAndFooterByDefault(t *testing.T) {
	c, err := extractor.Extract([]byte(samplePage), extractor.Config{})
	require.NoError(t, err)
	for _, s := range c.Sections {
		assert.NotContains(t, s.Content, "Home")
		assert.NotContains(t, s.Content, "copyright")
	}
}

func TestExtractSectionsEmptyOnlyWhenRawTextEmpty(t *testing.T) {
	c, err := extractor.Extract([]byte("<html><body></body></html>"), extractor.Config{})
	require.NoError(t, err)
	if len(c.Sections) == 0 {
		assert.Empty(t, c.RawText)
	} else {
		assert.NotEmpty(t, c.RawText)
	}
}

func TestExtractFallsBackToRawText(t *testing.T) {
	c, err := extractor.Extract([]byte("<html><body><span>Just a flat page with no headings.</span></body></html>"), extractor.Config{})
	require.NoError(t, err)
	require.Len(t, c.Sections, 1)
	assert.Contains(t, c.Sections[0].Content, "flat page")
}

func TestExtractTitleFallsBackToUntitled(t *testing.T) {
	c, err := extractor.Extract([]byte("<html><body><p></p></body></html>"), extractor.Config{})
	require.NoError(t, err)
	assert.Equal(t, "Untitled", c.Title)
}

const nestedCodeWrapperPage = `
<html>
<head><title>Wrapped Example</title></head>
<body>
<main>
<article>
<p>Here is some intro prose before the snippet.</p>
<pre><code>fmt.Println("hi")</code></pre>
<p>And some outro prose after it.</p>
</article>
</main>
</body>
</html>
`

// A <pre> nested inside an <article> wrapper (not itself a codeBearTag) must
// still get its own fenced Section, separate from the surrounding prose.
func TestExtractFencesCodeNestedInsideWrapperTag(t *testing.T) {
	c, err := extractor.Extract([]byte(nestedCodeWrapperPage), extractor.Config{PreserveCodeBlocks: true})
	require.NoError(t, err)
	require.Len(t, c.Sections, 3)

	assert.Contains(t, c.Sections[0].Content, "intro prose")
	assert.False(t, c.Sections[0].HasCodeBlock)

	assert.Contains(t, c.Sections[1].Content, "```")
	assert.Contains(t, c.Sections[1].Content, `fmt.Println("hi")`)
	assert.True(t, c.Sections[1].HasCodeBlock)

	assert.Contains(t, c.Sections[2].Content, "outro prose")
	assert.False(t, c.Sections[2].HasCodeBlock)

	for _, s := range c.Sections {
		if s.HasCodeBlock {
			assert.Contains(t, s.Content, "```", "any section flagged HasCodeBlock must retain fence markers")
		}
	}
}
