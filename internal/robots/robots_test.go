package robots_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docsmcp/internal/robots"
)

func TestEmptyRobotsAllowsAll(t *testing.T) {
	p := robots.Parse([]byte(""))
	assert.True(t, p.Allowed("/anything", "docs-mcp/0.1.0"))
	assert.True(t, p.Allowed("/", "some-other-bot"))
}

func TestDisallowAllUnderSpecificAgent(t *testing.T) {
	body := "User-agent: docs-mcp/0.1.0 (Documentation Indexer)\nDisallow: /\n"
	p := robots.Parse([]byte(body))

	assert.False(t, p.Allowed("/anything", "docs-mcp/0.1.0 (Documentation Indexer)"))
	assert.False(t, p.Allowed("/anything", "DOCS-MCP/0.1.0 (Documentation Indexer)"))
	assert.True(t, p.Allowed("/anything", "some-other-bot"))
}

func TestAllowOverridesWildcardDisallow(t *testing.T) {
	body := `
User-agent: *
Disallow: /private

User-agent: good-bot
Allow: /private/ok
Disallow: /private
`
	p := robots.Parse([]byte(body))
	assert.False(t, p.Allowed("/private/secret", "random-agent"))
	assert.True(t, p.Allowed("/private/ok", "good-bot"))
	assert.False(t, p.Allowed("/private/other", "good-bot"))
}

func TestTrailingWildcardIsPrefixOnly(t *testing.T) {
	body := "User-agent: *\nDisallow: /api/*\n"
	p := robots.Parse([]byte(body))
	assert.False(t, p.Allowed("/api/v1/users", "anybot"))
	assert.True(t, p.Allowed("/apiextra", "anybot"))
}

func TestCrawlDelayAndSitemapIgnored(t *testing.T) {
	body := "User-agent: *\nCrawl-delay: 5\nSitemap: https://ex.test/sitemap.xml\nDisallow: /x\n"
	p := robots.Parse([]byte(body))
	assert.False(t, p.Allowed("/x", "anybot"))
	assert.True(t, p.Allowed("/y", "anybot"))
}

func TestTrailingCommentsStripped(t *testing.T) {
	body := "User-agent: * # all bots\nDisallow: /secret # keep out\n"
	p := robots.Parse([]byte(body))
	assert.False(t, p.Allowed("/secret", "anybot"))
}
