package urlscope_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsmcp/internal/urlscope"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDirectoryPrefix(t *testing.T) {
	cases := map[string]string{
		"/docs/":       "/docs/",
		"/docs":        "/docs/",
		"/docs/a.html": "/docs/",
		"":             "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, urlscope.DirectoryPrefix(in), "input %q", in)
	}
}

func TestInScope(t *testing.T) {
	base := mustParse(t, "https://ex.test/docs/")

	assert.True(t, urlscope.InScope(mustParse(t, "https://ex.test/docs/a"), base))
	assert.True(t, urlscope.InScope(mustParse(t, "https://ex.test/docs/a/b"), base))
	assert.False(t, urlscope.InScope(mustParse(t, "https://ex.test/other"), base))
	assert.False(t, urlscope.InScope(mustParse(t, "https://external.test/docs/a"), base))
	assert.False(t, urlscope.InScope(mustParse(t, "http://ex.test/docs/a"), base))
}

// Property: in_scope(url, base) implies same host and scheme.
func TestInScopeImpliesHostAndScheme(t *testing.T) {
	base := mustParse(t, "https://ex.test/docs/")
	candidates := []string{
		"https://ex.test/docs/a",
		"https://ex.test/docs/a/b/c.html",
		"http://ex.test/docs/a",
		"https://other.test/docs/a",
		"https://ex.test/elsewhere",
	}
	for _, c := range candidates {
		u := mustParse(t, c)
		if urlscope.InScope(u, base) {
			assert.Equal(t, base.Host, u.Host)
			assert.Equal(t, base.Scheme, u.Scheme)
		}
	}
}
