// Package linkextract implements the link extractor (C4): it parses HTML,
// resolves every <a href> against the page URL, and keeps those in scope.
package linkextract

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"docsmcp/internal/urlscope"
)

// Extract returns the stable-sorted, deduplicated, in-scope absolute URLs
// found in html, resolved against pageURL and scoped to base, per §4.4.
func Extract(html []byte, pageURL, base *url.URL) ([]*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*url.URL)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(strings.ToLower(href), "mailto:") ||
			strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := pageURL.ResolveReference(ref)
		resolved.Fragment = ""

		if !urlscope.InScope(resolved, base) {
			return
		}
		seen[resolved.String()] = resolved
	})

	result := make([]*url.URL, 0, len(seen))
	for _, u := range seen {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String() < result[j].String() })
	return result, nil
}
