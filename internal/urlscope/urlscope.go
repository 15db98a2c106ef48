// Package urlscope implements the directory-prefix URL scope predicate (C3)
// that decides whether a discovered URL belongs to a site's crawl.
package urlscope

import (
	"net/url"
	"strings"
)

// InScope reports whether u lies under base's directory prefix, per §4.3:
// same scheme, same host, and u's path has base's directory prefix as a
// prefix.
func InScope(u, base *url.URL) bool {
	if u == nil || base == nil {
		return false
	}
	if u.Scheme != base.Scheme || u.Host != base.Host {
		return false
	}
	return strings.HasPrefix(u.Path, DirectoryPrefix(base.Path))
}

// DirectoryPrefix computes the "directory prefix" of a path per §4.3:
//   - p itself, if it already ends in "/"
//   - otherwise, if the last segment looks like a filename (contains "."),
//     the substring up to and including the last "/"
//   - otherwise, p + "/"
func DirectoryPrefix(p string) string {
	if p == "" {
		return "/"
	}
	if strings.HasSuffix(p, "/") {
		return p
	}
	lastSlash := strings.LastIndex(p, "/")
	lastSegment := p[lastSlash+1:]
	if strings.Contains(lastSegment, ".") {
		return p[:lastSlash+1]
	}
	return p + "/"
}
