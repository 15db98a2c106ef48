// Package robots implements the robots-exclusion policy (C2): fetching,
// parsing, and per-(agent, url) allow/deny decisions per §4.2.
package robots

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"docsmcp/internal/errs"
)

// Fetcher is the subset of httpfetch.Fetcher robots needs.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// group is the parsed rule set for one or more User-agent names.
type group struct {
	agents   []string
	allow    []string
	disallow []string
}

// Policy is the parsed result of one robots.txt document.
type Policy struct {
	groups      []group
	wildcardIdx int            // index into groups, or -1 if no "*" group
	specificIdx map[string]int // lowercased agent name -> index into groups
}

// Allowed decides whether url may be fetched by agent, per §4.2's
// precedence: specific-agent Allow, then specific-agent Disallow, then
// wildcard Allow, then wildcard Disallow; otherwise allowed.
func (p *Policy) Allowed(path string, agent string) bool {
	if p == nil {
		return true
	}
	agentLower := strings.ToLower(agent)

	if idx, ok := p.specificIdx[agentLower]; ok {
		g := p.groups[idx]
		if matchesAny(g.allow, path) {
			return true
		}
		if matchesAny(g.disallow, path) {
			return false
		}
	}
	if p.wildcardIdx >= 0 {
		g := p.groups[p.wildcardIdx]
		if matchesAny(g.allow, path) {
			return true
		}
		if matchesAny(g.disallow, path) {
			return false
		}
	}
	return true
}

func matchesAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if matches(pat, path) {
			return true
		}
	}
	return false
}

// matches implements §4.2's literal-prefix matching: a trailing "*" means
// "prefix only"; "/" or "" matches everything.
func matches(pattern, path string) bool {
	if pattern == "" || pattern == "/" {
		return true
	}
	p := strings.TrimSuffix(pattern, "*")
	return strings.HasPrefix(path, p)
}

// Cache fetches and caches Policy values per base URL.
type Cache struct {
	fetcher Fetcher
	cache   *lru.Cache[string, *Policy]
	mu      sync.Mutex
}

// NewCache builds a robots Cache bounded to size entries.
func NewCache(fetcher Fetcher, size int) (*Cache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, *Policy](size)
	if err != nil {
		return nil, fmt.Errorf("create robots cache: %w", err)
	}
	return &Cache{fetcher: fetcher, cache: c}, nil
}

// Fetch returns the Policy for base, fetching and parsing /robots.txt once
// per base URL. A 404 or network failure is treated as allow-all per §4.2.
func (c *Cache) Fetch(ctx context.Context, base *url.URL) (*Policy, error) {
	key := base.Scheme + "://" + base.Host

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}

	robotsURL := key + "/robots.txt"
	body, err := c.fetcher.Get(ctx, robotsURL)
	var policy *Policy
	if err != nil {
		// 404 or network failure: allow all.
		policy = &Policy{wildcardIdx: -1}
	} else {
		policy = Parse(body)
	}
	c.cache.Add(key, policy)
	return policy, nil
}

// Parse parses a robots.txt document per §4.2's rules: groups are keyed by
// the most recently declared User-agent line(s); Crawl-delay and Sitemap
// are ignored; trailing "#" comments are stripped.
func Parse(body []byte) *Policy {
	policy := &Policy{specificIdx: map[string]int{}, wildcardIdx: -1}

	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	var current *group
	var pendingAgents []string
	inAgentBlock := true // a fresh User-agent line can start a new block

	flushPending := func() {
		if len(pendingAgents) == 0 {
			return
		}
		g := group{agents: pendingAgents}
		policy.groups = append(policy.groups, g)
		idx := len(policy.groups) - 1
		for _, a := range pendingAgents {
			lower := strings.ToLower(a)
			if lower == "*" {
				policy.wildcardIdx = idx
			} else {
				policy.specificIdx[lower] = idx
			}
		}
		current = &policy.groups[idx]
		pendingAgents = nil
	}

	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, val, ok := splitDirective(line)
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "user-agent":
			if !inAgentBlock {
				// A new agent line after directives starts a fresh group.
				flushPending()
				inAgentBlock = true
			}
			pendingAgents = append(pendingAgents, val)
		case "allow":
			flushPending()
			inAgentBlock = false
			if current != nil && val != "" {
				current.allow = append(current.allow, val)
			}
		case "disallow":
			flushPending()
			inAgentBlock = false
			if current != nil {
				current.disallow = append(current.disallow, val)
			}
		default:
			// Crawl-delay, Sitemap, and anything else is ignored per §4.2.
		}
	}
	flushPending()

	return policy
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func splitDirective(line string) (key, val string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// ErrUnreachable is returned by a Fetcher implementation to signal the
// robots.txt document could not be retrieved (treated as allow-all).
var ErrUnreachable = errs.New(errs.KindTransport, "robots.txt unreachable")
