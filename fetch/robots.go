package fetch

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// robotsRule is one User-agent block's disallow/allow prefixes. Only the
// "*" agent group is consulted — webdog does not identify itself under
// a distinct product token.
type robotsRule struct {
	disallow []string
	allow    []string
}

// robotsCache parses and caches robots.txt per authority (scheme://host),
// matching the per-domain caching original_source's RobotFileParser
// usage performs implicitly via its own dict cache.
type robotsCache struct {
	mu     sync.Mutex
	client *http.Client
	rules  map[string]robotsRule
}

func newRobotsCache(client *http.Client) *robotsCache {
	return &robotsCache{client: client, rules: make(map[string]robotsRule)}
}

// Allowed reports whether path may be fetched under authority's
// robots.txt. A fetch failure, non-200 response, or parse error all
// fall back to allow-all — a missing or broken robots.txt must never
// stop the patrol.
func (c *robotsCache) Allowed(ctx context.Context, authority, path string) bool {
	c.mu.Lock()
	rule, ok := c.rules[authority]
	c.mu.Unlock()
	if !ok {
		rule = c.fetch(authority)
		c.mu.Lock()
		c.rules[authority] = rule
		c.mu.Unlock()
	}

	if len(rule.disallow) == 0 {
		return true
	}

	best := -1
	allowed := true
	for _, prefix := range rule.disallow {
		if strings.HasPrefix(path, prefix) && len(prefix) > best {
			best = len(prefix)
			allowed = false
		}
	}
	for _, prefix := range rule.allow {
		if strings.HasPrefix(path, prefix) && len(prefix) > best {
			best = len(prefix)
			allowed = true
		}
	}
	return allowed
}

func (c *robotsCache) fetch(authority string) robotsRule {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authority+"/robots.txt", nil)
	if err != nil {
		return robotsRule{}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return robotsRule{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return robotsRule{}
	}
	return parseRobots(resp.Body)
}

// parseRobots extracts the "*" user-agent group's Disallow/Allow
// prefixes. It does not attempt the full robots.txt grammar (wildcards,
// $-anchors, crawl-delay) — only the longest-prefix-match subset that
// governs the overwhelming majority of real robots.txt files.
func parseRobots(body io.Reader) robotsRule {
	var rule robotsRule
	inStarGroup := false
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])

		switch key {
		case "user-agent":
			inStarGroup = val == "*"
		case "disallow":
			if inStarGroup && val != "" {
				rule.disallow = append(rule.disallow, val)
			}
		case "allow":
			if inStarGroup && val != "" {
				rule.allow = append(rule.allow, val)
			}
		}
	}
	return rule
}
