package fetch

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped during normalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
}

// NormalizeURL produces the canonical form used as cache key,
// coalescing key, and circuit-breaker key: tracking params dropped,
// remaining query re-encoded in sorted order, scheme and authority
// lowercased. Idempotent and invariant to the original query-key order.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for k := range q {
		if trackingParams[k] {
			q.Del(k)
		}
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			values.Add(k, v)
		}
	}
	u.RawQuery = values.Encode()

	return u.String(), nil
}

// HostKey returns the scheme://host portion of a normalized URL, used
// to key the per-host circuit breaker and the robots.txt cache.
func HostKey(normalized string) (string, error) {
	u, err := url.Parse(normalized)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
