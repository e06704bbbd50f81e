// Package fetch implements webdog's single gateway for outbound HTTP:
// URL normalization, response caching, in-flight request coalescing,
// per-host circuit breaking, robots.txt compliance, and request jitter.
// Grounded on domwatch/internal/fetcher.Fetcher's shape (options,
// context-carrying Fetch method, slog logging) generalized with the
// coalescing/cache/circuit/robots/jitter pipeline from
// original_source/webdog_bot/request_manager.py.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hazyhaar/webdog/breaker"
	"github.com/hazyhaar/webdog/governor"
)

const (
	cacheTTL    = 30 * time.Second
	hardTimeout = 15 * time.Second
	minJitter   = 1 * time.Second
	maxJitter   = 5 * time.Second
	maxBodySize = 10 << 20
)

// Result is the outcome of a fetch, successful or not.
type Result struct {
	URL        string
	Content    string
	StatusCode int
	Err        string
	Timestamp  time.Time
}

// Success reports whether the fetch produced usable content.
func (r Result) Success() bool {
	return r.Err == ""
}

type cacheEntry struct {
	result Result
	at     time.Time
}

// Manager is webdog's single HTTP gateway. A zero Manager is not
// usable; construct with New.
type Manager struct {
	client   *http.Client
	governor *governor.Governor
	breakers *breaker.Table
	robots   *robotsCache
	logger   *slog.Logger
	jitter   func() time.Duration

	mu     sync.Mutex
	cache  map[string]cacheEntry
	active map[string]*inFlight
}

// inFlight tracks one normalized URL's outstanding fetch. result is
// only safe to read after done is closed: the owner writes it before
// closing, so the channel close happens-before every follower's read.
type inFlight struct {
	done   chan struct{}
	result Result
}

// Option configures a Manager.
type Option func(*Manager)

// WithClient overrides the HTTP client (tests typically inject one
// pointed at an httptest.Server).
func WithClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithGovernor injects the shared rate governor. If omitted, a fresh
// one is created — acceptable for tests, wrong for a process running
// more than one Manager.
func WithGovernor(g *governor.Governor) Option {
	return func(m *Manager) { m.governor = g }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithJitter overrides the jitter function. Tests use this to make
// delay deterministic (or zero).
func WithJitter(fn func() time.Duration) Option {
	return func(m *Manager) { m.jitter = fn }
}

// New creates a Manager with webdog's default timeouts and a fresh
// circuit-breaker table keyed per host.
func New(opts ...Option) *Manager {
	m := &Manager{
		client:   &http.Client{Timeout: hardTimeout},
		governor: governor.New(),
		breakers: breaker.NewTable(breaker.WithFailureThreshold(3), breaker.WithRecoveryTimeout(time.Hour)),
		logger:   slog.Default(),
		jitter: func() time.Duration {
			span := maxJitter - minJitter
			return minJitter + time.Duration(rand.Int63n(int64(span)))
		},
		cache:  make(map[string]cacheEntry),
		active: make(map[string]*inFlight),
	}
	for _, o := range opts {
		o(m)
	}
	m.robots = newRobotsCache(m.client)
	return m
}

// Fetch retrieves pageURL, applying jitter, circuit breaking,
// normalization-keyed caching, request coalescing, and robots.txt
// compliance, in that priority order: jitter and the circuit check run
// before either cache or coalescing short-circuits, so an open circuit
// is reported even for a URL that would otherwise be served from cache.
func (m *Manager) Fetch(ctx context.Context, pageURL string) (Result, error) {
	normalized, err := NormalizeURL(pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: normalize: %w", err)
	}

	select {
	case <-time.After(m.jitter()):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	hostKey, err := HostKey(normalized)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: host key: %w", err)
	}
	cb := m.breakers.Get(hostKey)

	if !cb.IsAllowable() {
		return Result{
			URL:       pageURL,
			Err:       fmt.Sprintf("circuit open for %s", hostKey),
			Timestamp: time.Now(),
		}, nil
	}

	if result, ok := m.cached(normalized); ok {
		m.logger.Debug("fetch: cache hit", "url", normalized)
		return result, nil
	}

	if flight, ok := m.joinInFlight(normalized); ok {
		m.logger.Debug("fetch: collapsing into in-flight request", "url", normalized)
		select {
		case <-flight.done:
			return flight.result, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	return m.execute(ctx, pageURL, normalized, hostKey, cb)
}

func (m *Manager) cached(normalized string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[normalized]
	if !ok {
		return Result{}, false
	}
	if time.Since(entry.at) >= cacheTTL {
		delete(m.cache, normalized)
		return Result{}, false
	}
	return entry.result, true
}

// joinInFlight registers the caller as waiting on an existing fetch, if
// one is underway, or claims ownership of the slot itself.
func (m *Manager) joinInFlight(normalized string) (*inFlight, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flight, ok := m.active[normalized]; ok {
		return flight, true
	}
	m.active[normalized] = &inFlight{done: make(chan struct{})}
	return nil, false
}

func (m *Manager) finishInFlight(normalized string, result Result) {
	m.mu.Lock()
	flight := m.active[normalized]
	delete(m.active, normalized)
	m.mu.Unlock()
	if flight != nil {
		flight.result = result
		close(flight.done)
	}
}

// execute performs the actual network round trip for a normalized URL
// not already served by cache or coalescing. The jitter delay and
// circuit-breaker check have already run in Fetch; hostKey and cb are
// passed through so execute doesn't redo them.
func (m *Manager) execute(ctx context.Context, originalURL, normalized, hostKey string, cb *breaker.Breaker) (Result, error) {
	start := time.Now()

	if err := m.governor.AcquireWeb(ctx); err != nil {
		m.finishInFlight(normalized, Result{})
		return Result{}, err
	}

	parsed, err := url.Parse(originalURL)
	if err != nil {
		m.finishInFlight(normalized, Result{})
		return Result{}, fmt.Errorf("fetch: parse: %w", err)
	}
	if !m.robots.Allowed(ctx, hostKey, parsed.Path) {
		result := Result{
			URL:       originalURL,
			Err:       "blocked by robots.txt",
			Timestamp: time.Now(),
		}
		m.finishInFlight(normalized, result)
		return result, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	result := m.roundTrip(fetchCtx, originalURL, cb)

	m.mu.Lock()
	m.cache[normalized] = cacheEntry{result: result, at: time.Now()}
	m.mu.Unlock()

	m.finishInFlight(normalized, result)

	m.logger.Info("fetch: completed", "url", originalURL,
		"status", result.StatusCode, "success", result.Success(),
		"elapsed", time.Since(start))

	return result, nil
}

// roundTrip issues the single outbound HTTP GET and updates the
// circuit breaker according to the response.
func (m *Manager) roundTrip(ctx context.Context, pageURL string, cb *breaker.Breaker) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		cb.RecordFailure()
		return Result{URL: pageURL, Err: err.Error(), Timestamp: time.Now()}
	}
	for k, v := range randomHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		cb.RecordFailure()
		return Result{URL: pageURL, Err: timeoutAwareError(err, pageURL), Timestamp: time.Now()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		cb.RecordFailure()
		return Result{URL: pageURL, StatusCode: resp.StatusCode, Err: timeoutAwareError(err, pageURL), Timestamp: time.Now()}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}

	return Result{
		URL:        pageURL,
		Content:    string(body),
		StatusCode: resp.StatusCode,
		Timestamp:  time.Now(),
	}
}

// timeoutAwareError turns a deadline-exceeded/client-timeout error into
// a message carrying the "Hard Timeout" marker, so callers can tell a
// genuine network timeout apart from any other transport failure.
func timeoutAwareError(err error, pageURL string) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("Hard Timeout (%.1fs) exceeded for %s", hardTimeout.Seconds(), pageURL)
	}
	return err.Error()
}
