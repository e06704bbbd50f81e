// Package governor provides the two global token buckets webdog shares:
// outbound web fetches and outbound alert sends. Built on
// golang.org/x/time/rate.Limiter rather than a hand-rolled bucket.
package governor

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Bucket wraps a rate.Limiter with an optional queue-depth counter so
// callers can expose a congestion/backpressure signal.
type Bucket struct {
	limiter *rate.Limiter
	depth   atomic.Int64
}

// NewBucket creates a token bucket refilling at ratePerSecond tokens/s
// with the given burst capacity.
func NewBucket(ratePerSecond float64, burst int) *Bucket {
	return &Bucket{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Acquire suspends the caller until a token is available or ctx is
// cancelled.
func (b *Bucket) Acquire(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// TryAcquire reports whether a token was available immediately, without
// blocking.
func (b *Bucket) TryAcquire() bool {
	return b.limiter.Allow()
}

// IncrQueueDepth and DecrQueueDepth track an external FIFO's size so
// Depth() can report it without the bucket owning the queue itself.
func (b *Bucket) IncrQueueDepth() { b.depth.Add(1) }
func (b *Bucket) DecrQueueDepth() { b.depth.Add(-1) }

// Depth returns the last recorded queue depth.
func (b *Bucket) Depth() int64 { return b.depth.Load() }

// Default rates, tuned for a small-to-medium patrol fleet.
const (
	WebRatePerSecond   = 5.0
	WebBurst           = 5
	AlertRatePerSecond = 25.0
	AlertBurst         = 25

	// CongestionThreshold is the alert queue depth past which the
	// patrol scheduler applies back-pressure.
	CongestionThreshold = 50
)

// Governor bundles the web and alert buckets the rest of webdog shares.
type Governor struct {
	Web   *Bucket
	Alert *Bucket
}

// New creates a Governor with the default rates.
func New() *Governor {
	return &Governor{
		Web:   NewBucket(WebRatePerSecond, WebBurst),
		Alert: NewBucket(AlertRatePerSecond, AlertBurst),
	}
}

// AcquireWeb suspends the caller until a web-fetch token is available.
func (g *Governor) AcquireWeb(ctx context.Context) error {
	return g.Web.Acquire(ctx)
}

// IsCongested reports whether the alert queue depth exceeds
// CongestionThreshold — the patrol scheduler's back-pressure signal.
func (g *Governor) IsCongested() bool {
	return g.Alert.Depth() > CongestionThreshold
}
