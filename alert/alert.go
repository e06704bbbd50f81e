// Package alert is webdog's single outbound notification gate: a FIFO
// queue drained by one worker goroutine that acquires a global alert
// token before handing each Alert to a Sink. Grounded on
// original_source/webdog_bot/governor.py's TelegramThrottler
// (queue+worker+rate-limiter) and domwatch/internal/sink.Router's
// fan-out-with-logged-errors shape, combined: every alert is delivered
// to all configured sinks, rate-limited as one logical channel.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/webdog/governor"
	"github.com/hazyhaar/webdog/idgen"
	"github.com/hazyhaar/webdog/model"
)

// Alert is one outbound notification, addressed to a chat and carrying
// the monitor state that triggered it.
type Alert struct {
	ID        string
	ChatID    string
	URL       string
	Monitor   model.Monitor
	Message   string
	Timestamp time.Time
}

// Sink delivers an Alert to an external channel (chat bot API, webhook,
// stdout). Send errors are logged by the Throttler, never propagated
// back to the enqueuing caller.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

const queueCapacity = 1024

// Throttler is the global, rate-limited alert dispatcher. A zero value
// is not usable; construct with New.
type Throttler struct {
	sinks    []Sink
	governor *governor.Governor
	logger   *slog.Logger

	queue chan Alert
	done  chan struct{}
}

// Option configures a Throttler.
type Option func(*Throttler)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Throttler) { t.logger = l }
}

// New creates a Throttler fanning every enqueued Alert out to sinks,
// gated by gov's alert token bucket.
func New(gov *governor.Governor, sinks []Sink, opts ...Option) *Throttler {
	t := &Throttler{
		sinks:    sinks,
		governor: gov,
		logger:   slog.Default(),
		queue:    make(chan Alert, queueCapacity),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Enqueue submits an alert for delivery without blocking the caller. If
// the queue is full, the alert is dropped and logged — a patrol cycle
// must never stall waiting on notification delivery.
func (t *Throttler) Enqueue(a Alert) {
	if a.ID == "" {
		a.ID = idgen.New()
	}
	select {
	case t.queue <- a:
		t.governor.Alert.IncrQueueDepth()
	default:
		t.logger.Warn("alert: queue full, dropping alert", "id", a.ID, "chat_id", a.ChatID, "url", a.URL)
	}
}

// QueueDepth reports the number of alerts currently waiting, the same
// counter governor.Governor.IsCongested polls for back-pressure.
func (t *Throttler) QueueDepth() int64 {
	return t.governor.Alert.Depth()
}

// Run drains the queue until ctx is cancelled, acquiring an alert token
// before each delivery. Run blocks; call it from its own goroutine.
func (t *Throttler) Run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-t.queue:
			t.deliver(ctx, a)
		}
	}
}

// Stop waits for Run to observe ctx cancellation and exit. Call after
// cancelling the context passed to Run.
func (t *Throttler) Stop() {
	<-t.done
}

func (t *Throttler) deliver(ctx context.Context, a Alert) {
	defer t.governor.Alert.DecrQueueDepth()
	if err := t.governor.Alert.Acquire(ctx); err != nil {
		return
	}
	for _, sink := range t.sinks {
		if err := sink.Send(ctx, a); err != nil {
			t.logger.Error("alert: sink send failed", "id", a.ID, "chat_id", a.ChatID, "url", a.URL, "error", err)
		}
	}
}
