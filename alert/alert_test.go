package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/webdog/governor"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []Alert
	fail bool
}

func (s *recordingSink) Send(ctx context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.sent = append(s.sent, a)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestThrottlerDeliversToAllSinks(t *testing.T) {
	gov := governor.New()
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}
	th := New(gov, []Sink{sinkA, sinkB})

	ctx, cancel := context.WithCancel(context.Background())
	go th.Run(ctx)

	th.Enqueue(Alert{ChatID: "1", URL: "https://example.com"})

	deadline := time.Now().Add(2 * time.Second)
	for sinkA.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	th.Stop()

	if sinkA.count() != 1 || sinkB.count() != 1 {
		t.Fatalf("expected both sinks to receive the alert, got %d and %d", sinkA.count(), sinkB.count())
	}
}

func TestThrottlerQueueDepthTracksBackpressure(t *testing.T) {
	gov := governor.New()
	th := New(gov, nil)

	if gov.IsCongested() {
		t.Fatal("expected fresh governor not to be congested")
	}

	for i := 0; i < int(governor.CongestionThreshold)+1; i++ {
		th.Enqueue(Alert{ChatID: "1"})
	}

	if !gov.IsCongested() {
		t.Fatal("expected the governor to report congestion once queue depth exceeds the threshold")
	}
}

func TestThrottlerDropsWhenQueueFull(t *testing.T) {
	gov := governor.New()
	th := New(gov, nil)

	for i := 0; i < queueCapacity+10; i++ {
		th.Enqueue(Alert{ChatID: "1"})
	}

	if depth := th.QueueDepth(); depth > queueCapacity {
		t.Fatalf("expected queue depth never to exceed capacity %d, got %d", queueCapacity, depth)
	}
}
