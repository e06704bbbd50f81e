// Package metrics is webdog's health aggregator: request latency and
// success-rate buckets over the trailing 24 hours, a rolling window of
// database write latencies, worker saturation, and free disk space.
// Grounded on original_source/webdog_bot/metrics.py's hourly-bucket and
// ring-buffer design, rebuilt around a single struct (with no internal
// locking) rather than a process-wide singleton — package webdog constructs one
// Tracker and threads it through explicitly, the way
// observability.MetricsManager is constructed once and passed down
// instead of reached for via a global.
package metrics

import (
	"syscall"
	"time"
)

const (
	bucketWindow       = time.Hour
	retentionWindow    = 24 * time.Hour
	dbLatencyRingSize  = 1000
	lowSuccessRatePct  = 80.0
	lowSuccessMinCount = 10
	lowDiskSpaceMB     = 500
)

type bucket struct {
	success int
	fail    int
	count   int
}

// Tracker aggregates request, database, and worker health signals.
// The zero value is not usable; construct with New.
type Tracker struct {
	start time.Time
	now   func() time.Time

	buckets map[int64]*bucket

	totalLatency time.Duration
	requestCount int

	dbLatencies []time.Duration // ring buffer, capped at dbLatencyRingSize
	dbRingHead  int

	activeWorkers int
	totalWorkers  int

	diskUsage func() (freeMB uint64, err error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects a clock function for deterministic tests.
func WithClock(fn func() time.Time) Option {
	return func(t *Tracker) { t.now = fn }
}

// WithDiskUsage overrides the free-disk-space probe (tests avoid
// touching the real filesystem this way).
func WithDiskUsage(fn func() (freeMB uint64, err error)) Option {
	return func(t *Tracker) { t.diskUsage = fn }
}

// New creates a Tracker whose uptime clock starts now.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		now:       time.Now,
		buckets:   make(map[int64]*bucket),
		diskUsage: statfsFreeMB,
	}
	for _, o := range opts {
		o(t)
	}
	t.start = t.now()
	return t
}

// RecordRequest records one web-fetch outcome, bucketed by the hour it
// occurred in, pruning buckets older than 24 hours.
func (t *Tracker) RecordRequest(latency time.Duration, success bool) {
	t.totalLatency += latency
	t.requestCount++

	now := t.now()
	hourTS := now.Truncate(bucketWindow).Unix()

	cutoff := now.Add(-retentionWindow).Unix()
	for ts := range t.buckets {
		if ts < cutoff {
			delete(t.buckets, ts)
		}
	}

	b, ok := t.buckets[hourTS]
	if !ok {
		b = &bucket{}
		t.buckets[hourTS] = b
	}
	b.count++
	if success {
		b.success++
	} else {
		b.fail++
	}
}

// RecordDBOperation records one database write's latency into the
// trailing 1000-operation ring.
func (t *Tracker) RecordDBOperation(latency time.Duration) {
	if len(t.dbLatencies) < dbLatencyRingSize {
		t.dbLatencies = append(t.dbLatencies, latency)
		return
	}
	t.dbLatencies[t.dbRingHead] = latency
	t.dbRingHead = (t.dbRingHead + 1) % dbLatencyRingSize
}

// UpdateWorkerStats records the current patrol worker saturation.
func (t *Tracker) UpdateWorkerStats(active, total int) {
	t.activeWorkers = active
	t.totalWorkers = total
}

// Performance summarizes the trailing 24h request window.
type Performance struct {
	AvgRequestLatencySec float64
	AvgDBWriteLatencySec float64
	SuccessRate24hPct    float64
	TotalRequests24h     int
}

// Workers summarizes current worker saturation.
type Workers struct {
	Active        int
	Total         int
	SaturationPct float64
}

// Status is the complete health report produced by GetSystemStatus.
type Status struct {
	Timestamp     time.Time
	UptimeSeconds int64
	Performance   Performance
	Workers       Workers
	DiskFreeMB    uint64
	Alerts        []string
}

// GetSystemStatus produces a comprehensive health report, including
// alert strings for sustained low success rate or low disk space.
func (t *Tracker) GetSystemStatus() Status {
	now := t.now()

	var totalReqs, totalSuccess int
	for _, b := range t.buckets {
		totalReqs += b.count
		totalSuccess += b.success
	}

	successRate := 100.0
	if totalReqs > 0 {
		successRate = float64(totalSuccess) / float64(totalReqs) * 100
	}

	var avgLatency float64
	if t.requestCount > 0 {
		avgLatency = t.totalLatency.Seconds() / float64(t.requestCount)
	}

	var avgDBLatency float64
	if len(t.dbLatencies) > 0 {
		var sum time.Duration
		for _, l := range t.dbLatencies {
			sum += l
		}
		avgDBLatency = sum.Seconds() / float64(len(t.dbLatencies))
	}

	freeMB, err := t.diskUsage()
	if err != nil {
		freeMB = 0
	}

	var alerts []string
	if successRate < lowSuccessRatePct && totalReqs > lowSuccessMinCount {
		alerts = append(alerts, "CRITICAL: Success rate below 80%")
	}
	if freeMB < lowDiskSpaceMB {
		alerts = append(alerts, "CRITICAL: Low Disk Space")
	}

	saturation := 0.0
	if t.totalWorkers > 0 {
		saturation = float64(t.activeWorkers) / float64(t.totalWorkers) * 100
	}

	return Status{
		Timestamp:     now,
		UptimeSeconds: int64(now.Sub(t.start).Seconds()),
		Performance: Performance{
			AvgRequestLatencySec: round3(avgLatency),
			AvgDBWriteLatencySec: round3(avgDBLatency),
			SuccessRate24hPct:    round2(successRate),
			TotalRequests24h:     totalReqs,
		},
		Workers: Workers{
			Active:        t.activeWorkers,
			Total:         t.totalWorkers,
			SaturationPct: round1(saturation),
		},
		DiskFreeMB: freeMB,
		Alerts:     alerts,
	}
}

func round1(f float64) float64 { return roundN(f, 10) }
func round2(f float64) float64 { return roundN(f, 100) }
func round3(f float64) float64 { return roundN(f, 1000) }

func roundN(f, n float64) float64 {
	return float64(int64(f*n+0.5)) / n
}

// statfsFreeMB reports free disk space on the filesystem holding the
// current working directory, via a direct syscall — no library in the
// example corpus wraps disk usage portably, and a single Statfs call
// doesn't warrant pulling one in.
func statfsFreeMB() (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(".", &stat); err != nil {
		return 0, err
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	return freeBytes / (1024 * 1024), nil
}
