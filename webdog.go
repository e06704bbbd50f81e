// Package webdog is the top-level page-change-monitoring daemon: a
// patrol scheduler that walks every user's watched URLs on a fixed
// tick, fetching, fingerprinting, diffing, and alerting through the
// component packages beneath it. Grounded on domwatch.Watcher's
// orchestrator shape (New/Start/Stop, options-configured components,
// fan-out Sink) and veille/internal/scheduler.Scheduler's
// ticker-driven, run-once-then-tick loop.
package webdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/webdog/alert"
	"github.com/hazyhaar/webdog/change"
	"github.com/hazyhaar/webdog/fetch"
	"github.com/hazyhaar/webdog/fingerprint"
	"github.com/hazyhaar/webdog/governor"
	"github.com/hazyhaar/webdog/history"
	"github.com/hazyhaar/webdog/metrics"
	"github.com/hazyhaar/webdog/model"
	"github.com/hazyhaar/webdog/similarity"
	"github.com/hazyhaar/webdog/store"
)

const (
	rateLimitStrikeLimit = 3
	initialDelay         = 10 * time.Second
)

// Patrol is webdog's orchestrator: it owns the store, the request
// manager, the alert throttler, and the health tracker, and drives the
// per-cycle walk over every watched URL.
type Patrol struct {
	cfg     *Config
	logger  *slog.Logger
	now     func() time.Time

	store     *store.Store
	fetcher   *fetch.Manager
	governor  *governor.Governor
	throttler *alert.Throttler
	metrics   *metrics.Tracker

	done chan struct{}
}

// New builds a Patrol wired from cfg, ready to Start. sinks receive
// every enqueued alert.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) *Patrol {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	gov := governor.New()
	return &Patrol{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		store:     store.New(cfg.StorePath, store.WithLogger(logger)),
		fetcher:   fetch.New(fetch.WithGovernor(gov), fetch.WithLogger(logger)),
		governor:  gov,
		throttler: alert.New(gov, sinks, alert.WithLogger(logger)),
		metrics:   metrics.New(),
		done:      make(chan struct{}),
	}
}

// Start launches the persistence writer, the alert throttler, and the
// patrol ticker, then blocks until ctx is cancelled.
func (p *Patrol) Start(ctx context.Context) error {
	go p.store.Run(ctx)
	go p.throttler.Run(ctx)

	ticker := time.NewTicker(time.Duration(p.cfg.CheckInterval))
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Duration(p.cfg.CleanupEvery))
	defer cleanup.Stop()

	select {
	case <-time.After(initialDelay):
	case <-ctx.Done():
		close(p.done)
		return ctx.Err()
	}
	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			close(p.done)
			return nil
		case <-ticker.C:
			p.runCycle(ctx)
		case <-cleanup.C:
			if err := history.CleanupExports(p.cfg.ExportDir, time.Duration(p.cfg.ExportMaxAge), p.now()); err != nil {
				p.logger.Warn("webdog: export cleanup failed", "error", err)
			}
		}
	}
}

// Stop waits for Start to observe cancellation and return, then waits
// for the store writer and alert throttler goroutines to exit. Alerts
// still queued at that point are not delivered.
func (p *Patrol) Stop() {
	<-p.done
	p.store.Stop()
	p.throttler.Stop()
}

// runCycle walks every user's monitors once.
func (p *Patrol) runCycle(ctx context.Context) {
	if p.governor.IsCongested() {
		p.logger.Warn("webdog: skipping cycle, alert queue congested")
		return
	}

	doc, err := p.store.Load()
	if err != nil {
		p.logger.Error("webdog: load failed, skipping cycle", "error", err)
		return
	}

	now := p.now()
	dirty := false
	totalMonitors, activeMonitors := 0, 0

	for _, chatID := range doc.OrderedChatIDs() {
		userData := doc.Data[chatID]
		for i := range userData.Monitors {
			monitor := &userData.Monitors[i]
			totalMonitors++
			monitorDirty, attempted := p.checkMonitor(ctx, monitor, userData.UserConfig, chatID, now)
			if monitorDirty {
				dirty = true
			}
			if attempted {
				activeMonitors++
			}
		}
		doc.Data[chatID] = userData
	}
	p.metrics.UpdateWorkerStats(activeMonitors, totalMonitors)

	if !dirty {
		return
	}
	writeStart := p.now()
	err = p.store.Write(doc)
	p.metrics.RecordDBOperation(p.now().Sub(writeStart))
	if err != nil {
		p.logger.Error("webdog: write failed, retrying next cycle", "error", err)
	}
}

// checkMonitor runs one monitor through a full patrol step: snooze and
// interval gating, fetch, rate-limit handling, fingerprinting, and
// change detection. It returns whether the monitor's state mutated and
// whether it actually attempted a fetch (as opposed to being skipped by
// the snooze or check-interval gate) — the latter feeds the cycle's
// worker-saturation count.
func (p *Patrol) checkMonitor(ctx context.Context, monitor *model.Monitor, userCfg model.Config, chatID string, now time.Time) (dirty bool, attempted bool) {
	cfg := monitor.EffectiveConfig(userCfg)

	if monitor.Metadata.SnoozeUntil != nil {
		snoozeUntil, err := time.Parse(time.RFC3339, *monitor.Metadata.SnoozeUntil)
		if err == nil {
			if snoozeUntil.After(now) {
				return false, false
			}
			monitor.Metadata.SnoozeUntil = nil
			dirty = true
		}
	}

	if monitor.Metadata.LastCheck != nil {
		lastCheck, err := time.Parse(time.RFC3339, *monitor.Metadata.LastCheck)
		if err == nil && now.Sub(lastCheck) < cfg.CheckInterval {
			return dirty, false
		}
	}

	if err := p.governor.AcquireWeb(ctx); err != nil {
		return dirty, false
	}

	start := now
	result, err := p.fetcher.Fetch(ctx, monitor.URL)
	monitor.Metadata.CheckCount++
	p.metrics.RecordRequest(time.Since(start), err == nil && result.Success())
	if err != nil {
		monitor.Metadata.FailureCount++
		return true, true
	}

	if result.StatusCode == 429 {
		monitor.Metadata.RateLimitCount++
		if monitor.Metadata.RateLimitCount >= rateLimitStrikeLimit {
			p.throttler.Enqueue(alert.Alert{
				ChatID:    chatID,
				URL:       monitor.URL,
				Monitor:   *monitor,
				Message:   fmt.Sprintf("Rate limited repeatedly while checking %s", monitor.URL),
				Timestamp: now,
			})
			monitor.Metadata.RateLimitCount = 0
		}
		return true, true
	}
	monitor.Metadata.RateLimitCount = 0

	if !result.Success() || result.Content == "" {
		monitor.Metadata.FailureCount++
		return true, true
	}

	newFP, err := fingerprint.Generate(result.Content)
	lastCheckStr := now.UTC().Format(time.RFC3339)
	monitor.Metadata.LastCheck = &lastCheckStr
	if err != nil {
		monitor.Metadata.FailureCount++
		return true, true
	}

	if monitor.Fingerprint != nil && monitor.Fingerprint.Hash != newFP.Hash {
		score := p.compareAgainstBaseline(monitor, &newFP, result.Content)
		changeType := similarity.Classify(score)

		if similarity.ShouldAlert(score, cfg.SimilarityThreshold) {
			message := fmt.Sprintf("Change Detected at %s (similarity %.2f)", monitor.URL, score)
			if cfg.IncludeDiff {
				if oldContent, ok := p.latestSnapshotContent(monitor); ok {
					message += "\n" + change.SafeDiff(oldContent, result.Content)
				}
			}
			p.throttler.Enqueue(alert.Alert{
				ChatID:    chatID,
				URL:       monitor.URL,
				Monitor:   *monitor,
				Message:   message,
				Timestamp: now,
			})
			history.Add(monitor, changeType, score, "Alerted", now)
		} else {
			history.Add(monitor, changeType, score, "Silent Update", now)
		}

		if err := change.AppendSnapshot(monitor, result.Content, changeType, now); err != nil {
			p.logger.Warn("webdog: forensic snapshot failed", "url", monitor.URL, "error", err)
		}
		monitor.Fingerprint = &newFP
		return true, true
	}

	if monitor.Fingerprint == nil {
		monitor.Fingerprint = &newFP
		return true, true
	}

	return true, true
}

// compareAgainstBaseline scores the new fingerprint against the
// monitor's baseline, using full-text comparison when a forensic
// snapshot can be decompressed, falling back to the fingerprint-only
// comparison otherwise.
func (p *Patrol) compareAgainstBaseline(monitor *model.Monitor, newFP *model.Fingerprint, newContent string) float64 {
	if oldContent, ok := p.latestSnapshotContent(monitor); ok {
		return similarity.Compare(oldContent, newContent, oldContent, newContent).FinalScore
	}
	return similarity.CalculateFromFingerprints(monitor.Fingerprint, newFP).FinalScore
}

// latestSnapshotContent decompresses the most recent forensic snapshot,
// if any exist.
func (p *Patrol) latestSnapshotContent(monitor *model.Monitor) (string, bool) {
	if len(monitor.ForensicSnapshots) == 0 {
		return "", false
	}
	last := monitor.ForensicSnapshots[len(monitor.ForensicSnapshots)-1]
	content, err := change.DecompressSnapshot(last)
	if err != nil {
		return "", false
	}
	return content, true
}
