// Package history manages a monitor's change log: append-with-prune,
// rolling 30-day archival into compressed blocks, and CSV/JSON export
// with filesystem cleanup. Grounded on
// original_source/webdog_bot/history_manager.py, with exports written
// atomically (temp file + rename) the way package store persists the
// watch list, rather than the original's plain direct-write.
package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/webdog/change"
	"github.com/hazyhaar/webdog/model"
)

const retentionWindow = 30 * 24 * time.Hour

// Add appends a new entry to monitor's history log and immediately
// archives-and-prunes anything that has aged out.
func Add(monitor *model.Monitor, changeType model.ChangeType, score float64, summary string, now time.Time) {
	monitor.HistoryLog = append(monitor.HistoryLog, model.HistoryEntry{
		Timestamp:       now.UTC().Format(time.RFC3339),
		ChangeType:      changeType,
		SimilarityScore: score,
		Summary:         summary,
	})
	ArchiveAndPrune(monitor, now, retentionWindow)
}

// ArchiveAndPrune moves history entries older than keep (measured from
// now) into a single compressed, base64-encoded archive block appended
// to monitor.HistoryArchive. If compression or serialization fails,
// every entry is retained in the active log rather than silently lost.
func ArchiveAndPrune(monitor *model.Monitor, now time.Time, keep time.Duration) {
	if len(monitor.HistoryLog) == 0 {
		return
	}

	cutoff := now.Add(-keep)

	var active, toArchive []model.HistoryEntry
	for _, entry := range monitor.HistoryLog {
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil {
			continue
		}
		if !ts.Before(cutoff) {
			active = append(active, entry)
		} else {
			toArchive = append(toArchive, entry)
		}
	}

	if len(toArchive) == 0 {
		return
	}

	block, err := archiveBlock(toArchive)
	if err != nil {
		// Never lose data on a serialization failure: keep everything.
		return
	}

	monitor.HistoryArchive = append(monitor.HistoryArchive, block)
	monitor.HistoryLog = active
}

func archiveBlock(entries []model.HistoryEntry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("history: marshal archive: %w", err)
	}
	snap, err := change.NewForensicSnapshot(string(data), model.ChangeContentUpdate, time.Now())
	if err != nil {
		return "", err
	}
	return snap.CompressedContent, nil
}

// DecodeArchiveBlock reverses archiveBlock, returning the entries a
// single HistoryArchive string holds.
func DecodeArchiveBlock(block string) ([]model.HistoryEntry, error) {
	snap := model.ForensicSnapshot{CompressedContent: block}
	text, err := change.DecompressSnapshot(snap)
	if err != nil {
		return nil, err
	}
	var entries []model.HistoryEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return nil, fmt.Errorf("history: unmarshal archive: %w", err)
	}
	return entries, nil
}

// exportFilename derives a filesystem-safe name from a monitored URL.
func exportFilename(rawURL, suffix string) string {
	safe := strings.NewReplacer("://", "_", "/", "_").Replace(rawURL)
	return safe + suffix
}

// ExportCSV writes monitor's history log to dir as CSV, atomically
// (temp file + rename), and returns the final path.
func ExportCSV(monitor *model.Monitor, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("history: mkdir export dir: %w", err)
	}
	path := filepath.Join(dir, exportFilename(monitor.URL, "_history.csv"))

	tmp, err := os.CreateTemp(dir, "export-*.csv.tmp")
	if err != nil {
		return "", fmt.Errorf("history: create temp csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"Timestamp (UTC)", "Change Type", "Similarity Score (2 dp)", "Summary"}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("history: write csv header: %w", err)
	}
	for _, entry := range monitor.HistoryLog {
		row := []string{
			entry.Timestamp,
			string(entry.ChangeType),
			fmt.Sprintf("%.2f", entry.SimilarityScore),
			entry.Summary,
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return "", fmt.Errorf("history: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("history: flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("history: close temp csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("history: rename csv into place: %w", err)
	}
	return path, nil
}

// jsonExport is the on-disk shape ExportJSON writes.
type jsonExport struct {
	URL        string               `json:"url"`
	ExportedAt string               `json:"exported_at"`
	History    []model.HistoryEntry `json:"history"`
}

// ExportJSON writes monitor's history log to dir as JSON, atomically,
// and returns the final path.
func ExportJSON(monitor *model.Monitor, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("history: mkdir export dir: %w", err)
	}
	path := filepath.Join(dir, exportFilename(monitor.URL, "_history.json"))

	payload := jsonExport{
		URL:        monitor.URL,
		ExportedAt: now.UTC().Format(time.RFC3339),
		History:    monitor.HistoryLog,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("history: marshal json export: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "export-*.json.tmp")
	if err != nil {
		return "", fmt.Errorf("history: create temp json: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("history: write json: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("history: close temp json: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("history: rename json into place: %w", err)
	}
	return path, nil
}

// CleanupExports deletes files in dir older than maxAge. Missing dirs
// are not an error — nothing has been exported yet.
func CleanupExports(dir string, maxAge time.Duration, now time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("history: read export dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
