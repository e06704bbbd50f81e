// Package store is webdog's persistence layer: the entire monitor
// population held as one versioned JSON document on disk, written by a
// single background worker that drains a FIFO of write requests.
// Grounded on observability.AuditLogger.flushLoop for the
// buffered-channel-plus-done-channel worker shape and on
// veille/internal/buffer.Writer.Write and dbsync/subscriber.go for the
// temp-write-then-rename discipline, extended with an explicit fsync
// (neither teacher reference calls Sync, since both use os.WriteFile;
// store needs the file handle to force data to durable storage before
// the rename, so it opens the temp file directly instead).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/hazyhaar/webdog/model"
)

// ErrInsufficientStorage is returned when free disk space falls below
// the 10 MB pre-flight threshold; the write is refused before any file
// is touched.
var ErrInsufficientStorage = errors.New("store: insufficient disk space")

// ErrIO wraps an underlying filesystem failure encountered mid-write.
// The last good db.json is left untouched in every case.
type ErrIO struct {
	Op  string
	Err error
}

func (e *ErrIO) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

const (
	minFreeDiskMB = 10
	maxBackups    = 5
)

// writeRequest is one queued write, paired with a channel the caller
// blocks on for the commit-or-error result.
type writeRequest struct {
	doc  model.StoreDocument
	done chan error
}

// Store owns db.json and the single goroutine allowed to mutate it.
// The zero value is not usable; construct with New.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	queue chan writeRequest
	done  chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock injects a clock function for deterministic tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// New creates a Store backed by the file at path. Run must be started
// in its own goroutine before any Write call can complete.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
		now:    time.Now,
		queue:  make(chan writeRequest, 4096),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run drains the write queue until ctx is cancelled. Blocks; call from
// its own goroutine.
func (s *Store) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			req.done <- s.commit(req.doc)
		}
	}
}

// Stop waits for Run to observe context cancellation and exit.
func (s *Store) Stop() {
	<-s.done
}

// Write enqueues doc for persistence and blocks until the write commits
// or fails. Safe to call from multiple goroutines.
func (s *Store) Write(doc model.StoreDocument) error {
	req := writeRequest{doc: doc, done: make(chan error, 1)}
	s.queue <- req
	return <-req.done
}

// Load reads the store document from disk. A missing file yields an
// empty, current-schema document. A legacy-shaped file is migrated in
// memory and returned as current-schema; the caller must Write it back
// to materialize the migration on disk.
func (s *Store) Load() (model.StoreDocument, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.NewStoreDocument(map[string]model.UserData{}, nil), nil
	}
	if err != nil {
		return model.StoreDocument{}, &ErrIO{Op: "read", Err: err}
	}

	var probe struct {
		SchemaVersion string `json:"schema_version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return model.StoreDocument{}, &ErrIO{Op: "parse", Err: err}
	}

	if probe.SchemaVersion == model.CurrentSchemaVersion {
		var doc model.StoreDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return model.StoreDocument{}, &ErrIO{Op: "parse", Err: err}
		}
		if doc.Data == nil {
			doc.Data = map[string]model.UserData{}
		}
		if doc.Order == nil {
			order := make([]string, 0, len(doc.Data))
			for id := range doc.Data {
				order = append(order, id)
			}
			sort.Strings(order)
			doc.Order = order
		}
		return doc, nil
	}

	data, order, err := migrate(raw, s.logger)
	if err != nil {
		return model.StoreDocument{}, &ErrIO{Op: "migrate", Err: err}
	}
	return model.NewStoreDocument(data, order), nil
}

// commit runs the full atomic write sequence for one document.
func (s *Store) commit(doc model.StoreDocument) error {
	freeMB, err := freeDiskMB(filepath.Dir(s.path))
	if err != nil {
		return &ErrIO{Op: "statfs", Err: err}
	}
	if freeMB < minFreeDiskMB {
		return ErrInsufficientStorage
	}

	if err := s.rotateBackup(); err != nil {
		return &ErrIO{Op: "backup", Err: err}
	}

	now := s.now()
	doc.SchemaVersion = model.CurrentSchemaVersion
	doc.UpdatedAt = now.UTC().Format(time.RFC3339)

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &ErrIO{Op: "marshal", Err: err}
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return &ErrIO{Op: "create", Err: err}
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return &ErrIO{Op: "write", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return &ErrIO{Op: "fsync", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return &ErrIO{Op: "close", Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &ErrIO{Op: "rename", Err: err}
	}

	s.logger.Info("store: committed", "path", s.path, "users", len(doc.Data))
	return nil
}

// rotateBackup snapshots the current db.json (if any) to a timestamped
// backup file, then deletes all but the newest maxBackups.
func (s *Store) rotateBackup() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	backupPath := fmt.Sprintf("%s.backup_%s", s.path, s.now().UTC().Format("20060102_150405"))
	if err := os.WriteFile(backupPath, raw, 0o644); err != nil {
		return err
	}

	pattern := s.path + ".backup_*"
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	for len(matches) > maxBackups {
		if err := os.Remove(matches[0]); err != nil {
			s.logger.Warn("store: failed to prune stale backup", "path", matches[0], "error", err)
		}
		matches = matches[1:]
	}
	return nil
}

// freeDiskMB reports free disk space on the filesystem holding dir, via
// a direct syscall — no library in the example corpus wraps disk usage
// portably, and a single Statfs call doesn't warrant pulling one in.
func freeDiskMB(dir string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024), nil
}
