package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/webdog/model"
)

func newTestStore(t *testing.T, clock func() time.Time) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	s := New(path, WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	return s, path
}

func TestLoadMissingFileReturnsEmptyDocument(t *testing.T) {
	s, _ := newTestStore(t, time.Now)
	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.SchemaVersion != model.CurrentSchemaVersion {
		t.Fatalf("got schema version %q", doc.SchemaVersion)
	}
	if len(doc.Data) != 0 {
		t.Fatalf("expected empty data, got %+v", doc.Data)
	}
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	s, path := newTestStore(t, func() time.Time { return now })

	doc := model.NewStoreDocument(map[string]model.UserData{
		"42": {
			UserConfig: model.DefaultConfig(),
			Monitors: []model.Monitor{
				{URL: "https://example.com", Fingerprint: &model.Fingerprint{Hash: "abc", Version: "v2.0"}},
			},
		},
	}, nil)

	if err := s.Write(doc); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file to exist: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Data) != 1 || loaded.Data["42"].Monitors[0].URL != "https://example.com" {
		t.Fatalf("unexpected loaded document: %+v", loaded)
	}
	if loaded.UpdatedAt != now.UTC().Format(time.RFC3339) {
		t.Fatalf("got updated_at %q", loaded.UpdatedAt)
	}
}

func TestWriteRotatesBackups(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	s, path := newTestStore(t, func() time.Time { return clock })

	for i := 0; i < maxBackups+3; i++ {
		doc := model.NewStoreDocument(map[string]model.UserData{}, nil)
		if err := s.Write(doc); err != nil {
			t.Fatal(err)
		}
		clock = clock.Add(time.Second)
	}

	matches, err := filepath.Glob(path + ".backup_*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != maxBackups {
		t.Fatalf("expected %d backups retained, got %d", maxBackups, len(matches))
	}
}

func TestLoadMigratesLegacySingleMonitorShape(t *testing.T) {
	s, path := newTestStore(t, time.Now)

	legacy := map[string]any{
		"12345": map[string]any{"url": "https://example.com", "hash": "abc123hash"},
		"67890": []map[string]any{{"url": "https://google.com", "hash": "xyz789hash"}},
	}
	raw, err := json.Marshal(legacy)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}

	single, ok := doc.Data["12345"]
	if !ok || len(single.Monitors) != 1 {
		t.Fatalf("expected a migrated single monitor for chat 12345, got %+v", doc.Data["12345"])
	}
	if single.Monitors[0].URL != "https://example.com" || single.Monitors[0].Fingerprint.Version != "legacy" {
		t.Fatalf("unexpected migrated monitor: %+v", single.Monitors[0])
	}

	list, ok := doc.Data["67890"]
	if !ok || len(list.Monitors) != 1 || list.Monitors[0].URL != "https://google.com" {
		t.Fatalf("expected a migrated list monitor for chat 67890, got %+v", doc.Data["67890"])
	}
}

func TestLoadPassesThroughCurrentSchema(t *testing.T) {
	s, path := newTestStore(t, time.Now)

	doc := model.NewStoreDocument(map[string]model.UserData{
		"1": {Monitors: []model.Monitor{{URL: "https://a.example"}}},
	}, []string{"1"})
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Data["1"].Monitors[0].URL != "https://a.example" {
		t.Fatalf("expected passthrough of current schema, got %+v", loaded)
	}
}

func TestWriteFailsForUnreachableDirectory(t *testing.T) {
	// No seam exists to fake syscall.Statfs directly, so this exercises
	// the commit path's I/O failure branch with a nonexistent parent
	// directory instead of simulating low disk space.
	path := filepath.Join(t.TempDir(), "missing", "nested", "db.json")
	s := New(path)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer func() {
		cancel()
		s.Stop()
	}()

	err := s.Write(model.NewStoreDocument(map[string]model.UserData{}, nil))
	if err == nil {
		t.Fatal("expected a write error for an unreachable directory")
	}
}
