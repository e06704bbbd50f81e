// Package model defines webdog's public data contract: the shapes that
// flow between the patrol scheduler, persistence, and external
// collaborators (chat-bot command surface, exporters). Mirrors the role
// domwatch/mutation plays for domwatch — a stable, dependency-light
// package other binaries can import without pulling in the engine.
package model

import (
	"sort"
	"time"
)

// ChangeType classifies the magnitude of a detected content change.
type ChangeType string

const (
	ChangeUITweak        ChangeType = "UI_TWEAK"
	ChangeContentUpdate  ChangeType = "CONTENT_UPDATE"
	ChangeMajorOverhaul  ChangeType = "MAJOR_OVERHAUL"
	ChangeInitialBaseline ChangeType = "INITIAL_BASELINE"
)

// Fingerprint is a stable hash plus structural tag profile derived from
// a noise-stripped page. Produced only by package fingerprint.
type Fingerprint struct {
	Hash               string             `json:"hash"`
	Version            string             `json:"version"`
	Algorithm          string             `json:"algorithm"`
	ContentWeights     map[string]float64 `json:"content_weights"`
	StructureSignature string             `json:"structure_signature"`
}

// Equal reports whether two fingerprints carry the same content hash.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if f == nil || other == nil {
		return false
	}
	return f.Hash == other.Hash
}

// ForensicSnapshot is a deflated, base64-encoded copy of a page body
// retained for diffing and last-known-good decompression. A monitor
// retains at most 3, oldest evicted first.
type ForensicSnapshot struct {
	Timestamp         string     `json:"timestamp"`
	ChangeType        ChangeType `json:"change_type"`
	CompressedContent string     `json:"compressed_content"`
}

// HistoryEntry is a single append-only record of a patrol decision.
type HistoryEntry struct {
	Timestamp        string     `json:"timestamp"`
	ChangeType       ChangeType `json:"change_type"`
	SimilarityScore  float64    `json:"similarity_score"`
	Summary          string     `json:"summary"`
}

// MonitorMetadata tracks a monitor's operational state.
type MonitorMetadata struct {
	CreatedAt          string  `json:"created_at"`
	LastCheck          *string `json:"last_check,omitempty"`
	CheckCount         int     `json:"check_count"`
	FailureCount       int     `json:"failure_count"`
	CircuitBreakerState string `json:"circuit_breaker_state"`
	RateLimitCount     int     `json:"rate_limit_count"`
	SnoozeUntil        *string `json:"snooze_until,omitempty"`
}

// Config is a per-monitor or per-user set of patrol knobs. Out-of-range
// values passed to NewConfig are clamped, never rejected.
type Config struct {
	SimilarityThreshold float64       `json:"similarity_threshold" yaml:"similarity_threshold"`
	CheckInterval       time.Duration `json:"check_interval" yaml:"check_interval"`
	IncludeDiff         bool          `json:"include_diff" yaml:"include_diff"`
	CustomSelector      string        `json:"custom_selector,omitempty" yaml:"custom_selector,omitempty"`
}

// DefaultConfig returns webdog's baseline monitor configuration.
func DefaultConfig() Config {
	return NewConfig(Config{
		SimilarityThreshold: 0.85,
		CheckInterval:       60 * time.Second,
		IncludeDiff:         true,
	})
}

// NewConfig clamps c into valid ranges: similarity_threshold in (0,1],
// check_interval >= 30s.
func NewConfig(c Config) Config {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.01
	}
	if c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 1.0
	}
	if c.CheckInterval < 30*time.Second {
		c.CheckInterval = 30 * time.Second
	}
	return c
}

// Monitor is one watched URL belonging to one user.
type Monitor struct {
	URL               string             `json:"url"`
	Fingerprint       *Fingerprint       `json:"fingerprint,omitempty"`
	Metadata          MonitorMetadata    `json:"metadata"`
	ForensicSnapshots []ForensicSnapshot `json:"forensic_snapshots"`
	HistoryLog        []HistoryEntry     `json:"history_log"`
	HistoryArchive    []string           `json:"history_archive"`
	Config            *Config            `json:"config,omitempty"`
}

// EffectiveConfig returns m.Config if set, else userDefault.
func (m *Monitor) EffectiveConfig(userDefault Config) Config {
	if m.Config != nil {
		return *m.Config
	}
	return userDefault
}

const maxForensicSnapshots = 3

// AddSnapshot appends a snapshot and evicts the oldest past the cap.
func (m *Monitor) AddSnapshot(s ForensicSnapshot) {
	m.ForensicSnapshots = append(m.ForensicSnapshots, s)
	for len(m.ForensicSnapshots) > maxForensicSnapshots {
		m.ForensicSnapshots = m.ForensicSnapshots[1:]
	}
}

// UserData is one chat user's monitor collection and defaults.
type UserData struct {
	UserConfig Config    `json:"user_config"`
	Monitors   []Monitor `json:"monitors"`
}

// FindMonitor returns the index of the monitor watching url, or -1.
func (u *UserData) FindMonitor(url string) int {
	for i := range u.Monitors {
		if u.Monitors[i].URL == url {
			return i
		}
	}
	return -1
}

// CurrentSchemaVersion is the store document schema webdog writes.
const CurrentSchemaVersion = "2.0"

// StoreDocument is the entire persisted state, keyed by chat ID.
type StoreDocument struct {
	SchemaVersion string              `json:"schema_version"`
	UpdatedAt     string              `json:"updated_at"`
	Data          map[string]UserData `json:"data"`

	// Order preserves deterministic user-iteration order across a plain
	// map, which Go does not otherwise guarantee.
	Order []string `json:"-"`
}

// NewStoreDocument wraps data with the current schema version and the
// given key order; a nil order is replaced by the map's keys, sorted.
func NewStoreDocument(data map[string]UserData, order []string) StoreDocument {
	if order == nil {
		order = make([]string, 0, len(data))
		for k := range data {
			order = append(order, k)
		}
		sort.Strings(order)
	}
	return StoreDocument{
		SchemaVersion: CurrentSchemaVersion,
		Data:          data,
		Order:         order,
	}
}

// OrderedChatIDs returns chat IDs in deterministic order: the recorded
// Order first (filtered to keys still present), then any remaining keys
// sorted, so newly-added users still iterate deterministically.
func (s *StoreDocument) OrderedChatIDs() []string {
	seen := make(map[string]bool, len(s.Data))
	out := make([]string, 0, len(s.Data))
	for _, id := range s.Order {
		if _, ok := s.Data[id]; ok && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range s.Data {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
