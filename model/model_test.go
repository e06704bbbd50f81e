package model

import "testing"

func TestNewConfigClamps(t *testing.T) {
	cases := []struct {
		name string
		in   Config
		want Config
	}{
		{"zero threshold clamps up", Config{SimilarityThreshold: 0, CheckInterval: 60_000_000_000}, Config{SimilarityThreshold: 0.01, CheckInterval: 60_000_000_000}},
		{"over one clamps down", Config{SimilarityThreshold: 1.5, CheckInterval: 60_000_000_000}, Config{SimilarityThreshold: 1.0, CheckInterval: 60_000_000_000}},
		{"short interval clamps to 30s", Config{SimilarityThreshold: 0.85, CheckInterval: 1_000_000_000}, Config{SimilarityThreshold: 0.85, CheckInterval: 30_000_000_000}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := NewConfig(c.in)
			if got.SimilarityThreshold != c.want.SimilarityThreshold {
				t.Errorf("SimilarityThreshold: got %v, want %v", got.SimilarityThreshold, c.want.SimilarityThreshold)
			}
			if got.CheckInterval != c.want.CheckInterval {
				t.Errorf("CheckInterval: got %v, want %v", got.CheckInterval, c.want.CheckInterval)
			}
		})
	}
}

func TestMonitorAddSnapshotRotates(t *testing.T) {
	m := &Monitor{}
	for i := 0; i < 5; i++ {
		m.AddSnapshot(ForensicSnapshot{Timestamp: string(rune('a' + i))})
	}
	if len(m.ForensicSnapshots) != 3 {
		t.Fatalf("forensic snapshots: got %d, want 3", len(m.ForensicSnapshots))
	}
	// Oldest two (a, b) should have been evicted; c, d, e remain.
	if m.ForensicSnapshots[0].Timestamp != string(rune('a'+2)) {
		t.Errorf("oldest remaining: got %q, want %q", m.ForensicSnapshots[0].Timestamp, string(rune('a'+2)))
	}
}

func TestEffectiveConfig(t *testing.T) {
	userDefault := DefaultConfig()
	m := Monitor{}
	if got := m.EffectiveConfig(userDefault); got != userDefault {
		t.Errorf("expected user default when monitor has no override")
	}

	override := NewConfig(Config{SimilarityThreshold: 0.5, CheckInterval: 120_000_000_000})
	m.Config = &override
	if got := m.EffectiveConfig(userDefault); got != override {
		t.Errorf("expected monitor override, got %+v", got)
	}
}

func TestOrderedChatIDsPreservesOrderThenSortsNew(t *testing.T) {
	doc := StoreDocument{
		Data: map[string]UserData{
			"c": {}, "a": {}, "b": {},
		},
		Order: []string{"b", "a"},
	}
	got := doc.OrderedChatIDs()
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFingerprintEqual(t *testing.T) {
	a := &Fingerprint{Hash: "abc"}
	b := &Fingerprint{Hash: "abc"}
	c := &Fingerprint{Hash: "def"}
	if !a.Equal(b) {
		t.Error("expected equal hashes to be equal")
	}
	if a.Equal(c) {
		t.Error("expected different hashes to not be equal")
	}
	if a.Equal(nil) {
		t.Error("nil should never be equal")
	}
}
