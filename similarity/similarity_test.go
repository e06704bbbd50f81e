package similarity

import (
	"testing"

	"github.com/hazyhaar/webdog/model"
)

func TestJaccardIdenticalText(t *testing.T) {
	if got := Jaccard("hello world", "hello world"); got != 1.0 {
		t.Fatalf("got %v, want 1.0", got)
	}
}

func TestJaccardBothEmpty(t *testing.T) {
	if got := Jaccard("", ""); got != 1.0 {
		t.Fatalf("got %v, want 1.0", got)
	}
}

func TestJaccardDisjoint(t *testing.T) {
	if got := Jaccard("apple banana", "cherry date"); got != 0.0 {
		t.Fatalf("got %v, want 0.0", got)
	}
}

func TestLevenshteinIdentical(t *testing.T) {
	if got := Levenshtein("abcdef", "abcdef"); got != 1.0 {
		t.Fatalf("got %v, want 1.0", got)
	}
}

func TestLevenshteinCompletelyDifferent(t *testing.T) {
	got := Levenshtein("aaaa", "bbbb")
	if got != 0.0 {
		t.Fatalf("got %v, want 0.0", got)
	}
}

func TestStructuralScoreIdentical(t *testing.T) {
	h := `<div><p>one</p><p>two</p></div>`
	if got := StructuralScore(h, h); got != 1.0 {
		t.Fatalf("got %v, want 1.0", got)
	}
}

func TestStructuralScoreNoTags(t *testing.T) {
	if got := StructuralScore("<html></html>", "<html></html>"); got != 1.0 {
		t.Fatalf("got %v, want 1.0", got)
	}
}

func TestCompareClassification(t *testing.T) {
	cases := []struct {
		name       string
		oldText    string
		newText    string
		oldHTML    string
		newHTML    string
		wantChange model.ChangeType
	}{
		{
			name:       "identical",
			oldText:    "the quick brown fox",
			newText:    "the quick brown fox",
			oldHTML:    "<p>the quick brown fox</p>",
			newHTML:    "<p>the quick brown fox</p>",
			wantChange: model.ChangeUITweak,
		},
		{
			name:       "totally different",
			oldText:    "alpha beta gamma delta",
			newText:    "zulu yankee xray whiskey",
			oldHTML:    "<article><p>alpha beta gamma delta</p></article>",
			newHTML:    "<div><span>zulu yankee xray whiskey</span></div>",
			wantChange: model.ChangeMajorOverhaul,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := Compare(tc.oldText, tc.newText, tc.oldHTML, tc.newHTML)
			got := Classify(metrics.FinalScore)
			if got != tc.wantChange {
				t.Fatalf("score %v classified as %v, want %v", metrics.FinalScore, got, tc.wantChange)
			}
		})
	}
}

func TestShouldAlert(t *testing.T) {
	if !ShouldAlert(0.80, 0.85) {
		t.Fatal("expected alert when score is below threshold")
	}
	if ShouldAlert(0.90, 0.85) {
		t.Fatal("expected no alert when score is above threshold")
	}
}

func TestCalculateFromFingerprintsSameHash(t *testing.T) {
	fp := &model.Fingerprint{Hash: "abc", ContentWeights: map[string]float64{"p": 3}}
	got := CalculateFromFingerprints(fp, fp)
	if got.FinalScore != 1.0 {
		t.Fatalf("got %v, want 1.0", got.FinalScore)
	}
}

func TestCalculateFromFingerprintsClampsOnStructuralMatch(t *testing.T) {
	fp1 := &model.Fingerprint{Hash: "aaa", ContentWeights: map[string]float64{"p": 3, "div": 1}}
	fp2 := &model.Fingerprint{Hash: "bbb", ContentWeights: map[string]float64{"p": 3, "div": 1}}

	got := CalculateFromFingerprints(fp1, fp2)
	if got.Semantic != 1.0 {
		t.Fatalf("expected perfect structural match, got semantic=%v", got.Semantic)
	}
	if got.FinalScore != 0.80 {
		t.Fatalf("expected clamp to 0.80 when structure matches but hash differs, got %v", got.FinalScore)
	}
}

func TestCalculateFromFingerprintsStructuralDrift(t *testing.T) {
	fp1 := &model.Fingerprint{Hash: "aaa", ContentWeights: map[string]float64{"p": 3}}
	fp2 := &model.Fingerprint{Hash: "bbb", ContentWeights: map[string]float64{"p": 1}}

	got := CalculateFromFingerprints(fp1, fp2)
	if got.FinalScore == 1.0 || got.FinalScore == 0.80 {
		t.Fatalf("expected an unclamped drifted score, got %v", got.FinalScore)
	}
}
