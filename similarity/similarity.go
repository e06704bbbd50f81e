// Package similarity scores how much two page renderings differ,
// combining word-level, character-level, and structural signals
// (Jaccard word overlap, a SequenceMatcher-style ratio, and HTML
// tag-frequency comparison) into a single classification, using
// golang.org/x/net/html and atom for tag traversal.
package similarity

import (
	"math"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/webdog/model"
)

// Weights applied to each signal when combining into Metrics.FinalScore.
const (
	WeightJaccard     = 0.4
	WeightLevenshtein = 0.4
	WeightSemantic    = 0.2

	ThresholdUITweak       = 0.95
	ThresholdContentUpdate = 0.70
)

// Metrics is the result of comparing two page renderings.
type Metrics struct {
	Jaccard     float64
	Levenshtein float64
	Semantic    float64
	FinalScore  float64
}

// structuralTags mirrors fingerprint's fixed tag vocabulary; duplicated
// rather than imported so similarity can compare raw HTML independent
// of fingerprint's boilerplate-skipping text extraction.
var structuralTags = []atom.Atom{
	atom.Div, atom.P, atom.Span, atom.H1, atom.H2, atom.H3,
	atom.Table, atom.Ul, atom.Li, atom.Article, atom.Section, atom.Nav,
}

// Jaccard computes word-set overlap: intersection over union of the
// lowercased whitespace-split tokens of each text. Two empty texts are
// defined as identical.
func Jaccard(a, b string) float64 {
	set1 := wordSet(a)
	set2 := wordSet(b)

	intersection := 0
	for w := range set1 {
		if set2[w] {
			intersection++
		}
	}
	union := len(set1)
	for w := range set2 {
		if !set1[w] {
			union++
		}
	}
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}

// Levenshtein returns a SequenceMatcher-style similarity ratio in
// [0, 1]: 2*M / (len(a)+len(b)), where M is the length of the longest
// common subsequence of runes. Two empty strings are identical.
func Levenshtein(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	m := lcsLength(ra, rb)
	return 2 * float64(m) / float64(len(ra)+len(rb))
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// StructuralScore compares the tag-frequency "shape" of two HTML
// documents: 1 - (sum of absolute per-tag count differences) / (sum of
// all counts). Identical documents (or two with no structural tags at
// all) score 1.0.
func StructuralScore(htmlA, htmlB string) float64 {
	countsA := tagCounts(htmlA)
	countsB := tagCounts(htmlB)

	allTags := make(map[string]bool)
	for t := range countsA {
		allTags[t] = true
	}
	for t := range countsB {
		allTags[t] = true
	}
	if len(allTags) == 0 {
		return 1.0
	}

	var totalDiff, totalCount float64
	for t := range allTags {
		c1, c2 := countsA[t], countsB[t]
		totalDiff += math.Abs(c1 - c2)
		totalCount += c1 + c2
	}
	if totalCount == 0 {
		return 1.0
	}
	return 1.0 - totalDiff/totalCount
}

func tagCounts(rawHTML string) map[string]float64 {
	counts := make(map[string]float64)
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return counts
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range structuralTags {
				if n.DataAtom == a {
					counts[a.String()]++
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return counts
}

// round4 rounds to 4 decimal places, matching original_source's
// round(x, 4) scoring precision.
func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

// Compare runs the full multi-signal comparison between two page
// renderings' stable text and raw HTML.
func Compare(oldText, newText, oldHTML, newHTML string) Metrics {
	jaccard := Jaccard(oldText, newText)
	levenshtein := Levenshtein(oldText, newText)
	semantic := StructuralScore(oldHTML, newHTML)

	final := jaccard*WeightJaccard + levenshtein*WeightLevenshtein + semantic*WeightSemantic

	return Metrics{
		Jaccard:     round4(jaccard),
		Levenshtein: round4(levenshtein),
		Semantic:    round4(semantic),
		FinalScore:  round4(final),
	}
}

// CalculateFromFingerprints scores two fingerprints using only their
// structural content-weight profiles — used when the original page
// text isn't retained, only its fingerprint. If the structural score
// comes out perfect (1.0) but the hashes differ, the score is clamped
// to 0.80 to signal a text-only change the tag-count comparison cannot
// otherwise see. When neither fingerprint carries any content weights
// (as with migrated legacy fingerprints), FinalScore is 1.0 and no clamp
// is applied.
func CalculateFromFingerprints(fp1, fp2 *model.Fingerprint) Metrics {
	if fp1.Hash == fp2.Hash {
		return Metrics{FinalScore: 1.0, Semantic: 1.0}
	}

	allKeys := make(map[string]bool)
	for k := range fp1.ContentWeights {
		allKeys[k] = true
	}
	for k := range fp2.ContentWeights {
		allKeys[k] = true
	}
	if len(allKeys) == 0 {
		return Metrics{FinalScore: 1.0}
	}

	var totalDiff, totalCount float64
	for k := range allKeys {
		v1 := fp1.ContentWeights[k]
		v2 := fp2.ContentWeights[k]
		totalDiff += math.Abs(v1 - v2)
		totalCount += v1 + v2
	}

	semantic := 1.0
	if totalCount > 0 {
		semantic = 1.0 - totalDiff/totalCount
	}

	final := semantic
	if final >= 1.0 && fp1.Hash != fp2.Hash {
		final = 0.80
	}

	return Metrics{
		Semantic:   round4(semantic),
		FinalScore: round4(final),
	}
}

// Classify maps a final similarity score to a magnitude-of-change bucket.
func Classify(score float64) model.ChangeType {
	switch {
	case score >= ThresholdUITweak:
		return model.ChangeUITweak
	case score >= ThresholdContentUpdate:
		return model.ChangeContentUpdate
	default:
		return model.ChangeMajorOverhaul
	}
}

// ShouldAlert reports whether score (similarity, not difference) falls
// far enough below the user's threshold to warrant notifying them.
func ShouldAlert(score, userThreshold float64) bool {
	return score < userThreshold
}
