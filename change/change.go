// Package change turns two page renderings into a human-readable diff
// and a compressed forensic snapshot. Grounded on
// original_source/webdog_bot/change_detector.py: unified diff with
// Previous/Current headers, a 3000-character safety cap cut on the
// last newline with an appended stats summary, and a 3-snapshot
// rotating forensic history per monitor. Compression uses stdlib
// compress/flate — no library in the example corpus offers a
// zlib/deflate-compatible codec, and matching the original's own
// compressed-size-over-fidelity tradeoff doesn't call for one.
package change

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hazyhaar/webdog/model"
)

const maxDiffLength = 3000

// SafeDiff produces a unified, Telegram-safe diff string between two
// text renderings. Missing input on either side, or no difference at
// all, short-circuits to an explanatory sentence instead of an empty
// diff block.
func SafeDiff(oldText, newText string) string {
	if oldText == "" || newText == "" {
		return "No history available for diff."
	}

	diffText := unifiedDiff(oldText, newText)
	if diffText == "" {
		return "No differences found."
	}

	if len(diffText) <= maxDiffLength {
		return fmt.Sprintf("```diff\n%s\n```", diffText)
	}

	added, removed := countChangedLines(diffText)
	truncated := diffText[:maxDiffLength]
	if idx := strings.LastIndexByte(truncated, '\n'); idx > 0 {
		truncated = truncated[:idx]
	}

	summary := fmt.Sprintf(
		"\n... (Diff Truncated)\n"+
			"Stats: +%d lines, -%d lines.\n"+
			"Check the dashboard for full forensic details.",
		added, removed,
	)

	return fmt.Sprintf("```diff\n%s\n```\n%s", truncated, summary)
}

// unifiedDiff builds a minimal unified diff (Previous/Current headers)
// using a line-level LCS alignment. Every line of both texts is listed,
// unchanged ones with a leading space; there are no hunk headers
// (@@ ... @@) and unchanged lines are not trimmed to a context window —
// the output is consumed only for its +/- line content and length,
// never reparsed.
func unifiedDiff(oldText, newText string) string {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	ops := diffLines(oldLines, newLines)
	if len(ops) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("--- Previous\n")
	b.WriteString("+++ Current\n")
	for _, op := range ops {
		b.WriteString(op)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// diffLines returns a sequence of " line", "-line", "+line" entries
// describing how to turn oldLines into newLines, via an LCS table
// followed by a backtrack over it.
func diffLines(oldLines, newLines []string) []string {
	n, m := len(oldLines), len(newLines)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var ops []string
	i, j := 0, 0
	changed := false
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			ops = append(ops, " "+oldLines[i])
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, "-"+oldLines[i])
			i++
			changed = true
		default:
			ops = append(ops, "+"+newLines[j])
			j++
			changed = true
		}
	}
	for ; i < n; i++ {
		ops = append(ops, "-"+oldLines[i])
		changed = true
	}
	for ; j < m; j++ {
		ops = append(ops, "+"+newLines[j])
		changed = true
	}
	if !changed {
		return nil
	}
	return ops
}

func countChangedLines(diffText string) (added, removed int) {
	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}

// NewForensicSnapshot compresses content with DEFLATE and base64-encodes
// it for JSON storage, stamping the current time and change type.
func NewForensicSnapshot(content string, changeType model.ChangeType, now time.Time) (model.ForensicSnapshot, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return model.ForensicSnapshot{}, fmt.Errorf("change: new flate writer: %w", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return model.ForensicSnapshot{}, fmt.Errorf("change: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return model.ForensicSnapshot{}, fmt.Errorf("change: flush compress: %w", err)
	}

	return model.ForensicSnapshot{
		Timestamp:         now.UTC().Format(time.RFC3339),
		ChangeType:        changeType,
		CompressedContent: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// DecompressSnapshot reverses NewForensicSnapshot.
func DecompressSnapshot(snap model.ForensicSnapshot) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(snap.CompressedContent)
	if err != nil {
		return "", fmt.Errorf("change: decode base64: %w", err)
	}
	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("change: decompress: %w", err)
	}
	return string(out), nil
}

// AppendSnapshot appends a forensic snapshot to a monitor and evicts
// the oldest entries past the 3-snapshot retention limit.
func AppendSnapshot(monitor *model.Monitor, content string, changeType model.ChangeType, now time.Time) error {
	snap, err := NewForensicSnapshot(content, changeType, now)
	if err != nil {
		return err
	}
	monitor.AddSnapshot(snap)
	return nil
}
