// Package fingerprint turns raw HTML into a stable, comparable
// representation of a page's meaningful content: a block-page check, a
// noise-stripped text hash, and a tag-frequency structural profile.
// Grounded on extract.Extract's parse → clean → extract pipeline
// (golang.org/x/net/html + atom, boilerplate-tag skipping), reworked
// per original_source/webdog_bot/fingerprinter.go's exact block
// indicators, noise patterns, and weighted-semantic-v2 algorithm name.
package fingerprint

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/webdog/model"
)

// Version and Algorithm identify the fingerprint format written into
// every model.Fingerprint this package produces.
const (
	Version   = "v2.0"
	Algorithm = "weighted_semantic_v2"
)

// ErrBlockPage is returned by Generate when the HTML looks like a bot
// challenge rather than real page content.
type ErrBlockPage struct {
	Indicator string
}

func (e *ErrBlockPage) Error() string {
	return fmt.Sprintf("fingerprint: block page detected (%q)", e.Indicator)
}

// blockIndicators are substrings whose presence anywhere in the lowercased
// page implies a bot-challenge page rather than real content.
var blockIndicators = []string{
	"cloudflare",
	"ddos-guard",
	"captcha",
	"please verify you are human",
	"just a moment...",
	"access denied",
	"security check",
	"attention required",
	"ray id",
}

// blockTitleIndicators are checked against the <title> text specifically,
// since a title hit is a stronger signal than a body-text hit.
var blockTitleIndicators = []string{
	"access denied", "blocked", "security check", "captcha", "just a moment",
}

// noisePattern strips dynamic substrings (dates, session/ray IDs, tokens,
// countdowns, copyright years) that would otherwise make two fetches of
// an unchanged page hash differently.
var noisePattern = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`\d{4}-\d{2}-\d{2}`,
	`\d{2}/\d{2}/\d{4}`,
	`\d{1,2}:\d{2}(:\d{2})?`,
	`session[\s_-]?id\s*[:=]\s*[\w-]+`,
	`ray\s*id\s*[:=]\s*\w+`,
	`last updated\s*[:]?.*`,
	`copyright\s*©\s*\d{4}`,
	`time remaining:.*`,
	`token\s*[:=]\s*[\w-]+`,
}, "|"))

// structuralTags is the fixed vocabulary counted into a fingerprint's
// content-weight profile.
var structuralTags = []atom.Atom{
	atom.Div, atom.P, atom.Span, atom.H1, atom.H2, atom.H3,
	atom.Table, atom.Ul, atom.Li, atom.Article, atom.Section, atom.Nav,
}

// IsBlockPage reports whether html looks like a bot-challenge page,
// checking the title first (cheaper, more precise) and falling back to
// a raw substring scan of the whole document.
func IsBlockPage(rawHTML string) bool {
	lower := strings.ToLower(rawHTML)

	if doc, err := html.Parse(strings.NewReader(rawHTML)); err == nil {
		title := strings.ToLower(findTitle(doc))
		for _, ind := range blockTitleIndicators {
			if strings.Contains(title, ind) {
				return true
			}
		}
	}

	for _, ind := range blockIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// Generate produces the fingerprint for a fetched page's HTML. It
// returns *ErrBlockPage if the page appears to be a bot challenge
// rather than real content — callers should treat this as "fetch
// again later", never as a content change.
func Generate(rawHTML string) (model.Fingerprint, error) {
	if IsBlockPage(rawHTML) {
		return model.Fingerprint{}, &ErrBlockPage{Indicator: firstMatchingIndicator(rawHTML)}
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return model.Fingerprint{}, fmt.Errorf("fingerprint: parse: %w", err)
	}

	stable := extractStableText(doc)
	sum := md5.Sum([]byte(stable))

	return model.Fingerprint{
		Hash:               fmt.Sprintf("%x", sum),
		Version:            Version,
		Algorithm:          Algorithm,
		ContentWeights:     tagCounts(doc),
		StructureSignature: "",
	}, nil
}

func firstMatchingIndicator(rawHTML string) string {
	lower := strings.ToLower(rawHTML)
	for _, ind := range blockIndicators {
		if strings.Contains(lower, ind) {
			return ind
		}
	}
	return "title"
}

func findTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// extractStableText walks the parsed document, skipping script/style/
// meta/link/noscript/iframe/svg subtrees and nav/footer/header/aside
// subtrees (low-value boilerplate), applies the noise regex to each
// remaining text node, and joins the survivors with a single space into
// one canonical string for hashing.
func extractStableText(doc *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Meta, atom.Link, atom.Noscript, atom.Iframe, atom.Svg,
				atom.Nav, atom.Footer, atom.Header, atom.Aside:
				return
			}
		}
		if n.Type == html.CommentNode {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				clean := strings.TrimSpace(noisePattern.ReplaceAllString(text, ""))
				if len(clean) > 2 {
					parts = append(parts, clean)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " ")
}

// tagCounts counts occurrences of structuralTags anywhere in the
// document, independent of the boilerplate skip applied to text
// extraction — the similarity engine's structural score wants the
// document's whole shape, nav included.
func tagCounts(doc *html.Node) map[string]float64 {
	counts := make(map[string]float64)
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
