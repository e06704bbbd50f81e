package fingerprint

import (
	"errors"
	"testing"
)

func TestIsBlockPageDetectsTitle(t *testing.T) {
	html := `<html><head><title>Just a moment...</title></head><body>checking your browser</body></html>`
	if !IsBlockPage(html) {
		t.Fatal("expected block page to be detected via title")
	}
}

func TestIsBlockPageDetectsBodyIndicator(t *testing.T) {
	html := `<html><body><p>Please complete the captcha to continue.</p></body></html>`
	if !IsBlockPage(html) {
		t.Fatal("expected block page to be detected via body indicator")
	}
}

func TestIsBlockPageAllowsNormalContent(t *testing.T) {
	html := `<html><head><title>Welcome</title></head><body><article><p>Hello world, nothing suspicious here.</p></article></body></html>`
	if IsBlockPage(html) {
		t.Fatal("expected ordinary content not to be flagged as a block page")
	}
}

func TestGenerateReturnsBlockPageError(t *testing.T) {
	html := `<html><body>Attention Required! | Cloudflare</body></html>`
	_, err := Generate(html)
	var blockErr *ErrBlockPage
	if !errors.As(err, &blockErr) {
		t.Fatalf("expected ErrBlockPage, got %v", err)
	}
}

func TestGenerateStableAcrossNoise(t *testing.T) {
	h1 := `<html><body><article><p>Report generated 2026-01-01</p><p>Session ID: abc123</p></article></body></html>`
	h2 := `<html><body><article><p>Report generated 2026-06-15</p><p>Session ID: xyz999</p></article></body></html>`

	fp1, err := Generate(h1)
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Generate(h2)
	if err != nil {
		t.Fatal(err)
	}

	if fp1.Hash != fp2.Hash {
		t.Fatalf("expected noise-only differences to hash identically, got %q vs %q", fp1.Hash, fp2.Hash)
	}
	if fp1.Version != Version || fp1.Algorithm != Algorithm {
		t.Fatalf("expected version/algorithm to be stamped, got %q/%q", fp1.Version, fp1.Algorithm)
	}
}

func TestGenerateDetectsRealChange(t *testing.T) {
	h1 := `<html><body><article><p>The price is $10.</p></article></body></html>`
	h2 := `<html><body><article><p>The price is $99.</p></article></body></html>`

	fp1, err := Generate(h1)
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Generate(h2)
	if err != nil {
		t.Fatal(err)
	}
	if fp1.Hash == fp2.Hash {
		t.Fatal("expected a real content change to produce a different hash")
	}
}

func TestGenerateSkipsBoilerplateTags(t *testing.T) {
	withNav := `<html><body><nav>Home About Contact</nav><article><p>Main content here.</p></article></body></html>`
	withoutNav := `<html><body><article><p>Main content here.</p></article></body></html>`

	fp1, err := Generate(withNav)
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Generate(withoutNav)
	if err != nil {
		t.Fatal(err)
	}
	if fp1.Hash != fp2.Hash {
		t.Fatal("expected nav content to be excluded from the stable-text hash")
	}
}

func TestGenerateCountsStructuralTags(t *testing.T) {
	html := `<html><body><div><p>one</p><p>two</p></div><span>x</span></body></html>`
	fp, err := Generate(html)
	if err != nil {
		t.Fatal(err)
	}
	if fp.ContentWeights["p"] != 2 {
		t.Fatalf("expected 2 <p> tags counted, got %v", fp.ContentWeights["p"])
	}
	if fp.ContentWeights["div"] != 1 {
		t.Fatalf("expected 1 <div> tag counted, got %v", fp.ContentWeights["div"])
	}
}
