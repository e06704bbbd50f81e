package fetch

import "testing"

func TestNormalizeURLStripsTrackingParams(t *testing.T) {
	n1, err := NormalizeURL("https://example.com?utm_source=twitter")
	if err != nil {
		t.Fatal(err)
	}
	n2, err := NormalizeURL("https://example.com?fbclid=12345")
	if err != nil {
		t.Fatal(err)
	}
	if n1 != n2 {
		t.Fatalf("expected normalized URLs to match, got %q and %q", n1, n2)
	}
	if want := "https://example.com"; n1 != want {
		t.Fatalf("got %q, want %q", n1, want)
	}
}

func TestNormalizeURLSortsRemainingParams(t *testing.T) {
	n1, err := NormalizeURL("https://Example.com/page?b=2&a=1")
	if err != nil {
		t.Fatal(err)
	}
	n2, err := NormalizeURL("https://example.com/page?a=1&b=2")
	if err != nil {
		t.Fatal(err)
	}
	if n1 != n2 {
		t.Fatalf("expected order-invariant normalization, got %q and %q", n1, n2)
	}
}

func TestHostKey(t *testing.T) {
	key, err := HostKey("https://example.com/page?a=1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "https://example.com"; key != want {
		t.Fatalf("got %q, want %q", key, want)
	}
}
