package textsig

import "testing"

func TestNormalizeTitle_Basic(t *testing.T) {
	got := NormalizeTitle("  Hello,   World!! ")
	if got != "hello world" {
		t.Fatalf("NormalizeTitle: got %q, want %q", got, "hello world")
	}
}

func TestNormalizeTitle_Idempotent(t *testing.T) {
	inputs := []string{
		"  Hello,   World!! ",
		"M 4.5 - 12 km SSE of Honolulu, Hawaii",
		"Tornado Warning issued for Dallas County",
		"",
	}
	for _, in := range inputs {
		once := NormalizeTitle(in)
		twice := NormalizeTitle(once)
		if once != twice {
			t.Fatalf("NormalizeTitle not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCanonicalizeURL_StripsTracking(t *testing.T) {
	got := CanonicalizeURL("https://Example.com/path?a=1&utm_source=x&fbclid=y#frag")
	if got != "https://example.com/path?a=1" {
		t.Fatalf("CanonicalizeURL: got %q", got)
	}
}

func TestCanonicalizeURL_Idempotent(t *testing.T) {
	urls := []string{
		"https://Example.com/path?a=1&utm_source=x&fbclid=y#frag",
		"https://earthquake.usgs.gov/earthquakes/eventpage/us7000abcd",
		"https://news.example.org/story?id=42&ref=home",
	}
	for _, u := range urls {
		once := CanonicalizeURL(u)
		twice := CanonicalizeURL(once)
		if once != twice {
			t.Fatalf("CanonicalizeURL not idempotent for %q: %q != %q", u, once, twice)
		}
	}
}

func TestCanonicalizeURL_DropsAllTrackingKeys(t *testing.T) {
	got := CanonicalizeURL("https://example.com/?gclid=1&mc_cid=2&mc_eid=3&mkt_tok=4&utm_medium=5&keep=6")
	if got != "https://example.com/?keep=6" {
		t.Fatalf("CanonicalizeURL: got %q", got)
	}
}

func TestSimHash_Deterministic(t *testing.T) {
	a := SimHash64("earthquake near tokyo")
	b := SimHash64("earthquake near tokyo")
	if a != b {
		t.Fatalf("SimHash64 not deterministic: %x != %x", a, b)
	}
	if SimHash64("") != 0 {
		t.Fatalf("SimHash64 of empty text should be 0")
	}
}

func TestSimHash_DistanceSanity(t *testing.T) {
	a := SimHash64("earthquake near tokyo")
	b := SimHash64("earthquake near tokyo japan")
	c := SimHash64("sports results premier league")
	if d := HammingDistance(a, b); d > 12 {
		t.Fatalf("similar texts too far apart: %d", d)
	}
	if d := HammingDistance(a, c); d <= 12 {
		t.Fatalf("unrelated texts too close: %d", d)
	}
}

func TestSimHash_StoredRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 1 << 63, ^uint64(0), 0x711c51de07f620ad}
	for _, v := range values {
		if got := StoredToSimHash(SimHashToStored(v)); got != v {
			t.Fatalf("round trip failed for %x: got %x", v, got)
		}
	}
}

func TestBucket_TopBits(t *testing.T) {
	if got := Bucket(0x711c51de07f620ad); got != 0x711c {
		t.Fatalf("Bucket: got %04x", got)
	}
}

func TestTokenJaccard(t *testing.T) {
	if got := TokenJaccard("a b c", "a b c"); got != 1.0 {
		t.Fatalf("identical texts: got %f", got)
	}
	if got := TokenJaccard("a b", "c d"); got != 0.0 {
		t.Fatalf("disjoint texts: got %f", got)
	}
	got := TokenJaccard("flood warning lisbon", "flood warning porto")
	if got < 0.49 || got > 0.51 {
		t.Fatalf("partial overlap: got %f, want 0.5", got)
	}
	if got := TokenJaccard("", "anything"); got != 0.0 {
		t.Fatalf("empty text: got %f", got)
	}
}

func TestTokenSignature(t *testing.T) {
	got := TokenSignature("M 4.5 - 12 km SSE of Honolulu, Hawaii", 6)
	if got != "m 4 5 12 km sse" {
		t.Fatalf("TokenSignature: got %q", got)
	}
	if TokenSignature("", 6) != "" {
		t.Fatalf("TokenSignature of empty text should be empty")
	}
}
