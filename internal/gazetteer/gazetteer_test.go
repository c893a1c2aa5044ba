package gazetteer

import "testing"

func TestNormalizePlaceName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Tokyo ", "tokyo"},
		{"Côte d'Ivoire", "côte d ivoire"},
		{"United  States", "united states"},
		{"St. John's, Newfoundland", "st john s newfoundland"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizePlaceName(c.in); got != c.want {
			t.Fatalf("NormalizePlaceName(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePlaceName_Idempotent(t *testing.T) {
	inputs := []string{"Côte d'Ivoire", "New Zealand", "São Paulo"}
	for _, in := range inputs {
		once := NormalizePlaceName(in)
		if twice := NormalizePlaceName(once); once != twice {
			t.Fatalf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestAmbiguousFallback(t *testing.T) {
	georgia := ambiguousFallback("georgia")
	if len(georgia) != 2 {
		t.Fatalf("georgia fallback: got %d entries", len(georgia))
	}
	if georgia[0].CountryCode != "GE" || georgia[1].CountryCode != "US" {
		t.Fatalf("georgia fallback order: %s then %s", georgia[0].CountryCode, georgia[1].CountryCode)
	}

	congo := ambiguousFallback("congo")
	if len(congo) != 2 {
		t.Fatalf("congo fallback: got %d entries", len(congo))
	}

	if got := ambiguousFallback("tokyo"); got != nil {
		t.Fatalf("unexpected fallback for tokyo: %+v", got)
	}
}
