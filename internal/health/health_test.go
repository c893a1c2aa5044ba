package health

import "testing"

func TestBackoffSeconds_NoFailures(t *testing.T) {
	if got := BackoffSeconds(300, 0); got != 300 {
		t.Fatalf("no failures: got %d, want 300", got)
	}
}

func TestBackoffSeconds_Doubling(t *testing.T) {
	cases := []struct {
		failures int
		want     int
	}{
		{1, 600},
		{2, 1200},
		{3, 2400},
	}
	for _, c := range cases {
		if got := BackoffSeconds(300, c.failures); got != c.want {
			t.Fatalf("failures=%d: got %d, want %d", c.failures, got, c.want)
		}
	}
}

func TestBackoffSeconds_CappedAtOneHour(t *testing.T) {
	if got := BackoffSeconds(300, 4); got != 3600 {
		t.Fatalf("4 failures: got %d, want 3600", got)
	}
	if got := BackoffSeconds(300, 20); got != 3600 {
		t.Fatalf("20 failures: got %d, want 3600", got)
	}
	if got := BackoffSeconds(900, 10); got != 3600 {
		t.Fatalf("long interval: got %d, want 3600", got)
	}
}
