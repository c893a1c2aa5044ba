package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKey_StableAndDistinct(t *testing.T) {
	a := Key("usgs_all_day", "abc123")
	b := Key("usgs_all_day", "abc123")
	if a != b {
		t.Fatalf("key not stable: %q != %q", a, b)
	}
	if Key("usgs_all_day", "abc123") == Key("usgs_all_day", "abc124") {
		t.Fatalf("distinct inputs collided")
	}
	// separator keeps ("ab","c") apart from ("a","bc")
	if Key("ab", "c") == Key("a", "bc") {
		t.Fatalf("boundary ambiguity")
	}
}

func TestNoopWindow_NeverFilters(t *testing.T) {
	w, err := New("none", "", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		seen, err := w.Seen(context.Background(), Key("src", "id"))
		if err != nil {
			t.Fatalf("Seen: %v", err)
		}
		if seen {
			t.Fatalf("noop driver filtered")
		}
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	if _, err := New("memcached", "", time.Hour); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestRedisWindow_MarksAndExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	w := NewRedisWindow(client, time.Hour)
	defer w.Close()

	ctx := context.Background()
	key := Key("gdacs", "event-42")

	seen, err := w.Seen(ctx, key)
	if err != nil {
		t.Fatalf("first Seen: %v", err)
	}
	if seen {
		t.Fatalf("fresh key reported as seen")
	}

	seen, err = w.Seen(ctx, key)
	if err != nil {
		t.Fatalf("second Seen: %v", err)
	}
	if !seen {
		t.Fatalf("repeat key not filtered")
	}

	mr.FastForward(2 * time.Hour)

	seen, err = w.Seen(ctx, key)
	if err != nil {
		t.Fatalf("Seen after expiry: %v", err)
	}
	if seen {
		t.Fatalf("expired key still filtered")
	}
}
