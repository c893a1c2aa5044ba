package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evhagen/sitmon/internal/bus"
)

func TestSSE_HeartbeatFirstThenEvents(t *testing.T) {
	a, _ := newTestAPI(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		a.Router().ServeHTTP(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for a.bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.bus.Publish(bus.Event{
		Type: "incident.created",
		Data: map[string]any{"incident_id": "inc-1"},
	})

	// Give the handler a moment to drain the event before closing.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not stop on disconnect")
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: heartbeat\ndata: {}\n\n") {
		t.Fatalf("first frame is not the heartbeat: %q", body)
	}
	if !strings.Contains(body, "event: incident.created\n") {
		t.Fatalf("event frame missing: %q", body)
	}
	if !strings.Contains(body, `"incident_id":"inc-1"`) {
		t.Fatalf("event payload missing: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("cache control: got %q", cc)
	}
	if a.bus.SubscriberCount() != 0 {
		t.Fatalf("subscriber not released on disconnect")
	}
}
