package bus

import "testing"

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	b := New()
	a := b.Subscribe()
	c := b.Subscribe()
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(c)

	b.Publish(Event{Type: "incident.created", Data: map[string]any{"incident_id": "x"}})

	for _, ch := range []chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != "incident.created" {
				t.Fatalf("event type: got %q", ev.Type)
			}
		default:
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestPublish_DropsOldestWhenFull(t *testing.T) {
	b := New()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < subscriberQueueSize; i++ {
		b.Publish(Event{Type: "fill", Data: map[string]any{"i": i}})
	}
	b.Publish(Event{Type: "newest", Data: map[string]any{}})

	if len(ch) != subscriberQueueSize {
		t.Fatalf("queue length: got %d, want %d", len(ch), subscriberQueueSize)
	}

	first := <-ch
	if first.Type != "fill" || first.Data["i"] != 1 {
		t.Fatalf("oldest not dropped: got %+v", first)
	}

	var last Event
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Type != "newest" {
		t.Fatalf("newest event lost: got %q", last.Type)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := New()
	ch := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("subscriber count: got %d", b.SubscriberCount())
	}
	b.Unsubscribe(ch)
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count after unsubscribe: got %d", b.SubscriberCount())
	}

	b.Publish(Event{Type: "ignored"})
	if len(ch) != 0 {
		t.Fatalf("unsubscribed channel received an event")
	}
}
