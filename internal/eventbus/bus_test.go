package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	cycles, unsub := b.Subscribe(4, "rotation.cycle")
	defer unsub()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: "command.audit"})
	b.Publish(Event{Type: "rotation.cycle", Data: 1})

	e := <-cycles
	if e.Type != "rotation.cycle" || e.Data != 1 || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
	select {
	case e := <-cycles:
		t.Fatalf("filtered subscriber got %+v", e)
	default:
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "x"})
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: "x"})
}
