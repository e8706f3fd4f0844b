package eventbus

import "testing"

func TestPublishFansOutAndDrops(t *testing.T) {
	t.Parallel()

	b := New()
	fast, unsubFast := b.Subscribe(4)
	slow, unsubSlow := b.Subscribe(1)
	defer unsubFast()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TypeTickCompleted, Data: i})
	}
	if len(fast) != 3 {
		t.Fatalf("fast subscriber got %d events", len(fast))
	}
	if len(slow) != 1 {
		t.Fatalf("slow subscriber got %d events", len(slow))
	}
	if Dropped(b) != 2 {
		t.Fatalf("dropped = %d", Dropped(b))
	}
	ev := <-fast
	if ev.Time.IsZero() || ev.Type != TypeTickCompleted {
		t.Fatalf("unexpected event %+v", ev)
	}

	unsubSlow()
	unsubSlow()
	b.Publish(Event{Type: TypeMatchEvent})
}

func TestPublishNilBus(t *testing.T) {
	t.Parallel()
	Publish(nil, TypeMatchEvent, nil)
}
