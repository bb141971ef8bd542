package eventbridge

import (
	"testing"
)

func TestRouterBuffersAndFlushes(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(4))
	first := Event{EventID: "evt-1", BlockID: "alpha", Type: TypeProgress}
	second := Event{EventID: "evt-2", BlockID: "ALPHA", Type: TypeCompleted, Handle: "h"}
	router.Route(first)
	router.Route(second)
	if router.Backlog("alpha") != 2 {
		t.Fatalf("expected 2 buffered events, got %d", router.Backlog("alpha"))
	}
	sub := router.Subscribe("alpha")
	defer sub.Close()
	got1 := <-sub.Events
	if got1.EventID != first.EventID {
		t.Fatalf("expected first buffered event, got %s", got1.EventID)
	}
	got2 := <-sub.Events
	if got2.EventID != second.EventID {
		t.Fatalf("expected second buffered event, got %s", got2.EventID)
	}
	if router.Backlog("alpha") != 0 {
		t.Fatalf("backlog not drained")
	}
}

func TestRouterBacklogLimit(t *testing.T) {
	router := NewRouter(RouterWithBacklogLimit(2))
	for _, id := range []string{"a", "b", "c"} {
		router.Route(Event{EventID: id, BlockID: "blk", Type: TypeProgress})
	}
	sub := router.Subscribe("blk")
	defer sub.Close()
	if got := <-sub.Events; got.EventID != "b" {
		t.Fatalf("expected oldest backlog entry dropped, got %s", got.EventID)
	}
}

func TestRouterDedupeByEventID(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe("alpha")
	defer sub.Close()
	event := Event{EventID: "evt-1", BlockID: "alpha", Type: TypeCompleted, Handle: "h"}
	router.Route(event)
	router.Route(event)
	select {
	case got := <-sub.Events:
		if got.EventID != event.EventID {
			t.Fatalf("unexpected event: %s", got.EventID)
		}
	default:
		t.Fatalf("expected first delivery")
	}
	select {
	case <-sub.Events:
		t.Fatalf("duplicate event delivered")
	default:
	}
}

func TestRouterDropsOldestProgressOnOverflow(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(1))
	sub := router.Subscribe("alpha")
	defer sub.Close()
	oldest := Event{EventID: "evt-1", BlockID: "alpha", Type: TypeProgress}
	critical := Event{EventID: "evt-2", BlockID: "alpha", Type: TypeCompleted, Handle: "h"}
	router.Route(oldest)
	router.Route(critical)
	if got := <-sub.Events; got.EventID != critical.EventID {
		t.Fatalf("expected completion to replace progress, got %s", got.EventID)
	}
}

func TestRouterDropsIncomingWhenOldestCritical(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(1))
	sub := router.Subscribe("alpha")
	defer sub.Close()
	oldest := Event{EventID: "evt-1", BlockID: "alpha", Type: TypeCompleted, Handle: "h"}
	droppable := Event{EventID: "evt-2", BlockID: "alpha", Type: TypeProgress}
	router.Route(oldest)
	router.Route(droppable)
	if got := <-sub.Events; got.EventID != oldest.EventID {
		t.Fatalf("expected oldest completion to remain, got %s", got.EventID)
	}
	select {
	case <-sub.Events:
		t.Fatalf("unexpected extra event")
	default:
	}
}

func TestRouterIgnoresEventsWithoutBlock(t *testing.T) {
	router := NewRouter()
	router.Route(Event{EventID: "evt", Type: TypeProgress})
	if router.Backlog("") != 0 {
		t.Fatalf("event without block should be dropped")
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe("alpha")
	sub.Close()
	sub.Close()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel")
	}
	router.Route(Event{EventID: "late", BlockID: "alpha", Type: TypeProgress})
	if router.Backlog("alpha") != 1 {
		t.Fatalf("events after close should be backlogged")
	}
}
