package eventbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

type nullBackend struct {
	apps []timeline.Application
}

func (b *nullBackend) Apply(_ context.Context, app timeline.Application) (time.Duration, error) {
	b.apps = append(b.apps, app)
	return app.Action.Duration(), nil
}

func (b *nullBackend) Commit(context.Context, func()) error { return nil }

func committedBlock(t *testing.T, names ...string) (*timeline.Block, timeline.Schedule) {
	t.Helper()
	session, err := timeline.NewSession(&nullBackend{})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	block, err := session.Open(time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, name := range names {
		if _, err := block.AppendAction(timeline.Effect{Name: name}, timeline.WithLabel(name)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	sched, err := block.Commit(context.Background())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return block, sched
}

func TestForwardCompletesBlock(t *testing.T) {
	block, sched := committedBlock(t, "move", "fade")
	router := NewRouter()
	for i, entry := range sched.Entries {
		router.Route(Event{EventID: entry.Handle, BlockID: block.ID(), Type: TypeCompleted, Handle: entry.Handle})
		if i == 0 {
			router.Route(Event{EventID: "bogus", BlockID: block.ID(), Type: TypeCompleted, Handle: "nope"})
			router.Route(Event{EventID: "tick", BlockID: block.ID(), Type: TypeProgress})
		}
	}
	sub := router.Subscribe(block.ID())
	defer sub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Forward(ctx, sub, block, nil); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if block.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", block.Pending())
	}
}

func TestForwardStopsOnAbortAndCancel(t *testing.T) {
	block, _ := committedBlock(t, "move")
	router := NewRouter()
	router.Route(Event{EventID: "abort", BlockID: block.ID(), Type: TypeAborted})
	sub := router.Subscribe(block.ID())
	if err := Forward(context.Background(), sub, block, nil); !errors.Is(err, ErrBlockAborted) {
		t.Fatalf("expected ErrBlockAborted, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Forward(ctx, sub, block, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	sub.Close()
	if err := Forward(context.Background(), sub, block, nil); err == nil {
		t.Fatalf("expected error on closed subscription")
	}
}
