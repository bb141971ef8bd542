package timeline

import (
	"context"
	"time"
)

// Backend performs the timed effects. Any concrete animation engine
// implements it.
type Backend interface {
	// Apply issues one action at its resolved begin time and returns the
	// duration it will actually use. It must not wait for the effect.
	Apply(ctx context.Context, app Application) (time.Duration, error)
	// Commit flushes the batch applied since the last commit. done, when
	// non-nil, runs once the whole batch has finished.
	Commit(ctx context.Context, done func()) error
}

// Clock is implemented by backends that expose their rendering clock. The
// block origin is read from it at commit time.
type Clock interface {
	Now() time.Duration
}

// Application is the request handed to Backend.Apply.
type Application struct {
	Action *Action
	Begin  time.Duration
	// Handle identifies the effect for completion routing. Empty when the
	// action skips notification.
	Handle string
	// Done routes the completion back to the block. Nil when the action skips
	// notification.
	Done func()
}

// Notifies reports whether the backend is expected to call Done.
func (a Application) Notifies() bool {
	return a.Done != nil
}
