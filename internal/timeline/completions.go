package timeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Completions maps effect handles back to their actions. Backends complete
// effects asynchronously, so the registry is safe for concurrent use.
type Completions struct {
	mu       sync.Mutex
	pending  map[string]*Action
	notifier CompletionNotifier
}

// NewCompletions returns an empty registry that forwards every completion to
// notifier (which may be nil).
func NewCompletions(notifier CompletionNotifier) *Completions {
	return &Completions{
		pending:  map[string]*Action{},
		notifier: notifier,
	}
}

func (c *Completions) register(a *Action) string {
	handle := uuid.NewString()
	c.mu.Lock()
	c.pending[handle] = a
	c.mu.Unlock()
	return handle
}

func (c *Completions) forget(handle string) {
	if handle == "" {
		return
	}
	c.mu.Lock()
	delete(c.pending, handle)
	c.mu.Unlock()
}

// Complete delivers the completion for handle exactly once: the action's own
// callback runs first, then the notifier.
func (c *Completions) Complete(handle string) error {
	c.mu.Lock()
	a, ok := c.pending[handle]
	if ok {
		delete(c.pending, handle)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	if a.onComplete != nil {
		a.onComplete(a)
	}
	if c.notifier != nil {
		c.notifier.OnComplete(a)
	}
	return nil
}

// Pending returns the number of registered, undelivered completions.
func (c *Completions) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
