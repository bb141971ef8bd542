package eventbridge

import (
	"context"
	"errors"
	"fmt"
)

// ErrBlockAborted is returned by Forward when the renderer aborts the block.
var ErrBlockAborted = errors.New("eventbridge: block aborted by renderer")

// Completer receives completions routed from the bridge. *timeline.Block
// implements it.
type Completer interface {
	Complete(handle string) error
	Pending() int
}

// Forward drains sub into c until no completions are pending, the
// subscription closes, or ctx ends. Unknown or repeated handles are logged
// and skipped.
func Forward(ctx context.Context, sub Subscription, c Completer, logger Logger) error {
	if logger == nil {
		logger = nopLogger{}
	}
	for c.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.Events:
			if !ok {
				return fmt.Errorf("eventbridge: subscription for block %s closed with %d pending", sub.BlockID, c.Pending())
			}
			switch evt.Type {
			case TypeCompleted:
				if err := c.Complete(evt.Handle); err != nil {
					logger.Printf("eventbridge: block %s: %v", sub.BlockID, err)
				}
			case TypeAborted:
				return fmt.Errorf("%w: %s", ErrBlockAborted, sub.BlockID)
			}
		}
	}
	return nil
}
