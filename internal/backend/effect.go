// Package backend provides timeline backends: a deterministic Recorder that
// keeps its own clock and a wall-clock Player that fires completions on
// timers.
package backend

import (
	"time"

	"github.com/kingrea/choreo/internal/timeline"
)

// Effect is one applied action as seen by a backend.
type Effect struct {
	Handle   string         `json:"handle,omitempty"`
	Name     string         `json:"effect"`
	Subject  string         `json:"subject,omitempty"`
	Label    string         `json:"label,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Begin    time.Duration  `json:"begin"`
	Duration time.Duration  `json:"duration"`
	Batch    int            `json:"batch"`
	// Seq is the position of the effect within its batch, which matches the
	// entry index in the committed block's schedule.
	Seq      int            `json:"seq"`

	done func()
}

// End returns Begin+Duration.
func (e Effect) End() time.Duration {
	return e.Begin + e.Duration
}

func newEffect(app timeline.Application, duration time.Duration, batch, seq int) Effect {
	effect := app.Action.Effect()
	return Effect{
		Handle:   app.Handle,
		Name:     effect.Name,
		Subject:  app.Action.Subject(),
		Label:    app.Action.Label(),
		Params:   effect.Params,
		Begin:    app.Begin,
		Duration: duration,
		Batch:    batch,
		Seq:      seq,
		done:     app.Done,
	}
}

// Logger is satisfied by internal/logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
