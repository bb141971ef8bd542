package timeline

import (
	"fmt"
	"strings"
	"time"
)

// Effect is the backend binding of an action: what to change and how. The core
// never interprets it.
type Effect struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Step is either an *Action or a *WaitMarker.
type Step interface {
	// Subject names the sub-timeline the step belongs to; empty means global.
	Subject() string
	// Label is the optional name used by completion waits.
	Label() string
	// Duration is the declared span of the step.
	Duration() time.Duration
	step()
}

// Action is a step with an effect applied at a computed begin time.
type Action struct {
	effect           Effect
	subject          string
	label            string
	duration         time.Duration
	ignoreTiming     bool
	skipNotification bool
	onComplete       func(*Action)
}

func (a *Action) step() {}

// Subject implements Step.
func (a *Action) Subject() string { return a.subject }

// Label implements Step.
func (a *Action) Label() string { return a.label }

// Duration returns the nominal duration; the backend may widen it.
func (a *Action) Duration() time.Duration { return a.duration }

// Effect returns the backend binding.
func (a *Action) Effect() Effect { return a.effect }

// IgnoresTiming reports whether the action stays out of latest-end bookkeeping.
func (a *Action) IgnoresTiming() bool { return a.ignoreTiming }

// SkipsNotification reports whether completion is left unrouted.
func (a *Action) SkipsNotification() bool { return a.skipNotification }

func (a *Action) String() string {
	var b strings.Builder
	b.WriteString(a.effect.Name)
	if a.subject != "" {
		fmt.Fprintf(&b, "@%s", a.subject)
	}
	if a.label != "" {
		fmt.Fprintf(&b, "#%s", a.label)
	}
	return b.String()
}

// WaitMode selects how a wait marker moves its cursor.
type WaitMode int

const (
	// RelativeWait advances the cursor by the wait duration.
	RelativeWait WaitMode = iota
	// CompletionWait moves the cursor to the latest end (or a label's end)
	// plus the wait duration.
	CompletionWait
)

func (m WaitMode) String() string {
	switch m {
	case RelativeWait:
		return "relative"
	case CompletionWait:
		return "completion"
	default:
		return fmt.Sprintf("WaitMode(%d)", int(m))
	}
}

// ParseWaitMode accepts "relative"/"wait" and "completion"/"animation".
func ParseWaitMode(value string) (WaitMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "relative", "wait":
		return RelativeWait, nil
	case "completion", "animation":
		return CompletionWait, nil
	default:
		return 0, fmt.Errorf("%w: unknown wait mode %q", ErrInvalidStep, value)
	}
}

// WaitMarker is a pure timing directive. It never reaches the backend.
type WaitMarker struct {
	mode     WaitMode
	subject  string
	label    string
	duration time.Duration
}

func (w *WaitMarker) step() {}

// Subject implements Step.
func (w *WaitMarker) Subject() string { return w.subject }

// Label implements Step. For completion waits it names the action to wait on.
func (w *WaitMarker) Label() string { return w.label }

// Duration implements Step.
func (w *WaitMarker) Duration() time.Duration { return w.duration }

// Mode returns the wait mode.
func (w *WaitMarker) Mode() WaitMode { return w.mode }

// StepOption customizes a step at append time.
type StepOption func(*stepConfig)

type stepConfig struct {
	subject          string
	label            string
	duration         time.Duration
	hasDuration      bool
	ignoreTiming     bool
	skipNotification bool
	onComplete       func(*Action)
}

// OnSubject places the step on the named sub-timeline.
func OnSubject(id string) StepOption {
	return func(c *stepConfig) { c.subject = strings.TrimSpace(id) }
}

// WithLabel names an action, or the action a completion wait refers to.
func WithLabel(label string) StepOption {
	return func(c *stepConfig) { c.label = strings.TrimSpace(label) }
}

// WithDuration sets an action's nominal duration. Without it the block
// default applies.
func WithDuration(d time.Duration) StepOption {
	return func(c *stepConfig) {
		c.duration = d
		c.hasDuration = true
	}
}

// IgnoreTiming keeps an action out of latest-end bookkeeping. Actions only.
func IgnoreTiming() StepOption {
	return func(c *stepConfig) { c.ignoreTiming = true }
}

// SkipNotification leaves an action's completion unrouted. Actions only.
func SkipNotification() StepOption {
	return func(c *stepConfig) { c.skipNotification = true }
}

// OnComplete registers a callback run when the action's effect finishes.
// Actions only.
func OnComplete(fn func(*Action)) StepOption {
	return func(c *stepConfig) { c.onComplete = fn }
}

func newStepConfig(opts []StepOption) stepConfig {
	var cfg stepConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c stepConfig) actionOnly() []string {
	var flags []string
	if c.hasDuration {
		flags = append(flags, "duration option")
	}
	if c.ignoreTiming {
		flags = append(flags, "ignore timing")
	}
	if c.skipNotification {
		flags = append(flags, "skip notification")
	}
	if c.onComplete != nil {
		flags = append(flags, "completion callback")
	}
	return flags
}
