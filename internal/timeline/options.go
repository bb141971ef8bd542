package timeline

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultBlockDuration applies when a block is opened without a default.
	DefaultBlockDuration = 250 * time.Millisecond
	// DefaultZeroDuration replaces zero action durations; some backends cannot
	// run a true zero-length effect.
	DefaultZeroDuration = time.Millisecond
)

// LabelPolicy controls completion waits whose label is not known yet.
type LabelPolicy string

const (
	// LabelsPermissive falls back to the ambient latest end silently.
	LabelsPermissive LabelPolicy = "permissive"
	// LabelsWarn falls back like LabelsPermissive and records a warning.
	LabelsWarn LabelPolicy = "warn"
	// LabelsStrict rejects the block before any action is applied.
	LabelsStrict LabelPolicy = "strict"
)

// ParseLabelPolicy maps a config value onto a LabelPolicy. Empty means permissive.
func ParseLabelPolicy(value string) (LabelPolicy, error) {
	switch policy := LabelPolicy(strings.ToLower(strings.TrimSpace(value))); policy {
	case "":
		return LabelsPermissive, nil
	case LabelsPermissive, LabelsWarn, LabelsStrict:
		return policy, nil
	default:
		return "", fmt.Errorf("timeline: unknown label policy %q", value)
	}
}

// Sequencing controls whether actions advance their cursor.
type Sequencing string

const (
	// SequencingConcurrent leaves cursors to wait markers: every action between
	// two waits starts at the same position.
	SequencingConcurrent Sequencing = "concurrent"
	// SequencingSequential also moves the cursor to the end of each
	// timing-relevant action, chaining consecutive actions.
	SequencingSequential Sequencing = "sequential"
)

// ParseSequencing maps a config value onto a Sequencing. Empty means concurrent.
func ParseSequencing(value string) (Sequencing, error) {
	switch mode := Sequencing(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return SequencingConcurrent, nil
	case SequencingConcurrent, SequencingSequential:
		return mode, nil
	default:
		return "", fmt.Errorf("timeline: unknown sequencing %q", value)
	}
}

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// CompletionNotifier receives every routed action completion.
type CompletionNotifier interface {
	OnComplete(*Action)
}

// CompletionNotifierFunc adapts a function into a CompletionNotifier.
type CompletionNotifierFunc func(*Action)

// OnComplete executes f(a).
func (f CompletionNotifierFunc) OnComplete(a *Action) {
	if f != nil {
		f(a)
	}
}

type options struct {
	labels       LabelPolicy
	sequencing   Sequencing
	zeroDuration time.Duration
	logger       Logger
	notifier     CompletionNotifier
	origin       func() time.Duration
}

func defaultOptions() options {
	return options{
		labels:       LabelsPermissive,
		sequencing:   SequencingConcurrent,
		zeroDuration: DefaultZeroDuration,
		logger:       nopLogger{},
	}
}

// Option customizes a Session.
type Option func(*options)

// WithLabelPolicy selects how unknown completion-wait labels are handled.
func WithLabelPolicy(policy LabelPolicy) Option {
	return func(o *options) {
		if policy != "" {
			o.labels = policy
		}
	}
}

// WithSequencing selects concurrent or sequential action placement.
func WithSequencing(mode Sequencing) Option {
	return func(o *options) {
		if mode != "" {
			o.sequencing = mode
		}
	}
}

// WithZeroDuration sets the duration substituted for zero-length actions.
// Zero disables the substitution.
func WithZeroDuration(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.zeroDuration = d
		}
	}
}

// WithLogger routes scheduling diagnostics.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNotifier receives every completion routed through a block.
func WithNotifier(n CompletionNotifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithOrigin overrides the origin clock. Without it the backend's Clock is
// used when implemented, otherwise zero.
func WithOrigin(now func() time.Duration) Option {
	return func(o *options) {
		o.origin = now
	}
}
