package timeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Block is one composition unit: steps are appended in declaration order and
// scheduled exactly once by Commit.
type Block struct {
	id              string
	session         *Session
	scheduler       *Scheduler
	origin          func() time.Duration
	logger          Logger
	defaultDuration time.Duration
	zeroDuration    time.Duration

	steps     []Step
	callback  func()
	committed bool
	schedule  Schedule
}

func newBlock(s *Session, defaultDuration time.Duration) *Block {
	return &Block{
		id:              uuid.NewString(),
		session:         s,
		scheduler:       newScheduler(s.backend, s.opts),
		origin:          s.originFunc(),
		logger:          s.opts.logger,
		defaultDuration: defaultDuration,
		zeroDuration:    s.opts.zeroDuration,
	}
}

// ID identifies the block, e.g. for completion events arriving over the bridge.
func (b *Block) ID() string { return b.id }

// DefaultDuration is applied to actions appended without WithDuration.
func (b *Block) DefaultDuration() time.Duration { return b.defaultDuration }

// Len returns the number of appended steps.
func (b *Block) Len() int { return len(b.steps) }

// Steps returns a copy of the declared steps.
func (b *Block) Steps() []Step {
	out := make([]Step, len(b.steps))
	copy(out, b.steps)
	return out
}

// AppendAction declares an action. The block is left unmodified on error.
func (b *Block) AppendAction(effect Effect, opts ...StepOption) (*Action, error) {
	if b.committed {
		return nil, ErrBlockCommitted
	}
	effect.Name = strings.TrimSpace(effect.Name)
	if effect.Name == "" {
		return nil, fmt.Errorf("%w: action effect name is required", ErrInvalidStep)
	}
	cfg := newStepConfig(opts)
	duration := b.defaultDuration
	if cfg.hasDuration {
		duration = cfg.duration
	}
	if duration < 0 {
		return nil, fmt.Errorf("%w: action %s has duration %s", ErrInvalidDuration, effect.Name, duration)
	}
	if duration == 0 && b.zeroDuration > 0 {
		duration = b.zeroDuration
	}
	a := &Action{
		effect:           effect,
		subject:          cfg.subject,
		label:            cfg.label,
		duration:         duration,
		ignoreTiming:     cfg.ignoreTiming,
		skipNotification: cfg.skipNotification,
		onComplete:       cfg.onComplete,
	}
	b.steps = append(b.steps, a)
	return a, nil
}

// AppendWait declares a wait marker. Action-only options are rejected.
func (b *Block) AppendWait(mode WaitMode, duration time.Duration, opts ...StepOption) (*WaitMarker, error) {
	if b.committed {
		return nil, ErrBlockCommitted
	}
	if mode != RelativeWait && mode != CompletionWait {
		return nil, fmt.Errorf("%w: unknown wait mode %d", ErrInvalidStep, int(mode))
	}
	if duration < 0 {
		return nil, fmt.Errorf("%w: %s wait has duration %s", ErrInvalidDuration, mode, duration)
	}
	cfg := newStepConfig(opts)
	if flags := cfg.actionOnly(); len(flags) > 0 {
		return nil, fmt.Errorf("%w: wait markers do not accept %s", ErrInvalidStep, strings.Join(flags, ", "))
	}
	w := &WaitMarker{
		mode:     mode,
		subject:  cfg.subject,
		label:    cfg.label,
		duration: duration,
	}
	b.steps = append(b.steps, w)
	return w, nil
}

// Wait delays later steps on the relevant timeline by duration.
func (b *Block) Wait(duration time.Duration, opts ...StepOption) (*WaitMarker, error) {
	return b.AppendWait(RelativeWait, duration, opts...)
}

// WaitForCompletion delays later steps until the relevant timeline (or the
// labeled action) has finished, plus duration.
func (b *Block) WaitForCompletion(duration time.Duration, opts ...StepOption) (*WaitMarker, error) {
	return b.AppendWait(CompletionWait, duration, opts...)
}

// SetCompletionCallback sets the callback handed to Backend.Commit. A nil
// callback clears it.
func (b *Block) SetCompletionCallback(fn func()) error {
	if b.committed {
		return ErrBlockCommitted
	}
	b.callback = fn
	return nil
}

// Committed reports whether Commit has been called.
func (b *Block) Committed() bool { return b.committed }

// Schedule returns a copy of the result of the commit, or an empty Schedule
// before it.
func (b *Block) Schedule() Schedule {
	out := b.schedule
	out.Entries = append([]Entry(nil), b.schedule.Entries...)
	out.Warnings = append([]string(nil), b.schedule.Warnings...)
	out.State = b.schedule.State.clone()
	return out
}

// Commit schedules every step and finalizes the batch with the backend. A
// block commits once; later calls return ErrAlreadyCommitted and leave the
// first result untouched. When an action fails to apply, the actions before
// it remain applied and the backend commit is skipped.
func (b *Block) Commit(ctx context.Context) (Schedule, error) {
	if b.committed {
		return b.Schedule(), ErrAlreadyCommitted
	}
	b.committed = true
	if b.session != nil {
		defer b.session.release(b)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	origin := b.origin()
	sched, err := b.scheduler.Run(ctx, b.steps, origin)
	b.schedule = sched
	if err != nil {
		b.logger.Printf("timeline: block %s failed after %d applied actions: %v", b.id, len(sched.Entries), err)
		return b.Schedule(), err
	}
	if err := b.scheduler.backend.Commit(ctx, b.callback); err != nil {
		return b.Schedule(), fmt.Errorf("timeline: commit block %s: %w", b.id, err)
	}
	b.logger.Printf("timeline: block %s committed %d actions over %s from %s", b.id, len(sched.Entries), sched.Span(), origin)
	return b.Schedule(), nil
}

// Complete routes a finished effect back to its action.
func (b *Block) Complete(handle string) error {
	return b.scheduler.completions.Complete(strings.TrimSpace(handle))
}

// Pending returns the number of completions still outstanding.
func (b *Block) Pending() int {
	return b.scheduler.completions.Pending()
}
