package timeline

import (
	"context"
	"fmt"
	"time"
)

// Entry is the resolved placement of one action.
type Entry struct {
	Action   *Action       `json:"-"`
	Effect   Effect        `json:"effect"`
	Subject  string        `json:"subject,omitempty"`
	Label    string        `json:"label,omitempty"`
	Begin    time.Duration `json:"begin"`
	Duration time.Duration `json:"duration"`
	Handle   string        `json:"handle,omitempty"`
}

// End returns Begin+Duration.
func (e Entry) End() time.Duration {
	return e.Begin + e.Duration
}

// Schedule is the outcome of a scheduling pass.
type Schedule struct {
	Origin   time.Duration `json:"origin"`
	Entries  []Entry       `json:"entries"`
	State    *State        `json:"state,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Lookup returns the last entry carrying label.
func (s Schedule) Lookup(label string) (Entry, bool) {
	for i := len(s.Entries) - 1; i >= 0; i-- {
		if s.Entries[i].Label == label {
			return s.Entries[i], true
		}
	}
	return Entry{}, false
}

// End returns the furthest end time of any entry, or the origin when empty.
func (s Schedule) End() time.Duration {
	end := s.Origin
	for _, e := range s.Entries {
		if e.End() > end {
			end = e.End()
		}
	}
	return end
}

// Span returns End()-Origin.
func (s Schedule) Span() time.Duration {
	return s.End() - s.Origin
}

// Scheduler resolves begin times for an ordered list of steps in one forward
// pass. Order is significant; steps are never reordered.
type Scheduler struct {
	backend     Backend
	labels      LabelPolicy
	sequencing  Sequencing
	logger      Logger
	completions *Completions
}

// NewScheduler wires a scheduler to a backend.
func NewScheduler(backend Backend, opts ...Option) (*Scheduler, error) {
	if backend == nil {
		return nil, fmt.Errorf("timeline: scheduler requires a backend")
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return newScheduler(backend, o), nil
}

func newScheduler(backend Backend, o options) *Scheduler {
	return &Scheduler{
		backend:     backend,
		labels:      o.labels,
		sequencing:  o.sequencing,
		logger:      o.logger,
		completions: NewCompletions(o.notifier),
	}
}

// Run schedules steps starting at origin. On a backend failure it returns the
// entries applied so far together with the error; applied effects are not
// rolled back.
func (s *Scheduler) Run(ctx context.Context, steps []Step, origin time.Duration) (Schedule, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sched := Schedule{Origin: origin}
	if s.labels == LabelsStrict {
		if err := checkLabels(steps); err != nil {
			return sched, err
		}
	}
	state := newState(origin)
	sched.State = state
	for idx, st := range steps {
		rec := state.record(st.Subject())
		switch step := st.(type) {
		case *WaitMarker:
			if warning := s.wait(state, rec, step); warning != "" {
				sched.Warnings = append(sched.Warnings, fmt.Sprintf("step %d: %s", idx, warning))
			}
		case *Action:
			entry, err := s.place(ctx, state, rec, step)
			if err != nil {
				return sched, fmt.Errorf("timeline: apply step %d (%s): %w", idx, step, err)
			}
			sched.Entries = append(sched.Entries, entry)
		default:
			return sched, fmt.Errorf("%w: step %d has unsupported type %T", ErrInvalidStep, idx, st)
		}
	}
	return sched, nil
}

// wait moves the relevant cursor. The returned string is a warning for an
// unresolved label under the warn policy.
func (s *Scheduler) wait(state *State, rec *Cursor, w *WaitMarker) string {
	endRef := rec.LatestEnd
	var warning string
	if w.label != "" {
		if span, ok := state.Labels[w.label]; ok {
			endRef = span.End()
		} else if w.mode == CompletionWait && s.labels == LabelsWarn {
			warning = fmt.Sprintf("completion wait references unknown label %q; using latest end", w.label)
			s.logger.Printf("timeline: %s", warning)
		}
	}
	switch w.mode {
	case RelativeWait:
		rec.Position += w.duration
	case CompletionWait:
		rec.Position = endRef + w.duration
	}
	return warning
}

func (s *Scheduler) place(ctx context.Context, state *State, rec *Cursor, a *Action) (Entry, error) {
	begin := rec.Position
	if a.subject != "" {
		// Subjects never start before the global timeline.
		if floor := state.Global.Position; floor > begin {
			rec.Position = floor
			begin = floor
		}
	}
	app := Application{Action: a, Begin: begin}
	if !a.skipNotification {
		handle := s.completions.register(a)
		app.Handle = handle
		app.Done = func() {
			if err := s.completions.Complete(handle); err != nil {
				s.logger.Printf("timeline: route completion %s: %v", handle, err)
			}
		}
	}
	effective, err := s.backend.Apply(ctx, app)
	if err == nil && effective < 0 {
		err = fmt.Errorf("%w: backend returned %s", ErrInvalidDuration, effective)
	}
	if err != nil {
		s.completions.forget(app.Handle)
		return Entry{}, err
	}
	if a.label != "" {
		state.Labels[a.label] = Span{Begin: begin, Duration: effective}
	}
	if !a.ignoreTiming {
		end := begin + effective
		rec.extend(end)
		if s.sequencing == SequencingSequential && end > rec.Position {
			rec.Position = end
		}
	}
	return Entry{
		Action:   a,
		Effect:   a.effect,
		Subject:  a.subject,
		Label:    a.label,
		Begin:    begin,
		Duration: effective,
		Handle:   app.Handle,
	}, nil
}

// checkLabels rejects completion waits that reference a label no earlier
// action declares.
func checkLabels(steps []Step) error {
	seen := map[string]struct{}{}
	for idx, st := range steps {
		switch step := st.(type) {
		case *Action:
			if step.label != "" {
				seen[step.label] = struct{}{}
			}
		case *WaitMarker:
			if step.mode != CompletionWait || step.label == "" {
				continue
			}
			if _, ok := seen[step.label]; !ok {
				return fmt.Errorf("%w: step %d waits on %q", ErrUnknownLabel, idx, step.label)
			}
		}
	}
	return nil
}
